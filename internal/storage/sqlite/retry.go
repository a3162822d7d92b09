package sqlite

import (
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig controls exponential backoff on transient SQLite contention.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	JitterPct  float64
}

// DefaultRetryConfig returns 7 retries, 50ms base, 25% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 7,
		BaseDelay:  50 * time.Millisecond,
		JitterPct:  0.25,
	}
}

// RetryOnBusy retries fn on SQLITE_BUSY / database-is-locked errors using the
// default config. Contention on a tuple or balance row is expected under
// concurrent reconciliation and must never reach the event producer.
func RetryOnBusy(fn func() error) error {
	return retryOnBusy(DefaultRetryConfig(), fn, time.Sleep)
}

// RetryOnBusyWithConfig retries fn using the given config.
func RetryOnBusyWithConfig(cfg RetryConfig, fn func() error) error {
	return retryOnBusy(cfg, fn, time.Sleep)
}

func retryOnBusy(cfg RetryConfig, fn func() error, sleepFn func(time.Duration)) error {
	err := fn()
	if err == nil {
		return nil
	}
	if !isBusy(err) {
		return err
	}

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		delay := cfg.BaseDelay * (1 << (attempt - 1))
		jitter := time.Duration(float64(delay) * rand.Float64() * cfg.JitterPct)
		sleepFn(delay + jitter)

		err = fn()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
	}
	return err
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy")
}
