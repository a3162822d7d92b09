// Package httpapi exposes read-only HTTP endpoints over the karma store:
// balances, the leaderboard, tracked-message lookups and a health report.
package httpapi

import (
	"go.uber.org/zap"

	"github.com/okroshka/karmabot/internal/reconcile"
	"github.com/okroshka/karmabot/internal/storage"
)

type Service struct {
	store        storage.Store
	metrics      MetricsSource
	breakerState func() string
	logger       *zap.Logger
}

// MetricsSource reports reconciliation counters for the health endpoint.
type MetricsSource interface {
	MetricsSnapshot() reconcile.MetricsSnapshot
}

func NewService(store storage.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

func (s *Service) WithMetrics(m MetricsSource) *Service {
	s.metrics = m
	return s
}

// WithBreakerState wires the storage circuit breaker's state into the
// health report.
func (s *Service) WithBreakerState(fn func() string) *Service {
	s.breakerState = fn
	return s
}
