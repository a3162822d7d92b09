package sqlite

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/okroshka/karmabot/internal/storage"
)

// Broadcaster is the interface for emitting sweep events to live clients.
type Broadcaster interface {
	Broadcast(event any)
}

// Sweeper runs a background goroutine that periodically purges tracked
// messages older than the retention horizon. Deletion cascades to reaction
// applications at the schema level, and runs in bounded batches so an
// interrupted sweep resumes naturally on the next tick: "older than horizon"
// is idempotent to re-evaluate.
type Sweeper struct {
	store     storage.Store
	bus       Broadcaster
	logger    *zap.Logger
	interval  time.Duration
	horizon   time.Duration
	batchSize int
	cancel    context.CancelFunc
	done      chan struct{}
}

// SweepEvent summarizes one completed purge pass.
type SweepEvent struct {
	Type    string    `json:"type"`
	Deleted int64     `json:"deleted"`
	Cutoff  time.Time `json:"cutoff"`
}

// NewSweeper creates a Sweeper. Call Start() to begin sweeping.
func NewSweeper(store storage.Store, bus Broadcaster, logger *zap.Logger, interval, horizon time.Duration, batchSize int) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:     store,
		bus:       bus,
		logger:    logger,
		interval:  interval,
		horizon:   horizon,
		batchSize: batchSize,
		done:      make(chan struct{}),
	}
}

// Start launches the background sweep goroutine. The single goroutine is
// what guarantees one active sweep at a time.
func (sw *Sweeper) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)

	go func() {
		defer close(sw.done)

		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sw.runSweep(ctx)
			}
		}
	}()
}

// Stop cancels the sweep goroutine and waits for it to finish.
func (sw *Sweeper) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	<-sw.done
}

// runSweep purges in batches until the registry has nothing older than the
// horizon or the context is cancelled between batches.
func (sw *Sweeper) runSweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-sw.horizon)

	var total int64
	for {
		if ctx.Err() != nil {
			return
		}
		deleted, err := sw.store.PurgeMessagesOlderThan(ctx, cutoff, sw.batchSize)
		if err != nil {
			sw.logger.Error("sweep failed", zap.Error(err), zap.Int64("deleted_so_far", total))
			return
		}
		total += deleted
		if deleted < int64(sw.batchSize) {
			break
		}
	}

	if total == 0 {
		return
	}

	sw.logger.Info("sweep completed",
		zap.Int64("deleted", total),
		zap.Time("cutoff", cutoff))

	if sw.bus != nil {
		sw.bus.Broadcast(SweepEvent{Type: "retention.sweep", Deleted: total, Cutoff: cutoff})
	}
}
