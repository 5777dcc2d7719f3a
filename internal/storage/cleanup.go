package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgellow/devreg/internal/log"
)

// CleanupManager sweeps expired envelopes out of a store: once when
// started, then every interval until stopped. Short-lived processes only
// get the first sweep.
type CleanupManager struct {
	store    Store
	interval time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewCleanupManager(store Store, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start sweeps once and keeps sweeping in the background.
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogDebugWithFields("cleanup", "Starting envelope cleanup", map[string]any{
		"interval": cm.interval.String(),
	})
	cm.Sweep(ctx)
	cm.started.Store(true)
	go cm.loop(ctx)
}

// Stop ends the background loop and waits for it. Safe to call more than
// once, and without Start.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() {
		close(cm.stop)
	})
	if cm.started.Load() {
		<-cm.done
	}
}

// Sweep removes expired envelopes now and returns how many went.
func (cm *CleanupManager) Sweep(ctx context.Context) int {
	count, err := cm.store.CleanupExpiredEnvelopes(ctx)
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to remove expired envelopes", map[string]any{
			"error": err.Error(),
		})
		return 0
	}
	if count > 0 {
		log.LogInfoWithFields("cleanup", "Removed expired envelopes", map[string]any{
			"count": count,
		})
	}
	return count
}

func (cm *CleanupManager) loop(ctx context.Context) {
	defer close(cm.done)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.Sweep(ctx)
		case <-cm.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
