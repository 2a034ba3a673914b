package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/aleksaelezovic/trindex/internal/index"
	"github.com/aleksaelezovic/trindex/internal/metrics"
	"github.com/aleksaelezovic/trindex/internal/notify"
)

// Optimize merges the index segments. It does not block searches.
func (ix *Indexer) Optimize(ctx context.Context) error {
	if err := ix.ready(); err != nil {
		return err
	}
	err := ix.store.Optimize(ctx)
	if errors.Is(err, index.ErrOptimizeInProgress) {
		return err
	}
	metrics.Optimizations.WithLabelValues(metrics.Outcome(err)).Inc()
	return err
}

// ScheduleOptimize runs Optimize after delay and then every period,
// replacing any previous schedule. A period of zero or less cancels
// scheduled optimizations.
func (ix *Indexer) ScheduleOptimize(delay, period time.Duration) error {
	ix.optimizeMu.Lock()
	defer ix.optimizeMu.Unlock()

	// Close cancels under the same lock, so no loop starts after it.
	if err := ix.ready(); err != nil {
		return err
	}
	ix.stopOptimizeLocked()
	if period <= 0 {
		return nil
	}

	stop := make(chan struct{})
	ix.optimizeStop = stop
	ix.optimizeWG.Add(1)
	go ix.optimizeLoop(stop, delay, period)
	ix.logger.Info("scheduled index optimization", "delay", delay, "period", period)
	return nil
}

// CancelOptimize stops scheduled optimizations. A running optimization
// finishes.
func (ix *Indexer) CancelOptimize() {
	ix.optimizeMu.Lock()
	defer ix.optimizeMu.Unlock()
	ix.stopOptimizeLocked()
}

func (ix *Indexer) stopOptimizeLocked() {
	if ix.optimizeStop != nil {
		close(ix.optimizeStop)
		ix.optimizeStop = nil
	}
}

func (ix *Indexer) optimizeLoop(stop <-chan struct{}, delay, period time.Duration) {
	defer ix.optimizeWG.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-stop:
		return
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		ix.runScheduledOptimize()
		select {
		case <-ticker.C:
		case <-stop:
			return
		}
	}
}

func (ix *Indexer) runScheduledOptimize() {
	err := ix.Optimize(context.Background())
	switch {
	case err == nil, errors.Is(err, index.ErrOptimizeInProgress), errors.Is(err, ErrClosed):
		return
	}
	ix.logger.Error("scheduled optimization failed", "error", err)
	if nerr := ix.notifier.Notify(context.Background(), notify.NewEvent(notify.KindOptimizeFailed, "scheduled optimization failed", err)); nerr != nil {
		ix.logger.Warn("failed to notify operators", "error", nerr)
	}
}
