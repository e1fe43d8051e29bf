package reconcile

import (
	"context"
	"time"

	"github.com/cuemby/schedcore/pkg/driver"
	"github.com/cuemby/schedcore/pkg/log"
	"github.com/cuemby/schedcore/pkg/metrics"
	"github.com/rs/zerolog"
)

// DriverHandle is the minimal surface the reconciliation loop needs from
// the dispatcher's rotatable driver handle.
type DriverHandle interface {
	Current() driver.Driver
}

// Loop is the reconciliation loop from spec.md §4.5: on a long interval, it
// asks the resource master to resend status for every task id currently in
// the reconciliation set, grounded on the original scheduler's recon_thread.
type Loop struct {
	set      *Set
	handle   DriverHandle
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLoop creates a reconciliation loop polling set every interval.
func NewLoop(set *Set, handle DriverHandle, interval time.Duration) *Loop {
	return &Loop{
		set:      set,
		handle:   handle,
		interval: interval,
		logger:   log.WithComponent("reconcile-loop"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the loop in its own goroutine.
func (l *Loop) Start(ctx context.Context) {
	go l.run(ctx)
}

// Stop requests the loop to exit and waits for it to do so.
func (l *Loop) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info().Dur("interval", l.interval).Msg("reconciliation loop started")
	for {
		select {
		case <-ticker.C:
			l.cycle()
		case <-l.stopCh:
			l.logger.Info().Msg("reconciliation loop stopped")
			return
		case <-ctx.Done():
			l.logger.Info().Msg("reconciliation loop stopped by context")
			return
		}
	}
}

func (l *Loop) cycle() {
	defer metrics.ReconciliationCyclesTotal.Inc()

	ids := l.set.Snapshot()
	if len(ids) == 0 {
		return
	}
	d := l.handle.Current()
	if d == nil {
		l.logger.Warn().Msg("no driver registered, skipping reconciliation cycle")
		return
	}
	statuses := make([]driver.TaskStatus, len(ids))
	for i, id := range ids {
		// An empty status (TaskID only) asks the resource master to
		// resend whatever it knows about the task, per the resource
		// master's reconciliation protocol.
		statuses[i] = driver.TaskStatus{TaskID: id}
	}
	if err := d.ReconcileTasks(statuses); err != nil {
		l.logger.Error().Err(err).Int("count", len(statuses)).Msg("reconcile tasks request failed")
	}
}
