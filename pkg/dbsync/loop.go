// Package dbsync implements the database-sync loop from spec.md §4.6: on a
// short interval, it refreshes the in-memory job-type, scheduler and node
// views from the backing store, grounded on the original scheduler's
// db_sync_thread and the teacher's reconciler ticker-loop shape.
package dbsync

import (
	"context"
	"time"

	"github.com/cuemby/schedcore/pkg/log"
	"github.com/cuemby/schedcore/pkg/metrics"
	"github.com/cuemby/schedcore/pkg/nodes"
	"github.com/cuemby/schedcore/pkg/offers"
	"github.com/cuemby/schedcore/pkg/store"
	"github.com/cuemby/schedcore/pkg/types"
	"github.com/rs/zerolog"
)

// JobTypeCache is the in-memory job-type view refreshed each cycle.
type JobTypeCache struct {
	byName map[string]store.JobTypeRecord
}

// NewJobTypeCache creates an empty cache.
func NewJobTypeCache() *JobTypeCache {
	return &JobTypeCache{byName: make(map[string]store.JobTypeRecord)}
}

// Get returns the cached definition for a job type name.
func (c *JobTypeCache) Get(name string) (store.JobTypeRecord, bool) {
	r, ok := c.byName[name]
	return r, ok
}

func (c *JobTypeCache) replace(records []store.JobTypeRecord) {
	next := make(map[string]store.JobTypeRecord, len(records))
	for _, r := range records {
		next[r.Name] = r
	}
	c.byName = next
}

// SchedulerState is the in-memory scheduler configuration view refreshed
// each cycle.
type SchedulerState struct {
	current store.SchedulerRecord
}

// Current returns the last-synced scheduler record.
func (s *SchedulerState) Current() store.SchedulerRecord {
	return s.current
}

// Loop is the database-sync loop.
type Loop struct {
	jobTypes    store.JobTypeSyncSource
	scheduler   store.SchedulerSyncSource
	nodesSource store.NodeSyncSource

	jobTypeCache   *JobTypeCache
	schedulerState *SchedulerState
	nodeManager    *nodes.Manager
	offerManager   *offers.Manager

	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLoop creates a database-sync loop. Any of jobTypes, scheduler or
// nodesSource may be nil, in which case that sync source is skipped; this
// lets a deployment wire only the collaborators it has. offerManager may
// also be nil, in which case a node reappearing after being marked lost
// does not automatically resume receiving offers.
func NewLoop(
	jobTypes store.JobTypeSyncSource,
	scheduler store.SchedulerSyncSource,
	nodesSource store.NodeSyncSource,
	nodeManager *nodes.Manager,
	offerManager *offers.Manager,
	interval time.Duration,
) *Loop {
	return &Loop{
		jobTypes:       jobTypes,
		scheduler:      scheduler,
		nodesSource:    nodesSource,
		jobTypeCache:   NewJobTypeCache(),
		schedulerState: &SchedulerState{},
		nodeManager:    nodeManager,
		offerManager:   offerManager,
		interval:       interval,
		logger:         log.WithComponent("dbsync-loop"),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// JobTypes returns the synced job-type cache.
func (l *Loop) JobTypes() *JobTypeCache { return l.jobTypeCache }

// Scheduler returns the synced scheduler state.
func (l *Loop) Scheduler() *SchedulerState { return l.schedulerState }

// Start begins the loop in its own goroutine. It performs one synchronous
// sync pass before returning, mirroring the original scheduler's initial
// sync_with_database calls made before the worker threads start.
func (l *Loop) Start(ctx context.Context) {
	l.cycle(ctx)
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

	l.logger.Info().Dur("interval", l.interval).Msg("database-sync loop started")
	for {
		select {
		case <-ticker.C:
			l.cycle(ctx)
		case <-l.stopCh:
			l.logger.Info().Msg("database-sync loop stopped")
			return
		case <-ctx.Done():
			l.logger.Info().Msg("database-sync loop stopped by context")
			return
		}
	}
}

func (l *Loop) cycle(ctx context.Context) {
	timer := metrics.NewTimer()
	failed := false
	defer func() {
		timer.ObserveDuration(metrics.DBSyncDuration)
		if failed {
			metrics.DBSyncFailuresTotal.Inc()
		}
	}()

	if l.jobTypes != nil {
		records, err := l.jobTypes.SyncJobTypes(ctx)
		if err != nil {
			failed = true
			l.logger.Error().Err(err).Msg("job type sync failed")
		} else {
			l.jobTypeCache.replace(records)
		}
	}

	if l.scheduler != nil {
		rec, err := l.scheduler.SyncScheduler(ctx)
		if err != nil {
			failed = true
			l.logger.Error().Err(err).Msg("scheduler sync failed")
		} else {
			l.schedulerState.current = rec
		}
	}

	if l.nodesSource != nil && l.nodeManager != nil {
		agents, err := l.nodesSource.SyncNodes(ctx)
		if err != nil {
			failed = true
			l.logger.Error().Err(err).Msg("node sync failed")
		} else {
			var onReadmit func(types.AgentID)
			if l.offerManager != nil {
				onReadmit = l.offerManager.Readmit
			}
			l.nodeManager.SyncWithDatabase(agents, onReadmit)
		}
	}
}
