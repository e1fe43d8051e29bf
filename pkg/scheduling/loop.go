// Package scheduling implements the scheduling loop from spec.md §4.4: on
// a fixed interval it dequeues a bounded batch of job executions, packs
// them onto held offers with a greedy first-fit-decreasing bin-pack
// (FIFO tie-break), launches what fits, and proactively declines offers
// that have aged past their hold limit. Grounded on the original
// scheduler's SchedulingThread and the teacher's scheduler.go ticker-loop
// shape.
package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/cuemby/schedcore/pkg/driver"
	"github.com/cuemby/schedcore/pkg/execution"
	"github.com/cuemby/schedcore/pkg/log"
	"github.com/cuemby/schedcore/pkg/metrics"
	"github.com/cuemby/schedcore/pkg/nodes"
	"github.com/cuemby/schedcore/pkg/offers"
	"github.com/cuemby/schedcore/pkg/reconcile"
	"github.com/cuemby/schedcore/pkg/store"
	"github.com/cuemby/schedcore/pkg/types"
	"github.com/rs/zerolog"
)

// DriverHandle is the minimal surface the scheduling loop needs from the
// dispatcher's rotatable driver handle.
type DriverHandle interface {
	Current() driver.Driver
}

// SchedulerStateReader is the minimal surface the scheduling loop needs from
// dbsync.SchedulerState: the last-synced scheduler configuration row.
type SchedulerStateReader interface {
	Current() store.SchedulerRecord
}

// Config controls the loop's pacing and batching.
type Config struct {
	Interval     time.Duration
	BatchSize    int
	OfferMaxHold time.Duration
}

// Loop is the scheduling loop.
type Loop struct {
	queue     store.QueueStore
	offers    *offers.Manager
	nodes     *nodes.Manager
	exec      *execution.Manager
	recon     *reconcile.Set
	handle    DriverHandle
	scheduler SchedulerStateReader
	cfg       Config
	logger    zerolog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewLoop creates a scheduling loop. schedulerState may be nil, in which case
// the loop never treats itself as paused.
func NewLoop(queue store.QueueStore, offerMgr *offers.Manager, nodeMgr *nodes.Manager, execMgr *execution.Manager, reconSet *reconcile.Set, handle DriverHandle, schedulerState SchedulerStateReader, cfg Config) *Loop {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.OfferMaxHold <= 0 {
		cfg.OfferMaxHold = 2 * time.Minute
	}
	return &Loop{
		queue:     queue,
		offers:    offerMgr,
		nodes:     nodeMgr,
		exec:      execMgr,
		recon:     reconSet,
		handle:    handle,
		scheduler: schedulerState,
		cfg:       cfg,
		logger:    log.WithComponent("scheduling-loop"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
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
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.logger.Info().Dur("interval", l.cfg.Interval).Int("batch_size", l.cfg.BatchSize).Msg("scheduling loop started")
	for {
		select {
		case <-ticker.C:
			l.pass(ctx)
		case <-l.stopCh:
			l.logger.Info().Msg("scheduling loop stopped")
			return
		case <-ctx.Done():
			l.logger.Info().Msg("scheduling loop stopped by context")
			return
		}
	}
}

// agentPool is the mutable per-agent resource pool used while packing a
// single pass: every offer held for an agent is aggregated into one pool,
// and a launch against that agent consumes every one of its offer ids
// together.
type agentPool struct {
	agentID   types.AgentID
	offerIDs  []types.OfferID
	hostname  string
	port      int
	remaining types.NodeResources
	used      bool
}

func (l *Loop) pass(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingPassDuration)

	d := l.handle.Current()
	if d == nil {
		l.logger.Debug().Msg("no driver registered, skipping scheduling pass")
		return
	}

	l.declineAged(d)

	if l.scheduler != nil && l.scheduler.Current().IsPaused {
		l.logger.Debug().Msg("scheduler paused, skipping dequeue and launch")
		return
	}

	execs, err := l.queue.Dequeue(ctx, l.cfg.BatchSize)
	if err != nil {
		l.logger.Error().Err(err).Msg("failed to dequeue job executions")
		return
	}
	if len(execs) == 0 {
		return
	}

	// First-fit-decreasing: pack the largest executions first so a handful
	// of small leftovers are more likely to still fit somewhere, with a
	// stable sort to preserve the dequeue (FIFO) order as the tie-break.
	sort.SliceStable(execs, func(i, j int) bool {
		return resourceWeight(execs[i].Resources) > resourceWeight(execs[j].Resources)
	})

	res := l.offers.ReadyOffers()
	pools := l.buildPools(res)

	var launchOfferIDs []types.OfferID
	var taskIDs []types.TaskID
	var taskInfos [][]byte
	var rejected []types.JobExecution

	for _, exe := range execs {
		pool := pickPool(pools, exe.Resources)
		if pool == nil {
			rejected = append(rejected, exe)
			continue
		}
		pool.remaining = pool.remaining.Sub(exe.Resources)
		if !pool.used {
			pool.used = true
			launchOfferIDs = append(launchOfferIDs, pool.offerIDs...)
		}

		running := execution.NewRunningJobExecution(exe.JobExeID, pool.hostname, pool.port)
		taskID := types.NewTaskID(exe.JobExeID, 1)
		running.Launch(taskID, 1)

		l.exec.Add(running)
		l.recon.Add(taskID)

		taskIDs = append(taskIDs, taskID)
		taskInfos = append(taskInfos, exe.TaskInfo)
	}

	if len(taskIDs) > 0 {
		if err := d.LaunchTasks(launchOfferIDs, taskIDs, taskInfos); err != nil {
			l.logger.Error().Err(err).Int("count", len(taskIDs)).Msg("launch tasks request failed")
		} else {
			metrics.SchedulingLaunchesTotal.Add(float64(len(taskIDs)))
		}
	}

	l.offers.Consume(res, launchOfferIDs)

	if len(rejected) > 0 {
		metrics.SchedulingRejectedTotal.Add(float64(len(rejected)))
		for _, exe := range rejected {
			if err := l.queue.Enqueue(ctx, exe); err != nil {
				l.logger.Error().Err(err).Str("job_exe_id", string(exe.JobExeID)).
					Msg("failed to return rejected execution to the queue")
			}
		}
	}
}

func (l *Loop) declineAged(d driver.Driver) {
	aged := l.offers.OffersOlderThan(l.cfg.OfferMaxHold)
	if len(aged) == 0 {
		return
	}
	ids := make([]types.OfferID, len(aged))
	for i, o := range aged {
		ids[i] = o.OfferID
		if err := d.DeclineOffer(o.OfferID); err != nil {
			l.logger.Error().Err(err).Str("offer_id", string(o.OfferID)).Msg("failed to decline aged offer")
		}
	}
	l.offers.DiscardAged(ids)
}

func (l *Loop) buildPools(res *offers.Reservation) []*agentPool {
	var pools []*agentPool
	for agentID, offerList := range res.PerAgent() {
		pool := &agentPool{agentID: agentID}
		if agent, ok := l.nodes.Get(agentID); ok {
			pool.hostname = agent.Hostname
			pool.port = agent.Port
		}
		for _, o := range offerList {
			pool.offerIDs = append(pool.offerIDs, o.OfferID)
			pool.remaining = pool.remaining.Add(o.Resources)
		}
		pools = append(pools, pool)
	}
	return pools
}

func pickPool(pools []*agentPool, need types.NodeResources) *agentPool {
	for _, p := range pools {
		if need.FitsIn(p.remaining) {
			return p
		}
	}
	return nil
}

func resourceWeight(r types.NodeResources) float64 {
	return r.CPUs*1000 + r.MemMB + r.DiskMB/1024
}
