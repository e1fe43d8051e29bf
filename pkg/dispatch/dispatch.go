// Package dispatch implements the callback dispatcher from spec.md §4.1:
// the single entry point for every event the resource master delivers,
// serializing them onto the offer/node/execution managers and the
// reconciliation set. Grounded on original_source's ScaleScheduler
// (scale_scheduler.py) for exact callback semantics and on the teacher's
// ticker-loop/ zerolog/ metrics conventions for the ambient stack.
package dispatch

import (
	"context"
	"time"

	"github.com/cuemby/schedcore/pkg/driver"
	"github.com/cuemby/schedcore/pkg/execution"
	"github.com/cuemby/schedcore/pkg/log"
	"github.com/cuemby/schedcore/pkg/logfetch"
	"github.com/cuemby/schedcore/pkg/metrics"
	"github.com/cuemby/schedcore/pkg/nodes"
	"github.com/cuemby/schedcore/pkg/offers"
	"github.com/cuemby/schedcore/pkg/reconcile"
	"github.com/cuemby/schedcore/pkg/store"
	"github.com/cuemby/schedcore/pkg/types"
	"github.com/rs/zerolog"
)

// Warning thresholds for callback latency, grounded on the original
// scheduler's NORMAL_WARN_THRESHOLD / DATABASE_WARN_THRESHOLD constants: a
// callback that only mutates in-memory managers should return in
// microseconds, while one that touches the backing store is allowed more
// slack before it is considered slow.
const (
	NormalWarnThreshold   = 5 * time.Millisecond
	DatabaseWarnThreshold = 100 * time.Millisecond
)

// Starter is a background loop the dispatcher brings up once the scheduler
// successfully registers, and hands a fresh driver reference to on every
// reregistration.
type Starter interface {
	Start(ctx context.Context)
}

// Dispatcher implements driver.Callbacks. It owns no goroutines of its own
// beyond what Starter.Start launches; every exported method runs on the
// calling (resource-master) goroutine, matching the single-threaded
// callback contract in spec.md §5.
type Dispatcher struct {
	handle driverHandle

	offers *offers.Manager
	nodes  *nodes.Manager
	exec   *execution.Manager
	recon  *reconcile.Set

	masterStore  store.MasterStore
	jobExecStore store.JobExecutionStore
	queueStore   store.QueueStore
	logFetcher   logfetch.Fetcher

	loops []Starter

	logger      zerolog.Logger
	frameworkID types.FrameworkID

	masterHostname string
	masterPort     int
	started        bool
}

// New creates a Dispatcher with no loops attached yet; call SetLoops once
// the loops that reference this Dispatcher as their DriverHandle have been
// constructed.
func New(
	offerMgr *offers.Manager,
	nodeMgr *nodes.Manager,
	execMgr *execution.Manager,
	reconSet *reconcile.Set,
	masterStore store.MasterStore,
	jobExecStore store.JobExecutionStore,
	queueStore store.QueueStore,
	logFetcher logfetch.Fetcher,
) *Dispatcher {
	return &Dispatcher{
		offers:       offerMgr,
		nodes:        nodeMgr,
		exec:         execMgr,
		recon:        reconSet,
		masterStore:  masterStore,
		jobExecStore: jobExecStore,
		queueStore:   queueStore,
		logFetcher:   logFetcher,
		logger:       log.WithComponent("dispatcher"),
	}
}

// SetLoops attaches the background loops Registered starts on first
// successful registration. Must be called before the Driver delivers its
// first Registered callback.
func (d *Dispatcher) SetLoops(loops ...Starter) {
	d.loops = loops
}

// Current exposes the dispatcher's rotatable driver reference, for
// the scheduling loop and anything else that must call back into the
// resource master outside of a callback.
func (d *Dispatcher) Current() driver.Driver {
	return d.handle.Current()
}

// instrument runs fn, recovering any panic, and records duration/threshold
// metrics under name, per spec.md §4.1's timing and fault-isolation
// requirements.
func (d *Dispatcher) instrument(name string, threshold time.Duration, fn func()) {
	timer := metrics.NewTimer()
	defer func() {
		elapsed := timer.Duration()
		timer.ObserveDurationVec(metrics.DispatchCallbackDuration, name)
		if elapsed > threshold {
			metrics.DispatchThresholdViolations.WithLabelValues(name).Inc()
			d.logger.Warn().Str("callback", name).Dur("elapsed", elapsed).Msg("callback exceeded warning threshold")
		} else {
			d.logger.Debug().Str("callback", name).Dur("elapsed", elapsed).Msg("callback completed")
		}
		if r := recover(); r != nil {
			metrics.DispatchPanicsRecovered.WithLabelValues(name).Inc()
			d.logger.Error().Str("callback", name).Interface("panic", r).Msg("recovered panic in callback")
		}
	}()
	fn()
}

// Registered implements driver.Callbacks.
func (d *Dispatcher) Registered(drv driver.Driver, frameworkID types.FrameworkID, master driver.MasterInfo) {
	d.instrument("registered", DatabaseWarnThreshold, func() {
		d.handle.Store(drv)
		d.frameworkID = frameworkID
		d.masterHostname = master.Hostname
		d.masterPort = master.Port

		if d.masterStore != nil {
			if err := d.masterStore.UpdateMaster(context.Background(), frameworkID, master.Hostname, master.Port); err != nil {
				d.logger.Error().Err(err).Msg("failed to persist master registration")
			}
		}
		d.logger.Info().Str("framework_id", string(frameworkID)).Str("master_hostname", master.Hostname).
			Int("master_port", master.Port).Msg("registered with resource master")

		if !d.started {
			d.started = true
			for _, l := range d.loops {
				l.Start(context.Background())
			}
		}

		d.reconcileRunningJobs(context.Background())
	})
}

// Reregistered implements driver.Callbacks. It updates the driver handle
// the already-running loops read through; it never restarts them.
func (d *Dispatcher) Reregistered(drv driver.Driver, master driver.MasterInfo) {
	d.instrument("reregistered", DatabaseWarnThreshold, func() {
		d.handle.Store(drv)
		d.masterHostname = master.Hostname
		d.masterPort = master.Port

		if d.masterStore != nil {
			if err := d.masterStore.UpdateMaster(context.Background(), d.frameworkID, master.Hostname, master.Port); err != nil {
				d.logger.Error().Err(err).Msg("failed to persist master reregistration")
			}
		}
		d.logger.Info().Str("master_hostname", master.Hostname).Int("master_port", master.Port).
			Msg("re-registered with resource master")

		d.reconcileRunningJobs(context.Background())
	})
}

// Disconnected implements driver.Callbacks.
func (d *Dispatcher) Disconnected(drv driver.Driver) {
	d.instrument("disconnected", NormalWarnThreshold, func() {
		if d.masterHostname != "" {
			d.logger.Error().Str("master_hostname", d.masterHostname).Int("master_port", d.masterPort).
				Msg("disconnected from resource master")
		} else {
			d.logger.Error().Msg("disconnected from resource master")
		}
	})
}

// ResourceOffers implements driver.Callbacks.
func (d *Dispatcher) ResourceOffers(drv driver.Driver, raw []driver.RawOffer) {
	d.instrument("resourceOffers", NormalWarnThreshold, func() {
		offerList := make([]types.ResourceOffer, 0, len(raw))
		for _, r := range raw {
			offerList = append(offerList, r.Offer)
			if d.nodes.IsLost(r.Offer.AgentID) {
				d.offers.Readmit(r.Offer.AgentID)
			}
			d.nodes.Add(types.Agent{ID: r.Offer.AgentID, Hostname: r.Hostname, Port: r.Port})
		}
		d.offers.AddNewOffers(offerList)
	})
}

// OfferRescinded implements driver.Callbacks.
func (d *Dispatcher) OfferRescinded(drv driver.Driver, offerID types.OfferID) {
	d.instrument("offerRescinded", NormalWarnThreshold, func() {
		d.offers.RemoveOffers([]types.OfferID{offerID})
	})
}

// StatusUpdate implements driver.Callbacks.
func (d *Dispatcher) StatusUpdate(drv driver.Driver, status driver.TaskStatus) {
	d.instrument("statusUpdate", DatabaseWarnThreshold, func() {
		// A status update resolves whatever uncertainty put this task in
		// the reconciliation set, regardless of what follows.
		d.recon.Remove(status.TaskID)
		// A panic while handling the update leaves the task unresolved, so
		// it goes back into the reconciliation set before instrument
		// recovers it.
		defer func() {
			if r := recover(); r != nil {
				d.recon.Add(status.TaskID)
				panic(r)
			}
		}()

		jobExeID, err := types.JobExeIDFromTaskID(status.TaskID)
		if err != nil {
			d.logger.Error().Err(err).Str("task_id", string(status.TaskID)).Msg("status update for malformed task id")
			return
		}
		d.logger.Info().Str("task_id", string(status.TaskID)).Str("state", status.State.String()).
			Msg("status update for task")

		exe, ok := d.exec.Get(jobExeID)
		if !ok {
			if d.queueStore != nil {
				when := time.Unix(0, status.When)
				if err := d.queueStore.HandleJobFailure(context.Background(), jobExeID, when, execution.ErrSchedulerLost); err != nil {
					d.logger.Error().Err(err).Str("job_exe_id", string(jobExeID)).
						Msg("failed to record scheduler-lost failure for unknown execution")
				}
			}
			return
		}

		d.applyStatus(exe, status)
		d.finalizeIfTerminal(jobExeID, exe)
	})
}

func (d *Dispatcher) applyStatus(exe *execution.RunningJobExecution, status driver.TaskStatus) {
	results := types.TaskResults{TaskID: status.TaskID, ExitCode: status.ExitCode, When: status.When}

	if status.State != types.TaskLost {
		if logs, err := d.fetchLogs(exe, status.TaskID); err != nil {
			d.logger.Error().Err(err).Str("task_id", string(status.TaskID)).Msg("error pulling logs for task")
		} else {
			results.Stdout, results.Stderr = logs.Stdout, logs.Stderr
		}
	}

	switch status.State {
	case types.TaskRunning:
		stdoutURL, stderrURL := d.taskURLs(exe.NodeHostname, exe.NodePort, status.TaskID)
		when := time.Unix(0, status.When)
		if err := exe.TaskRunning(status.TaskID, when, stdoutURL, stderrURL); err != nil {
			d.logger.Error().Err(err).Str("task_id", string(status.TaskID)).Msg("task_running transition rejected")
			// The status update resolved this task's reconciliation entry
			// above; since we could not apply it, put it back so the next
			// reconciliation cycle asks the resource master to resend it.
			d.recon.Add(status.TaskID)
		}
	case types.TaskFinished:
		exe.TaskComplete(results)
	case types.TaskLost:
		exe.TaskFail(results, execution.ErrMesosLost)
	case types.TaskError, types.TaskFailed, types.TaskKilled:
		exe.TaskFail(results, "")
	}
}

// fetchLogs retrieves the task's stdout/stderr, if a log fetcher and the
// task's published URLs are available.
func (d *Dispatcher) fetchLogs(exe *execution.RunningJobExecution, taskID types.TaskID) (logfetch.Logs, error) {
	if d.logFetcher == nil || exe.CurrentTask == nil {
		return logfetch.Logs{}, nil
	}
	return d.logFetcher.Fetch(context.Background(), taskID, exe.CurrentTask.StdoutURL, exe.CurrentTask.StderrURL)
}

// taskURLs derives the agent log-directory probe URLs for a task, per
// spec.md §4.3/§6: given (hostname, port, task_id), the agent exposes stdout
// and stderr at a well-known sandbox path.
func (d *Dispatcher) taskURLs(hostname string, port int, taskID types.TaskID) (string, string) {
	if hostname == "" {
		return "", ""
	}
	return logfetch.TaskLogURL(hostname, port, taskID, "stdout"), logfetch.TaskLogURL(hostname, port, taskID, "stderr")
}

// finalizeIfTerminal persists exe once it has reached a terminal state, and
// only then removes it from the running-execution manager. A failed write is
// the compensating action spec.md §9 calls out explicitly: exe stays in the
// manager and its current task id goes back into the reconciliation set, so
// the next reconciliation cycle (and a subsequent status update) gets another
// chance to resolve it.
func (d *Dispatcher) finalizeIfTerminal(jobExeID types.JobExeID, exe *execution.RunningJobExecution) {
	if !exe.IsFinished() {
		return
	}
	if err := d.persist(exe); err != nil {
		d.logger.Error().Err(err).Str("job_exe_id", string(jobExeID)).
			Msg("failed to persist terminal execution; keeping it in the manager pending reconciliation")
		if exe.CurrentTask != nil {
			d.recon.Add(exe.CurrentTask.ID)
		}
		return
	}
	d.exec.RemoveIfFinished(jobExeID)
}

func (d *Dispatcher) persist(exe *execution.RunningJobExecution) error {
	if d.jobExecStore == nil {
		return nil
	}
	jobExe := types.JobExecution{JobExeID: exe.JobExeID}
	return d.jobExecStore.Save(context.Background(), jobExe, exe.State().String(), exe.Results)
}

// FrameworkMessage implements driver.Callbacks.
func (d *Dispatcher) FrameworkMessage(drv driver.Driver, executorID string, agentID types.AgentID, data []byte) {
	d.instrument("frameworkMessage", NormalWarnThreshold, func() {
		d.logger.Debug().Str("executor_id", executorID).Str("agent_id", string(agentID)).
			Int("bytes", len(data)).Msg("framework message received")
	})
}

// SlaveLost implements driver.Callbacks.
func (d *Dispatcher) SlaveLost(drv driver.Driver, agentID types.AgentID) {
	d.instrument("slaveLost", DatabaseWarnThreshold, func() {
		agent, known := d.nodes.Get(agentID)
		if known {
			d.logger.Error().Str("hostname", agent.Hostname).Msg("node lost")
		} else {
			d.logger.Error().Str("agent_id", string(agentID)).Msg("node lost")
		}

		d.nodes.LostNode(agentID)
		d.offers.LostNode(agentID)

		if !known {
			return
		}
		started := time.Now()
		for _, exe := range d.exec.OnAgent(agent.Hostname, agent.Port) {
			exe.ExecutionLost(started)
			d.finalizeIfTerminal(exe.JobExeID, exe)
		}
	})
}

// ExecutorLost implements driver.Callbacks.
func (d *Dispatcher) ExecutorLost(drv driver.Driver, executorID string, agentID types.AgentID, status int) {
	d.instrument("executorLost", NormalWarnThreshold, func() {
		agent, known := d.nodes.Get(agentID)
		if known {
			d.logger.Error().Str("executor_id", executorID).Str("hostname", agent.Hostname).Msg("executor lost")
		} else {
			d.logger.Error().Str("executor_id", executorID).Str("agent_id", string(agentID)).Msg("executor lost")
		}
	})
}

// Error implements driver.Callbacks.
func (d *Dispatcher) Error(drv driver.Driver, message string) {
	d.instrument("error", NormalWarnThreshold, func() {
		d.logger.Error().Str("message", message).Msg("resource master reported an error")
	})
}

// Shutdown implements driver.Callbacks.
func (d *Dispatcher) Shutdown() {
	d.logger.Info().Msg("shutting down")
}

// reconcileRunningJobs mirrors the original scheduler's
// _reconcile_running_jobs: every execution the backing store still
// considers running either has its current task added to the
// reconciliation set (if the in-memory manager already knows about it) or
// is failed outright as scheduler-lost.
func (d *Dispatcher) reconcileRunningJobs(ctx context.Context) {
	if d.jobExecStore == nil {
		return
	}
	records, err := d.jobExecStore.GetRunning(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to query running executions for reconciliation")
		return
	}

	var taskIDs []types.TaskID
	for _, rec := range records {
		exe, ok := d.exec.Get(rec.JobExeID)
		if ok {
			if exe.CurrentTask != nil {
				taskIDs = append(taskIDs, exe.CurrentTask.ID)
			}
			continue
		}
		if d.queueStore != nil {
			if err := d.queueStore.HandleJobFailure(ctx, rec.JobExeID, time.Now(), execution.ErrSchedulerLost); err != nil {
				d.logger.Error().Err(err).Str("job_exe_id", string(rec.JobExeID)).
					Msg("failed to fail scheduler-lost execution during reconciliation sweep")
			}
		}
	}
	d.recon.AddAll(taskIDs)
	d.logger.Info().Int("count", len(taskIDs)).Msg("queued running executions for reconciliation")
}
