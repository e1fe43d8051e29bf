// Package execution owns the running-execution manager: the map of
// in-flight job executions, their per-task state machines, and the
// accumulated task results. Grounded on the state-transition logic of
// RunningJobExecution.task_running/task_complete/task_fail/execution_lost in
// the original Scale scheduler, and on the teacher's worker/scheduler task
// lifecycle (cuemby-warren pkg/worker, pkg/scheduler).
package execution

import (
	"fmt"
	"time"

	"github.com/cuemby/schedcore/pkg/types"
)

// ExeState is the lifecycle state of a RunningJobExecution.
type ExeState int

const (
	StateQueued ExeState = iota
	StateLaunched
	StateRunning
	StateFinished
	StateFailed
	StateLost
)

func (s ExeState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateLaunched:
		return "launched"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	case StateLost:
		return "lost"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of finished, failed or lost.
func (s ExeState) IsTerminal() bool {
	return s == StateFinished || s == StateFailed || s == StateLost
}

// Built-in error names attached to terminal transitions, per spec.md §7 and
// §4.3.
const (
	ErrMesosLost    = "mesos-lost"
	ErrNodeLost     = "node-lost"
	ErrSchedulerLost = "scheduler-lost"
)

// RunningJobExecution tracks a single in-flight job execution: its current
// task, state machine, transition timestamps and accumulated results.
type RunningJobExecution struct {
	JobExeID types.JobExeID

	NodeHostname string
	NodePort     int

	CurrentTask *TaskHandle
	Tasks       []*TaskHandle

	state ExeState

	// transitionedAt records the wall-clock time of the most recent state
	// transition, per task id, keyed by the task id active at the time.
	transitionedAt map[types.TaskID]time.Time

	Results []types.TaskResults

	// BuiltinError is set on any terminal transition that attaches a
	// well-known error (mesos-lost, node-lost); empty for a plain FAILED
	// transition driven by the resource master.
	BuiltinError string
}

// TaskHandle is a single task dispatched for this execution.
type TaskHandle struct {
	ID          types.TaskID
	Attempt     int
	StdoutURL   string
	StderrURL   string
}

// NewRunningJobExecution creates a fresh execution in the queued state for
// the given hostname/port (needed to build log URLs later) with no task
// dispatched yet.
func NewRunningJobExecution(jobExeID types.JobExeID, hostname string, port int) *RunningJobExecution {
	return &RunningJobExecution{
		JobExeID:       jobExeID,
		NodeHostname:   hostname,
		NodePort:       port,
		state:          StateQueued,
		transitionedAt: make(map[types.TaskID]time.Time),
	}
}

// State returns the execution's current lifecycle state.
func (e *RunningJobExecution) State() ExeState {
	return e.state
}

// IsFinished reports whether this execution has reached a terminal state.
// The running-execution manager removes an execution from its map only when
// this returns true.
func (e *RunningJobExecution) IsFinished() bool {
	return e.state.IsTerminal()
}

// Launch records that a task has been dispatched to the Driver under a
// specific offer, moving the execution from queued to launched.
func (e *RunningJobExecution) Launch(taskID types.TaskID, attempt int) {
	task := &TaskHandle{ID: taskID, Attempt: attempt}
	e.CurrentTask = task
	e.Tasks = append(e.Tasks, task)
	e.state = StateLaunched
	e.transitionedAt[taskID] = time.Now()
}

// TaskRunning transitions launched -> running on a RUNNING status update.
// stdoutURL/stderrURL are derived by the caller from (hostname, port,
// task_id) via the log-directory probe.
func (e *RunningJobExecution) TaskRunning(taskID types.TaskID, when time.Time, stdoutURL, stderrURL string) error {
	if e.CurrentTask == nil || e.CurrentTask.ID != taskID {
		return fmt.Errorf("execution: RUNNING update for unknown current task %q on execution %s", taskID, e.JobExeID)
	}
	e.state = StateRunning
	e.CurrentTask.StdoutURL = stdoutURL
	e.CurrentTask.StderrURL = stderrURL
	e.transitionedAt[taskID] = when
	return nil
}

// TaskComplete transitions any state -> finished on a FINISHED status
// update, recording the results (exit code, timestamp, best-effort
// stdout/stderr already populated on results by the caller).
func (e *RunningJobExecution) TaskComplete(results types.TaskResults) {
	e.state = StateFinished
	e.Results = append(e.Results, results)
	e.transitionedAt[results.TaskID] = time.Unix(0, results.When)
}

// TaskFail transitions any state -> failed (or -> lost, if builtinErr is
// ErrMesosLost) on an ERROR/FAILED/KILLED/LOST status update. Callers must
// not populate results.Stdout/Stderr for a LOST update: spec.md §4.3
// forbids fetching logs for a presumed-unreachable agent.
func (e *RunningJobExecution) TaskFail(results types.TaskResults, builtinErr string) {
	if builtinErr == ErrMesosLost {
		e.state = StateLost
	} else {
		e.state = StateFailed
	}
	e.BuiltinError = builtinErr
	e.Results = append(e.Results, results)
	e.transitionedAt[results.TaskID] = time.Unix(0, results.When)
}

// ExecutionLost transitions any state -> lost because the node the current
// task was running on was declared lost, per spec.md §4.1 slaveLost
// handling. This path never fetches logs (the agent is presumed
// unreachable) and always attaches the node-lost built-in error.
func (e *RunningJobExecution) ExecutionLost(startedTS time.Time) {
	e.state = StateLost
	e.BuiltinError = ErrNodeLost
	if e.CurrentTask != nil {
		e.transitionedAt[e.CurrentTask.ID] = startedTS
	}
}
