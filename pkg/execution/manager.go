package execution

import (
	"sync"

	"github.com/cuemby/schedcore/pkg/log"
	"github.com/cuemby/schedcore/pkg/metrics"
	"github.com/cuemby/schedcore/pkg/types"
	"github.com/rs/zerolog"
)

// Manager is the running-execution manager from spec.md §2/§4.3: a map of
// live job executions, routing status updates to the right per-execution
// state machine and enforcing the terminal-removal invariant.
type Manager struct {
	mu     sync.RWMutex
	byExe  map[types.JobExeID]*RunningJobExecution
	// taskIndex maps every task id ever registered for a still-live
	// execution back to its job execution, so a status update need not
	// walk byExe to find its owner.
	taskIndex map[types.TaskID]types.JobExeID
	logger    zerolog.Logger
}

// NewManager creates an empty running-execution manager.
func NewManager() *Manager {
	return &Manager{
		byExe:     make(map[types.JobExeID]*RunningJobExecution),
		taskIndex: make(map[types.TaskID]types.JobExeID),
		logger:    log.WithComponent("execution-manager"),
	}
}

// Add registers a newly launched execution and indexes its current task id.
func (m *Manager) Add(exe *RunningJobExecution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byExe[exe.JobExeID] = exe
	if exe.CurrentTask != nil {
		m.taskIndex[exe.CurrentTask.ID] = exe.JobExeID
	}
	metrics.RunningExecutions.Set(float64(len(m.byExe)))
}

// IndexTask registers taskID as belonging to an already-added execution,
// for executions that relaunch a new task attempt after a failure.
func (m *Manager) IndexTask(taskID types.TaskID, jobExeID types.JobExeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskIndex[taskID] = jobExeID
}

// Get returns the execution for a job execution id, if known.
func (m *Manager) Get(jobExeID types.JobExeID) (*RunningJobExecution, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exe, ok := m.byExe[jobExeID]
	return exe, ok
}

// GetByTask returns the execution owning taskID, if known.
func (m *Manager) GetByTask(taskID types.TaskID) (*RunningJobExecution, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobExeID, ok := m.taskIndex[taskID]
	if !ok {
		return nil, false
	}
	exe, ok := m.byExe[jobExeID]
	return exe, ok
}

// RemoveIfFinished removes exe from the manager iff it has reached a
// terminal state, enforcing spec.md §3's terminal-removal invariant. Returns
// whether it was removed.
func (m *Manager) RemoveIfFinished(jobExeID types.JobExeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	exe, ok := m.byExe[jobExeID]
	if !ok || !exe.IsFinished() {
		return false
	}
	delete(m.byExe, jobExeID)
	for _, t := range exe.Tasks {
		delete(m.taskIndex, t.ID)
	}
	metrics.RunningExecutions.Set(float64(len(m.byExe)))
	return true
}

// OnAgent returns every currently-tracked execution whose current task is
// running on the given hostname/port pair, for slaveLost handling.
func (m *Manager) OnAgent(hostname string, port int) []*RunningJobExecution {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*RunningJobExecution
	for _, exe := range m.byExe {
		if exe.NodeHostname == hostname && exe.NodePort == port {
			out = append(out, exe)
		}
	}
	return out
}

// Len returns the number of tracked executions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byExe)
}
