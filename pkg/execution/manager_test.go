package execution

import (
	"testing"

	"github.com/cuemby/schedcore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerAddGetByTask(t *testing.T) {
	m := NewManager()
	exe := NewRunningJobExecution("exe-1", "host-a", 5051)
	taskID := types.NewTaskID("exe-1", 1)
	exe.Launch(taskID, 1)
	m.Add(exe)

	got, ok := m.GetByTask(taskID)
	require.True(t, ok)
	assert.Equal(t, exe, got)
	assert.Equal(t, 1, m.Len())
}

func TestManagerRemoveIfFinishedEnforcesTerminalInvariant(t *testing.T) {
	m := NewManager()
	exe := NewRunningJobExecution("exe-1", "host-a", 5051)
	taskID := types.NewTaskID("exe-1", 1)
	exe.Launch(taskID, 1)
	m.Add(exe)

	assert.False(t, m.RemoveIfFinished("exe-1"), "launched execution must not be removable")
	_, ok := m.Get("exe-1")
	assert.True(t, ok)

	exe.TaskComplete(types.TaskResults{TaskID: taskID})
	assert.True(t, m.RemoveIfFinished("exe-1"))

	_, ok = m.Get("exe-1")
	assert.False(t, ok)
	_, ok = m.GetByTask(taskID)
	assert.False(t, ok, "task index must be cleaned up alongside the execution")
	assert.Equal(t, 0, m.Len())
}

func TestManagerOnAgent(t *testing.T) {
	m := NewManager()
	exeA := NewRunningJobExecution("exe-a", "host-a", 5051)
	exeA.Launch(types.NewTaskID("exe-a", 1), 1)
	exeB := NewRunningJobExecution("exe-b", "host-b", 5051)
	exeB.Launch(types.NewTaskID("exe-b", 1), 1)
	m.Add(exeA)
	m.Add(exeB)

	onHostA := m.OnAgent("host-a", 5051)
	require.Len(t, onHostA, 1)
	assert.Equal(t, types.JobExeID("exe-a"), onHostA[0].JobExeID)
}
