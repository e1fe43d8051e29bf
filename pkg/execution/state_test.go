package execution

import (
	"testing"
	"time"

	"github.com/cuemby/schedcore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunningJobExecutionLifecycle(t *testing.T) {
	exe := NewRunningJobExecution("exe-1", "host-a", 5051)
	assert.Equal(t, StateQueued, exe.State())
	assert.False(t, exe.IsFinished())

	taskID := types.NewTaskID("exe-1", 1)
	exe.Launch(taskID, 1)
	assert.Equal(t, StateLaunched, exe.State())
	require.NotNil(t, exe.CurrentTask)
	assert.Equal(t, taskID, exe.CurrentTask.ID)

	err := exe.TaskRunning(taskID, time.Now(), "http://host-a:5051/stdout", "http://host-a:5051/stderr")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, exe.State())
	assert.Equal(t, "http://host-a:5051/stdout", exe.CurrentTask.StdoutURL)

	exe.TaskComplete(types.TaskResults{TaskID: taskID, When: time.Now().UnixNano()})
	assert.True(t, exe.IsFinished())
	assert.Equal(t, StateFinished, exe.State())
	require.Len(t, exe.Results, 1)
}

func TestRunningJobExecutionTaskRunningRejectsWrongTask(t *testing.T) {
	exe := NewRunningJobExecution("exe-2", "host-a", 5051)
	taskID := types.NewTaskID("exe-2", 1)
	exe.Launch(taskID, 1)

	err := exe.TaskRunning(types.NewTaskID("exe-2", 2), time.Now(), "", "")
	assert.Error(t, err)
	assert.Equal(t, StateLaunched, exe.State())
}

func TestRunningJobExecutionTaskFailMesosLostBecomesLost(t *testing.T) {
	exe := NewRunningJobExecution("exe-3", "host-a", 5051)
	taskID := types.NewTaskID("exe-3", 1)
	exe.Launch(taskID, 1)

	exe.TaskFail(types.TaskResults{TaskID: taskID}, ErrMesosLost)
	assert.Equal(t, StateLost, exe.State())
	assert.Equal(t, ErrMesosLost, exe.BuiltinError)
	assert.True(t, exe.IsFinished())
}

func TestRunningJobExecutionTaskFailPlainBecomesFailed(t *testing.T) {
	exe := NewRunningJobExecution("exe-4", "host-a", 5051)
	taskID := types.NewTaskID("exe-4", 1)
	exe.Launch(taskID, 1)

	exe.TaskFail(types.TaskResults{TaskID: taskID}, "")
	assert.Equal(t, StateFailed, exe.State())
	assert.True(t, exe.IsFinished())
}

func TestRunningJobExecutionExecutionLost(t *testing.T) {
	exe := NewRunningJobExecution("exe-5", "host-a", 5051)
	taskID := types.NewTaskID("exe-5", 1)
	exe.Launch(taskID, 1)

	exe.ExecutionLost(time.Now())
	assert.Equal(t, StateLost, exe.State())
	assert.Equal(t, ErrNodeLost, exe.BuiltinError)
	assert.True(t, exe.IsFinished())
}
