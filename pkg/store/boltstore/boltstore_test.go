package boltstore

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/schedcore/pkg/execution"
	"github.com/cuemby/schedcore/pkg/store"
	"github.com/cuemby/schedcore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpdateMasterPersists(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.UpdateMaster(ctx, "fw-1", "master", 5050))
}

func TestEnqueueDequeueFIFOOrder(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	for i, id := range []types.JobExeID{"exe-1", "exe-2", "exe-3"} {
		exe := types.JobExecution{JobExeID: id, QueuedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, db.Enqueue(ctx, exe))
	}

	out, err := db.Dequeue(ctx, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, types.JobExeID("exe-1"), out[0].JobExeID)
	assert.Equal(t, types.JobExeID("exe-2"), out[1].JobExeID)

	rest, err := db.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, types.JobExeID("exe-3"), rest[0].JobExeID)
}

func TestSaveAndGetRunningFiltersByState(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, db.Save(ctx, types.JobExecution{JobExeID: "running-1"}, execution.StateRunning.String(), nil))
	require.NoError(t, db.Save(ctx, types.JobExecution{JobExeID: "finished-1"}, execution.StateFinished.String(), nil))

	running, err := db.GetRunning(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, types.JobExeID("running-1"), running[0].JobExeID)
}

func TestHandleJobFailureMarksFailed(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.HandleJobFailure(ctx, "exe-x", time.Now(), execution.ErrSchedulerLost))

	running, err := db.GetRunning(ctx)
	require.NoError(t, err)
	assert.Empty(t, running, "a failed execution must not be reported as running")
}

func TestSyncNodesReadsSeededRecords(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.PutNode(ctx, types.Agent{ID: "a1", Hostname: "node-a", Port: 5051}))

	agents, err := db.SyncNodes(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "node-a", agents[0].Hostname)
}

func TestSyncSchedulerDefaultsToNotPaused(t *testing.T) {
	db := openTestStore(t)
	rec, err := db.SyncScheduler(context.Background())
	require.NoError(t, err)
	assert.False(t, rec.IsPaused)
}

func TestSyncSchedulerReadsSeededPauseFlag(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.PutScheduler(ctx, store.SchedulerRecord{IsPaused: true}))

	rec, err := db.SyncScheduler(ctx)
	require.NoError(t, err)
	assert.True(t, rec.IsPaused)
}

func TestSyncJobTypesReadsSeededRecords(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.PutJobType(ctx, store.JobTypeRecord{Name: "batch", Resources: types.NodeResources{CPUs: 2}}))

	jobTypes, err := db.SyncJobTypes(ctx)
	require.NoError(t, err)
	require.Len(t, jobTypes, 1)
	assert.Equal(t, "batch", jobTypes[0].Name)
}
