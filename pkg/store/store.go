// Package store defines the backing-store collaborators schedcore depends
// on (spec.md §6): the durable record of the current master, the set of
// running job executions, queue failure handling, and the sync sources for
// the database-sync loop. A bbolt-backed reference implementation lives in
// store/boltstore, grounded on the teacher's pkg/storage/boltdb.go.
package store

import (
	"context"
	"time"

	"github.com/cuemby/schedcore/pkg/types"
)

// RunningExecutionRecord is the durable projection of a job execution that
// the database considers still running, as returned by
// JobExecutionStore.GetRunning for the reconciliation sweep the dispatcher
// runs on registration and reregistration (spec.md §4.5).
type RunningExecutionRecord struct {
	JobExeID     types.JobExeID
	CurrentTask  types.TaskID
	HasTaskID    bool
	NodeHostname string
	NodePort     int
}

// MasterStore persists which resource master is currently registered, so a
// process restart or failover can be diagnosed from durable state.
type MasterStore interface {
	UpdateMaster(ctx context.Context, frameworkID types.FrameworkID, hostname string, port int) error
}

// JobExecutionStore is the durable execution ledger.
type JobExecutionStore interface {
	// GetRunning returns every execution the database currently believes is
	// running, for the reconciliation sweep run on (re)registration.
	GetRunning(ctx context.Context) ([]RunningExecutionRecord, error)
	// Save upserts the latest known state of a single execution.
	Save(ctx context.Context, exe types.JobExecution, state string, results []types.TaskResults) error
}

// QueueStore is the work queue collaborator: job executions wait here
// before being dequeued by the scheduling loop, and failures unknown to any
// in-memory manager are routed back here per spec.md §4.5's "unknown
// execution" edge case.
type QueueStore interface {
	// Dequeue returns up to limit queued job executions, FIFO order.
	Dequeue(ctx context.Context, limit int) ([]types.JobExecution, error)
	// Enqueue returns a job execution to the queue; used to put back
	// executions the scheduling loop could not fit an offer to this pass.
	Enqueue(ctx context.Context, exe types.JobExecution) error
	// HandleJobFailure fails a job execution the scheduler no longer has any
	// record of, attributing the failure to errorName (e.g. "scheduler-lost").
	HandleJobFailure(ctx context.Context, jobExeID types.JobExeID, when time.Time, errorName string) error
}

// JobTypeSyncSource supplies the job-type definitions the scheduling loop
// needs (resource limits, scheduling constraints) for the database-sync
// loop's JobTypeManager.sync_with_database equivalent.
type JobTypeSyncSource interface {
	SyncJobTypes(ctx context.Context) ([]JobTypeRecord, error)
}

// JobTypeRecord is a single job type's scheduling-relevant definition.
type JobTypeRecord struct {
	Name      string
	Resources types.NodeResources
}

// SchedulerSyncSource supplies the process-wide scheduler configuration
//(e.g. master host/port, enabled flag) refreshed by the database-sync loop.
type SchedulerSyncSource interface {
	SyncScheduler(ctx context.Context) (SchedulerRecord, error)
}

// SchedulerRecord is the scheduler's own durable configuration row.
type SchedulerRecord struct {
	MasterHostname string
	MasterPort     int
	IsPaused       bool
}

// NodeSyncSource supplies the authoritative node list refreshed by the
// database-sync loop's NodeManager.sync_with_database equivalent.
type NodeSyncSource interface {
	SyncNodes(ctx context.Context) ([]types.Agent, error)
}
