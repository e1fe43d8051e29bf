// Package boltstore is a bbolt-backed reference implementation of the
// store collaborator interfaces, adapted from the teacher's
// pkg/storage/boltdb.go bucket-per-entity pattern.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/schedcore/pkg/store"
	"github.com/cuemby/schedcore/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketMaster        = []byte("master")
	bucketJobExecutions = []byte("job_executions")
	bucketQueue         = []byte("queue")
	bucketJobTypes      = []byte("job_types")
	bucketScheduler     = []byte("scheduler")
	bucketNodes         = []byte("nodes")
)

const masterKey = "current"
const schedulerKey = "current"

// masterRecord is the JSON envelope persisted in bucketMaster.
type masterRecord struct {
	FrameworkID types.FrameworkID `json:"framework_id"`
	Hostname    string            `json:"hostname"`
	Port        int               `json:"port"`
}

// jobExecutionRecord is the JSON envelope persisted in bucketJobExecutions.
type jobExecutionRecord struct {
	JobExeID     types.JobExeID        `json:"job_exe_id"`
	JobType      string                `json:"job_type"`
	Resources    types.NodeResources   `json:"resources"`
	State        string                `json:"state"`
	Results      []types.TaskResults   `json:"results,omitempty"`
	CurrentTask  types.TaskID          `json:"current_task,omitempty"`
	HasTaskID    bool                  `json:"has_task_id"`
	NodeHostname string                `json:"node_hostname,omitempty"`
	NodePort     int                   `json:"node_port,omitempty"`
}

// BoltStore implements store.MasterStore, store.JobExecutionStore and
// store.QueueStore on top of a single bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// Open creates or opens the bbolt database under dataDir.
func Open(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "schedcore.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", dbPath, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketMaster, bucketJobExecutions, bucketQueue, bucketJobTypes, bucketScheduler, bucketNodes} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("boltstore: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// UpdateMaster implements store.MasterStore.
func (s *BoltStore) UpdateMaster(ctx context.Context, frameworkID types.FrameworkID, hostname string, port int) error {
	rec := masterRecord{FrameworkID: frameworkID, Hostname: hostname, Port: port}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("boltstore: marshal master record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMaster).Put([]byte(masterKey), data)
	})
}

// GetRunning implements store.JobExecutionStore.
func (s *BoltStore) GetRunning(ctx context.Context) ([]store.RunningExecutionRecord, error) {
	var out []store.RunningExecutionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobExecutions)
		return b.ForEach(func(k, v []byte) error {
			var rec jobExecutionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("boltstore: unmarshal job execution %s: %w", k, err)
			}
			if rec.State != "running" && rec.State != "launched" && rec.State != "queued" {
				return nil
			}
			out = append(out, store.RunningExecutionRecord{
				JobExeID:     rec.JobExeID,
				CurrentTask:  rec.CurrentTask,
				HasTaskID:    rec.HasTaskID,
				NodeHostname: rec.NodeHostname,
				NodePort:     rec.NodePort,
			})
			return nil
		})
	})
	return out, err
}

// Save implements store.JobExecutionStore.
func (s *BoltStore) Save(ctx context.Context, exe types.JobExecution, state string, results []types.TaskResults) error {
	rec := jobExecutionRecord{
		JobExeID:  exe.JobExeID,
		JobType:   exe.JobType,
		Resources: exe.Resources,
		State:     state,
		Results:   results,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("boltstore: marshal job execution %s: %w", exe.JobExeID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobExecutions).Put([]byte(exe.JobExeID), data)
	})
}

// Dequeue implements store.QueueStore. bbolt iterates keys in lexical byte
// order, which for monotonically-assigned queue keys is FIFO order.
func (s *BoltStore) Dequeue(ctx context.Context, limit int) ([]types.JobExecution, error) {
	var out []types.JobExecution
	var consumed [][]byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		c := b.Cursor()
		for k, v := c.First(); k != nil && len(out) < limit; k, v = c.Next() {
			var exe types.JobExecution
			if err := json.Unmarshal(v, &exe); err != nil {
				return fmt.Errorf("boltstore: unmarshal queued execution %s: %w", k, err)
			}
			out = append(out, exe)
			consumed = append(consumed, append([]byte(nil), k...))
		}
		for _, k := range consumed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// Enqueue adds a job execution to the durable queue, keyed so that
// iteration order matches arrival order.
func (s *BoltStore) Enqueue(ctx context.Context, exe types.JobExecution) error {
	key := fmt.Sprintf("%020d_%s", exe.QueuedAt.UnixNano(), exe.JobExeID)
	data, err := json.Marshal(exe)
	if err != nil {
		return fmt.Errorf("boltstore: marshal queued execution %s: %w", exe.JobExeID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQueue).Put([]byte(key), data)
	})
}

// HandleJobFailure implements store.QueueStore by overwriting the
// execution's record with one in the "failed" state. Neither errorName nor
// when is stored.
func (s *BoltStore) HandleJobFailure(ctx context.Context, jobExeID types.JobExeID, when time.Time, errorName string) error {
	rec := jobExecutionRecord{
		JobExeID: jobExeID,
		State:    "failed",
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("boltstore: marshal failure record for %s: %w", jobExeID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobExecutions).Put([]byte(jobExeID), data)
	})
}

// SyncNodes implements store.NodeSyncSource by reading every node record
// an operator has written into bucketNodes (e.g. via an admin tool); in a
// standalone deployment this bucket is typically empty and sync is a no-op.
func (s *BoltStore) SyncNodes(ctx context.Context) ([]types.Agent, error) {
	var out []types.Agent
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.ForEach(func(k, v []byte) error {
			var a types.Agent
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("boltstore: unmarshal node %s: %w", k, err)
			}
			out = append(out, a)
			return nil
		})
	})
	return out, err
}

// PutNode upserts a node record, for admin tooling or tests to seed the
// authoritative node list that SyncNodes later reads back.
func (s *BoltStore) PutNode(ctx context.Context, a types.Agent) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("boltstore: marshal node %s: %w", a.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).Put([]byte(a.ID), data)
	})
}

// SyncScheduler implements store.SchedulerSyncSource by reading the single
// scheduler configuration row an operator (or admin tool) has written into
// bucketScheduler; an empty bucket yields the zero value, i.e. not paused.
func (s *BoltStore) SyncScheduler(ctx context.Context) (store.SchedulerRecord, error) {
	var rec store.SchedulerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketScheduler).Get([]byte(schedulerKey))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

// PutScheduler upserts the scheduler configuration row, for admin tooling or
// tests to pause/resume scheduling or update the recorded master address.
func (s *BoltStore) PutScheduler(ctx context.Context, rec store.SchedulerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("boltstore: marshal scheduler record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScheduler).Put([]byte(schedulerKey), data)
	})
}

// SyncJobTypes implements store.JobTypeSyncSource by reading every job-type
// definition an operator has written into bucketJobTypes.
func (s *BoltStore) SyncJobTypes(ctx context.Context) ([]store.JobTypeRecord, error) {
	var out []store.JobTypeRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobTypes)
		return b.ForEach(func(k, v []byte) error {
			var r store.JobTypeRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("boltstore: unmarshal job type %s: %w", k, err)
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

// PutJobType upserts a job-type definition, for admin tooling or tests to
// seed the definitions SyncJobTypes later reads back.
func (s *BoltStore) PutJobType(ctx context.Context, r store.JobTypeRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("boltstore: marshal job type %s: %w", r.Name, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobTypes).Put([]byte(r.Name), data)
	})
}
