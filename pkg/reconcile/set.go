// Package reconcile implements the reconciliation set and reconciliation
// loop from spec.md §4.5, grounded on the original scheduler's recon_thread
// (original_source/scale/scheduler/recon.py pattern of a long-interval
// ReconcileTasks sweep) and the teacher's reconciler.go ticker-loop shape.
package reconcile

import (
	"sync"

	"github.com/cuemby/schedcore/pkg/metrics"
	"github.com/cuemby/schedcore/pkg/types"
)

// Set is the reconciliation set: task ids whose status the scheduler is
// uncertain about and wants the resource master to resend. Safe for
// concurrent use; Add/Remove are idempotent per spec.md §4.5.
type Set struct {
	mu  sync.Mutex
	ids map[types.TaskID]bool
}

// NewSet creates an empty reconciliation set.
func NewSet() *Set {
	return &Set{ids: make(map[types.TaskID]bool)}
}

// Add puts taskID in the set. Adding an id already present is a no-op.
func (s *Set) Add(taskID types.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[taskID] = true
	metrics.ReconciliationSetSize.Set(float64(len(s.ids)))
}

// AddAll puts every id in taskIDs into the set.
func (s *Set) AddAll(taskIDs []types.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range taskIDs {
		s.ids[id] = true
	}
	metrics.ReconciliationSetSize.Set(float64(len(s.ids)))
}

// Remove takes taskID out of the set. Removing an id not present is a
// no-op, per the original's recon_thread.remove_task_id being called
// unconditionally on every status update.
func (s *Set) Remove(taskID types.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, taskID)
	metrics.ReconciliationSetSize.Set(float64(len(s.ids)))
}

// Snapshot returns a copy of every id currently pending reconciliation.
func (s *Set) Snapshot() []types.TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TaskID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

// Len returns the number of ids currently pending reconciliation.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
