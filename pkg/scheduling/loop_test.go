package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/schedcore/pkg/driver"
	"github.com/cuemby/schedcore/pkg/driver/fake"
	"github.com/cuemby/schedcore/pkg/execution"
	"github.com/cuemby/schedcore/pkg/nodes"
	"github.com/cuemby/schedcore/pkg/offers"
	"github.com/cuemby/schedcore/pkg/reconcile"
	"github.com/cuemby/schedcore/pkg/store"
	"github.com/cuemby/schedcore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu      sync.Mutex
	pending []types.JobExecution
}

func (q *fakeQueue) Dequeue(ctx context.Context, limit int) ([]types.JobExecution, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit > len(q.pending) {
		limit = len(q.pending)
	}
	out := q.pending[:limit]
	q.pending = q.pending[limit:]
	return out, nil
}

func (q *fakeQueue) Enqueue(ctx context.Context, exe types.JobExecution) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, exe)
	return nil
}

func (q *fakeQueue) HandleJobFailure(ctx context.Context, jobExeID types.JobExeID, when time.Time, errorName string) error {
	return nil
}

type driverHandle struct{ d driver.Driver }

func (h *driverHandle) Current() driver.Driver { return h.d }

func TestSchedulingPassLaunchesFittingExecution(t *testing.T) {
	offerMgr := offers.New()
	nodeMgr := nodes.New()
	execMgr := execution.NewManager()
	reconSet := reconcile.NewSet()
	fd := fake.New()
	handle := &driverHandle{d: fd}

	nodeMgr.Add(types.Agent{ID: "a1", Hostname: "node-a", Port: 5051})
	offerMgr.AddNewOffers([]types.ResourceOffer{
		{OfferID: "o1", AgentID: "a1", Resources: types.NodeResources{CPUs: 4, MemMB: 4096, DiskMB: 10240}},
	})

	queue := &fakeQueue{pending: []types.JobExecution{
		{JobExeID: "exe-1", Resources: types.NodeResources{CPUs: 1, MemMB: 512}, TaskInfo: []byte("payload")},
	}}

	loop := NewLoop(queue, offerMgr, nodeMgr, execMgr, reconSet, handle, nil, Config{})
	loop.pass(context.Background())

	require.Len(t, fd.Launches, 1)
	assert.Equal(t, 1, execMgr.Len())
	assert.Equal(t, 1, reconSet.Len())
}

func TestSchedulingPassRejectsWhenNothingFits(t *testing.T) {
	offerMgr := offers.New()
	nodeMgr := nodes.New()
	execMgr := execution.NewManager()
	reconSet := reconcile.NewSet()
	fd := fake.New()
	handle := &driverHandle{d: fd}

	nodeMgr.Add(types.Agent{ID: "a1", Hostname: "node-a", Port: 5051})
	offerMgr.AddNewOffers([]types.ResourceOffer{
		{OfferID: "o1", AgentID: "a1", Resources: types.NodeResources{CPUs: 1, MemMB: 512}},
	})

	queue := &fakeQueue{pending: []types.JobExecution{
		{JobExeID: "exe-big", Resources: types.NodeResources{CPUs: 8, MemMB: 8192}},
	}}

	loop := NewLoop(queue, offerMgr, nodeMgr, execMgr, reconSet, handle, nil, Config{})
	loop.pass(context.Background())

	assert.Empty(t, fd.Launches)
	assert.Equal(t, 0, execMgr.Len())
	require.Len(t, queue.pending, 1, "unfit execution must be returned to the queue")
	assert.Equal(t, types.JobExeID("exe-big"), queue.pending[0].JobExeID)
}

type fakeSchedulerState struct{ rec store.SchedulerRecord }

func (f fakeSchedulerState) Current() store.SchedulerRecord { return f.rec }

func TestSchedulingPassSkipsDequeueWhenPaused(t *testing.T) {
	offerMgr := offers.New()
	nodeMgr := nodes.New()
	execMgr := execution.NewManager()
	reconSet := reconcile.NewSet()
	fd := fake.New()
	handle := &driverHandle{d: fd}

	nodeMgr.Add(types.Agent{ID: "a1", Hostname: "node-a", Port: 5051})
	offerMgr.AddNewOffers([]types.ResourceOffer{
		{OfferID: "o1", AgentID: "a1", Resources: types.NodeResources{CPUs: 4, MemMB: 4096, DiskMB: 10240}},
	})

	queue := &fakeQueue{pending: []types.JobExecution{
		{JobExeID: "exe-1", Resources: types.NodeResources{CPUs: 1, MemMB: 512}, TaskInfo: []byte("payload")},
	}}

	loop := NewLoop(queue, offerMgr, nodeMgr, execMgr, reconSet, handle, fakeSchedulerState{rec: store.SchedulerRecord{IsPaused: true}}, Config{})
	loop.pass(context.Background())

	assert.Empty(t, fd.Launches)
	assert.Equal(t, 0, execMgr.Len())
	require.Len(t, queue.pending, 1, "paused scheduler must not dequeue")
}

func TestDeclineAgedOffers(t *testing.T) {
	offerMgr := offers.New()
	nodeMgr := nodes.New()
	execMgr := execution.NewManager()
	reconSet := reconcile.NewSet()
	fd := fake.New()
	handle := &driverHandle{d: fd}

	offerMgr.AddNewOffers([]types.ResourceOffer{
		{OfferID: "old", AgentID: "a1", ReceivedAt: time.Now().Add(-time.Hour)},
	})

	loop := NewLoop(&fakeQueue{}, offerMgr, nodeMgr, execMgr, reconSet, handle, nil, Config{OfferMaxHold: time.Minute})
	loop.pass(context.Background())

	assert.Equal(t, []types.OfferID{"old"}, fd.Declines)
}
