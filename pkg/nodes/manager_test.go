package nodes

import (
	"testing"

	"github.com/cuemby/schedcore/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestAddClearsLostMark(t *testing.T) {
	m := New()
	m.LostNode("a1")
	assert.True(t, m.IsLost("a1"))

	m.Add(types.Agent{ID: "a1", Hostname: "node-a", Port: 5051})
	assert.False(t, m.IsLost("a1"))

	got, ok := m.Get("a1")
	assert.True(t, ok)
	assert.Equal(t, "node-a", got.Hostname)
}

func TestLostNodeKeepsUnknownAgentRecord(t *testing.T) {
	m := New()
	m.LostNode("ghost")
	assert.True(t, m.IsLost("ghost"))
	assert.Empty(t, m.Live())
}

func TestSyncWithDatabaseMarksAbsentAgentsLost(t *testing.T) {
	m := New()
	m.Add(types.Agent{ID: "a1", Hostname: "node-a"})
	m.Add(types.Agent{ID: "a2", Hostname: "node-b"})

	m.SyncWithDatabase([]types.Agent{{ID: "a1", Hostname: "node-a"}}, nil)

	assert.False(t, m.IsLost("a1"))
	assert.True(t, m.IsLost("a2"))
	live := m.Live()
	assert.Len(t, live, 1)
	assert.Equal(t, types.AgentID("a1"), live[0].ID)
}

func TestSyncWithDatabaseCallsOnReadmitForRediscoveredAgent(t *testing.T) {
	m := New()
	m.LostNode("a1")

	var readmitted []types.AgentID
	m.SyncWithDatabase([]types.Agent{{ID: "a1", Hostname: "node-a"}}, func(id types.AgentID) {
		readmitted = append(readmitted, id)
	})

	assert.False(t, m.IsLost("a1"))
	assert.Equal(t, []types.AgentID{"a1"}, readmitted)
}

func TestSyncWithDatabaseAddsUnseenNode(t *testing.T) {
	m := New()
	m.SyncWithDatabase([]types.Agent{{ID: "new", Hostname: "node-new"}}, nil)

	got, ok := m.Get("new")
	assert.True(t, ok)
	assert.False(t, got.IsLost)
}
