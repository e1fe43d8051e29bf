// Package nodes implements the node manager from spec.md §2: the canonical
// record of known agents, their liveness, and metadata, shared by the
// dispatcher, scheduling loop and database-sync loop.
package nodes

import (
	"sync"

	"github.com/cuemby/schedcore/pkg/log"
	"github.com/cuemby/schedcore/pkg/types"
	"github.com/rs/zerolog"
)

// Manager is the node manager.
type Manager struct {
	mu     sync.RWMutex
	agents map[types.AgentID]*types.Agent
	logger zerolog.Logger
}

// New creates an empty node manager.
func New() *Manager {
	return &Manager{
		agents: make(map[types.AgentID]*types.Agent),
		logger: log.WithComponent("node-manager"),
	}
}

// Add registers or updates an agent's metadata, implicitly clearing any
// prior lost mark (the agent is, by definition, present again).
func (m *Manager) Add(agent types.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent.IsLost = false
	a := agent
	m.agents[agent.ID] = &a
}

// Get returns the agent record for id, if known.
func (m *Manager) Get(id types.AgentID) (types.Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return types.Agent{}, false
	}
	return *a, true
}

// LostNode marks an agent as lost, per the slaveLost callback in spec.md
// §4.1. The record is kept (not deleted) so a later rediscovery can be
// distinguished from a wholly unknown agent.
func (m *Manager) LostNode(id types.AgentID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		m.agents[id] = &types.Agent{ID: id, IsLost: true}
		return
	}
	a.IsLost = true
}

// IsLost reports whether id is currently marked lost.
func (m *Manager) IsLost(id types.AgentID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	return ok && a.IsLost
}

// Live returns every agent not currently marked lost.
func (m *Manager) Live() []types.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		if !a.IsLost {
			out = append(out, *a)
		}
	}
	return out
}

// SyncWithDatabase reconciles the node manager's view against the
// authoritative node list from the backing store (spec.md §4.6's
// NodeManager.sync_with_database), adding unseen nodes and marking as lost
// any tracked agent absent from the authoritative set. onReadmit, if
// non-nil, is called for every agent that was previously marked lost but
// reappears in the authoritative set, so callers (e.g. the offer manager)
// can stop rejecting its offers.
func (m *Manager) SyncWithDatabase(known []types.Agent, onReadmit func(types.AgentID)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	present := make(map[types.AgentID]bool, len(known))
	for _, a := range known {
		present[a.ID] = true
		if existing, ok := m.agents[a.ID]; ok {
			wasLost := existing.IsLost
			existing.Hostname = a.Hostname
			existing.Port = a.Port
			existing.Metadata = a.Metadata
			existing.IsLost = false
			if wasLost && onReadmit != nil {
				onReadmit(a.ID)
			}
		} else {
			cp := a
			m.agents[a.ID] = &cp
		}
	}
	for id, a := range m.agents {
		if !present[id] {
			a.IsLost = true
		}
	}
}
