// Package offers implements the offer manager from spec.md §4.2: it buffers
// offers per agent, hands out reservations for the scheduling loop to
// consume or release, and enforces the offer state machine (accumulated,
// reserved, launched, discarded) from spec.md §3.
package offers

import (
	"sync"
	"time"

	"github.com/cuemby/schedcore/pkg/log"
	"github.com/cuemby/schedcore/pkg/metrics"
	"github.com/cuemby/schedcore/pkg/types"
	"github.com/rs/zerolog"
)

// offerState is the internal lifecycle of a single offer.
type offerState int

const (
	stateAccumulated offerState = iota
	stateReserved
	stateLaunched
	stateDiscarded
)

type entry struct {
	offer types.ResourceOffer
	state offerState
}

// Manager is the offer manager. Safe for concurrent use by the dispatcher
// (writer) and the scheduling loop (reader/reserver), per spec.md §5.
type Manager struct {
	mu sync.RWMutex
	// byAgent groups offers per agent, per spec.md §3 ("offers from the
	// same agent are stored together").
	byAgent map[types.AgentID]map[types.OfferID]*entry
	// lostAgents rejects future offers for agents that were purged by a
	// node-loss event, until the node manager re-admits them.
	lostAgents map[types.AgentID]bool
	logger     zerolog.Logger
}

// New creates an empty offer manager.
func New() *Manager {
	return &Manager{
		byAgent:    make(map[types.AgentID]map[types.OfferID]*entry),
		lostAgents: make(map[types.AgentID]bool),
		logger:     log.WithComponent("offer-manager"),
	}
}

// AddNewOffers appends newly received offers, grouped by agent. Offers for
// an agent currently marked lost are rejected.
func (m *Manager) AddNewOffers(newOffers []types.ResourceOffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, o := range newOffers {
		if m.lostAgents[o.AgentID] {
			m.logger.Debug().Str("agent_id", string(o.AgentID)).Str("offer_id", string(o.OfferID)).
				Msg("rejecting offer for agent marked lost")
			continue
		}
		if o.ReceivedAt.IsZero() {
			o.ReceivedAt = now
		}
		bucket, ok := m.byAgent[o.AgentID]
		if !ok {
			bucket = make(map[types.OfferID]*entry)
			m.byAgent[o.AgentID] = bucket
		}
		bucket[o.OfferID] = &entry{offer: o, state: stateAccumulated}
	}
	metrics.OffersHeld.Set(float64(m.countLocked(stateAccumulated)))
}

// RemoveOffers idempotently removes offers by id (offerRescinded). Removing
// an offer that is already consumed (launched) or unknown is a no-op.
func (m *Manager) RemoveOffers(ids []types.OfferID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idset := make(map[types.OfferID]bool, len(ids))
	for _, id := range ids {
		idset[id] = true
	}
	for agentID, bucket := range m.byAgent {
		for id, e := range bucket {
			if !idset[id] {
				continue
			}
			if e.state == stateLaunched {
				// A launched offer is never reused or reclaimed; leave it
				// be, the resource master owns its fate now.
				continue
			}
			delete(bucket, id)
		}
		if len(bucket) == 0 {
			delete(m.byAgent, agentID)
		}
	}
	metrics.OffersHeld.Set(float64(m.countLocked(stateAccumulated)))
}

// LostNode purges every offer for agentID and rejects future offers for it
// until the node manager re-admits the agent.
func (m *Manager) LostNode(agentID types.AgentID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byAgent, agentID)
	m.lostAgents[agentID] = true
	metrics.OffersHeld.Set(float64(m.countLocked(stateAccumulated)))
}

// Readmit clears the lost-agent mark for agentID, allowing it to receive
// offers again (the node manager calls this once it re-admits a rediscovered
// agent).
func (m *Manager) Readmit(agentID types.AgentID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lostAgents, agentID)
}

// Reservation is a snapshot of accumulated offers handed to a caller
// (normally the scheduling loop) that holds exclusive rights to consume or
// release them; while held, the affected offers are not handed to another
// caller.
type Reservation struct {
	byAgent map[types.AgentID][]types.ResourceOffer
	ids     map[types.OfferID]bool
}

// PerAgent returns the reserved offers grouped by agent.
func (r *Reservation) PerAgent() map[types.AgentID][]types.ResourceOffer {
	return r.byAgent
}

// ReadyOffers takes a reservation over every currently-accumulated offer,
// moving them to the reserved state so no other caller can take them.
func (m *Manager) ReadyOffers() *Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := &Reservation{
		byAgent: make(map[types.AgentID][]types.ResourceOffer),
		ids:     make(map[types.OfferID]bool),
	}
	for agentID, bucket := range m.byAgent {
		for id, e := range bucket {
			if e.state != stateAccumulated {
				continue
			}
			e.state = stateReserved
			res.byAgent[agentID] = append(res.byAgent[agentID], e.offer)
			res.ids[id] = true
		}
	}
	return res
}

// Consume commits the offers named by launchedIDs to the launched state;
// everything else in the reservation returns to accumulated.
func (m *Manager) Consume(res *Reservation, launchedIDs []types.OfferID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	launched := make(map[types.OfferID]bool, len(launchedIDs))
	for _, id := range launchedIDs {
		launched[id] = true
	}
	for _, bucket := range m.byAgent {
		for id := range res.ids {
			e, ok := bucket[id]
			if !ok {
				continue
			}
			if launched[id] {
				e.state = stateLaunched
			} else {
				e.state = stateAccumulated
			}
		}
	}
	metrics.OffersHeld.Set(float64(m.countLocked(stateAccumulated)))
}

// Release returns every offer in the reservation, untouched, to the
// accumulated state.
func (m *Manager) Release(res *Reservation) {
	m.Consume(res, nil)
}

// OffersOlderThan returns accumulated offers older than age, for the
// scheduling loop to proactively decline per spec.md §4.2.
func (m *Manager) OffersOlderThan(age time.Duration) []types.ResourceOffer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().Add(-age)
	var out []types.ResourceOffer
	for _, bucket := range m.byAgent {
		for _, e := range bucket {
			if e.state == stateAccumulated && e.offer.ReceivedAt.Before(cutoff) {
				out = append(out, e.offer)
			}
		}
	}
	return out
}

// DiscardAged marks the named offers as discarded, removing them from
// accumulated storage; used after the scheduling loop has declined them to
// the Driver.
func (m *Manager) DiscardAged(ids []types.OfferID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idset := make(map[types.OfferID]bool, len(ids))
	for _, id := range ids {
		idset[id] = true
	}
	for agentID, bucket := range m.byAgent {
		for id, e := range bucket {
			if idset[id] && e.state == stateAccumulated {
				delete(bucket, id)
			}
		}
		if len(bucket) == 0 {
			delete(m.byAgent, agentID)
		}
	}
	metrics.OffersDeclinedAgedTotal.Add(float64(len(ids)))
	metrics.OffersHeld.Set(float64(m.countLocked(stateAccumulated)))
}

func (m *Manager) countLocked(state offerState) int {
	n := 0
	for _, bucket := range m.byAgent {
		for _, e := range bucket {
			if e.state == state {
				n++
			}
		}
	}
	return n
}
