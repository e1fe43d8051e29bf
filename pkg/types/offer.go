package types

import "time"

// ResourceOffer is a time-bounded resource grant from one agent, as received
// from the resource master. Owned exclusively by the offer manager from
// acceptance until consumed or rescinded.
type ResourceOffer struct {
	OfferID   OfferID
	AgentID   AgentID
	Resources NodeResources
	// ReceivedAt is set by the offer manager on insertion when left zero
	// (a non-zero value is kept) and used to age out offers per the
	// configured hold duration.
	ReceivedAt time.Time
}
