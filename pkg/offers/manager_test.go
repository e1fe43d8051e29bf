package offers

import (
	"testing"
	"time"

	"github.com/cuemby/schedcore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndReadyOffers(t *testing.T) {
	m := New()
	m.AddNewOffers([]types.ResourceOffer{
		{OfferID: "o1", AgentID: "a1", Resources: types.NodeResources{CPUs: 2}},
	})

	res := m.ReadyOffers()
	perAgent := res.PerAgent()
	require.Len(t, perAgent["a1"], 1)

	// A second reservation attempt sees nothing left to reserve.
	res2 := m.ReadyOffers()
	assert.Empty(t, res2.PerAgent())
}

func TestConsumeCommitsLaunchedAndReleasesRest(t *testing.T) {
	m := New()
	m.AddNewOffers([]types.ResourceOffer{
		{OfferID: "o1", AgentID: "a1", Resources: types.NodeResources{CPUs: 2}},
		{OfferID: "o2", AgentID: "a2", Resources: types.NodeResources{CPUs: 2}},
	})
	res := m.ReadyOffers()
	m.Consume(res, []types.OfferID{"o1"})

	// o2 returned to accumulated, so it's reservable again.
	res2 := m.ReadyOffers()
	require.Len(t, res2.PerAgent()["a2"], 1)
	assert.Empty(t, res2.PerAgent()["a1"])

	// o1 was launched, so removing it is a no-op (never reused).
	m.RemoveOffers([]types.OfferID{"o1"})
}

func TestLostNodeRejectsFutureOffers(t *testing.T) {
	m := New()
	m.LostNode("a1")
	m.AddNewOffers([]types.ResourceOffer{{OfferID: "o1", AgentID: "a1"}})

	res := m.ReadyOffers()
	assert.Empty(t, res.PerAgent()["a1"])

	m.Readmit("a1")
	m.AddNewOffers([]types.ResourceOffer{{OfferID: "o2", AgentID: "a1"}})
	res2 := m.ReadyOffers()
	assert.Len(t, res2.PerAgent()["a1"], 1)
}

func TestOffersOlderThanAndDiscardAged(t *testing.T) {
	m := New()
	m.AddNewOffers([]types.ResourceOffer{
		{OfferID: "o1", AgentID: "a1", ReceivedAt: time.Now().Add(-time.Hour)},
	})

	aged := m.OffersOlderThan(time.Minute)
	require.Len(t, aged, 1)
	assert.Equal(t, types.OfferID("o1"), aged[0].OfferID)

	m.DiscardAged([]types.OfferID{"o1"})
	res := m.ReadyOffers()
	assert.Empty(t, res.PerAgent())
}
