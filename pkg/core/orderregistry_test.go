package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lycheetrade/krakenx/pkg/types"
)

func newTrackedOrder(localID, brokerID string, side types.SideType, qty string) *types.Order {
	order := &types.Order{
		SubmitOrder: types.SubmitOrder{
			LocalID:  localID,
			Symbol:   "XBT/USD",
			Side:     side,
			Type:     types.OrderTypeLimit,
			Quantity: decimal.RequireFromString(qty),
			Price:    decimal.RequireFromString("50000"),
		},
		Status:       types.OrderStatusNew,
		CreationTime: time.Now(),
	}
	if brokerID != "" {
		order.AddBrokerID(brokerID)
	}
	return order
}

func TestOrderRegistry_TrackAndLookup(t *testing.T) {
	registry := NewOrderRegistry()
	order := newTrackedOrder("local-1", "OABC-123", types.SideTypeBuy, "1")

	registry.Track(order)

	found, ok := registry.Lookup("local-1")
	require.True(t, ok)
	assert.Equal(t, order, found)

	found, ok = registry.LookupByBrokerID("OABC-123")
	require.True(t, ok)
	assert.Equal(t, order, found)

	_, ok = registry.LookupByBrokerID("missing")
	assert.False(t, ok)

	assert.Equal(t, 1, registry.NumTracked())
}

func TestOrderRegistry_AddBrokerID(t *testing.T) {
	registry := NewOrderRegistry()
	order := newTrackedOrder("local-1", "", types.SideTypeBuy, "1")
	registry.Track(order)

	// placed order without an ack yet has no broker id
	_, ok := registry.LookupByBrokerID("OABC-123")
	assert.False(t, ok)

	require.True(t, registry.AddBrokerID("local-1", "OABC-123"))

	found, ok := registry.LookupByBrokerID("OABC-123")
	require.True(t, ok)
	assert.Equal(t, order, found)

	assert.False(t, registry.AddBrokerID("untracked", "OXYZ-999"))
}

func TestOrderRegistry_ReplaceBrokerIDs(t *testing.T) {
	registry := NewOrderRegistry()
	order := newTrackedOrder("local-1", "OOLD-111", types.SideTypeBuy, "1")
	registry.Track(order)

	require.True(t, registry.ReplaceBrokerIDs("local-1", []string{"ONEW-222", "ONEW-333"}))

	_, ok := registry.LookupByBrokerID("OOLD-111")
	assert.False(t, ok, "old broker id binding should be gone")

	for _, id := range []string{"ONEW-222", "ONEW-333"} {
		found, ok := registry.LookupByBrokerID(id)
		require.True(t, ok)
		assert.Equal(t, order, found)
	}

	assert.Equal(t, []string{"ONEW-222", "ONEW-333"}, order.BrokerIDs)
}

func TestOrderRegistry_AttributeFill(t *testing.T) {
	registry := NewOrderRegistry()
	registry.Track(newTrackedOrder("local-1", "OABC-123", types.SideTypeBuy, "3"))

	delta, ok := registry.AttributeFill("local-1", decimal.RequireFromString("1"))
	require.True(t, ok)
	assert.Equal(t, "1", delta.String())

	// duplicate cumulative report attributes nothing
	delta, ok = registry.AttributeFill("local-1", decimal.RequireFromString("1"))
	require.True(t, ok)
	assert.True(t, delta.IsZero())

	// stale (lower) cumulative report attributes nothing either
	delta, ok = registry.AttributeFill("local-1", decimal.RequireFromString("0.5"))
	require.True(t, ok)
	assert.True(t, delta.IsZero())

	delta, ok = registry.AttributeFill("local-1", decimal.RequireFromString("3"))
	require.True(t, ok)
	assert.Equal(t, "2", delta.String())
	assert.Equal(t, "3", registry.Filled("local-1").String())

	_, ok = registry.AttributeFill("untracked", decimal.RequireFromString("1"))
	assert.False(t, ok)
}

func TestOrderRegistry_MarkTerminalSentIsFirstWins(t *testing.T) {
	registry := NewOrderRegistry()
	registry.Track(newTrackedOrder("local-1", "OABC-123", types.SideTypeBuy, "1"))

	assert.True(t, registry.MarkTerminalSent("local-1"))
	assert.False(t, registry.MarkTerminalSent("local-1"))
	assert.False(t, registry.MarkTerminalSent("untracked"))
}

func TestOrderRegistry_RemoveClearsBindings(t *testing.T) {
	registry := NewOrderRegistry()
	order := newTrackedOrder("local-1", "OABC-123", types.SideTypeBuy, "1")
	order.AddBrokerID("ODEF-456")
	registry.Track(order)

	registry.Remove("local-1")

	_, ok := registry.Lookup("local-1")
	assert.False(t, ok)
	_, ok = registry.LookupByBrokerID("OABC-123")
	assert.False(t, ok)
	_, ok = registry.LookupByBrokerID("ODEF-456")
	assert.False(t, ok)
	assert.Equal(t, 0, registry.NumTracked())

	// removing twice is harmless
	registry.Remove("local-1")
}

func TestOrderRegistry_RetrackKeepsFillBookkeeping(t *testing.T) {
	registry := NewOrderRegistry()
	order := newTrackedOrder("local-1", "OABC-123", types.SideTypeBuy, "3")
	registry.Track(order)

	_, ok := registry.AttributeFill("local-1", decimal.RequireFromString("2"))
	require.True(t, ok)

	// re-tracking (e.g. after an amend) must not reset the attributed volume
	registry.Track(order)
	assert.Equal(t, "2", registry.Filled("local-1").String())
}
