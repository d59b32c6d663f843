package kraken

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lycheetrade/krakenx/pkg/core"
	"github.com/lycheetrade/krakenx/pkg/ratelimit"
	"github.com/lycheetrade/krakenx/pkg/types"
)

func TestStream_DispatchDeliversSurvivingBatchEntries(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.PolicyForTier(ratelimit.TierStarter))
	registry := core.NewOrderRegistry()
	reconciler := core.NewReconciler(registry, limiter)

	var events []types.OrderEvent
	reconciler.OnOrderEvent(func(event types.OrderEvent) {
		events = append(events, event)
	})

	require.NoError(t, limiter.AdmitOrder("XBT/USD"))
	order := &types.Order{
		SubmitOrder: types.SubmitOrder{
			LocalID:  "local-1",
			Symbol:   "XBT/USD",
			Side:     types.SideTypeBuy,
			Type:     types.OrderTypeLimit,
			Quantity: decimal.NewFromInt(1),
		},
		Status: types.OrderStatusSubmitted,
	}
	order.AddBrokerID("OGOOD-222")
	registry.Track(order)

	stream := NewStream(nil, reconciler)

	// the first entry is malformed; the cancel for the tracked order must
	// still be reconciled so the terminal event and slot release are not lost
	stream.dispatch(context.Background(), []byte(`[
		[
			{"OBAD-111": {"vol_exec": "not-a-number"}},
			{"OGOOD-222": {"status": "canceled"}}
		],
		"openOrders",
		{"sequence": 7}
	]`))

	require.Len(t, events, 1)
	assert.Equal(t, types.OrderStatusCanceled, events[0].Status)
	assert.Equal(t, "local-1", events[0].LocalID)
	assert.Equal(t, 0, limiter.OpenOrderCount("XBT/USD"))
	assert.Equal(t, 0, registry.NumTracked())
}
