package kraken

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lycheetrade/krakenx/pkg/core"
	"github.com/lycheetrade/krakenx/pkg/ratelimit"
	"github.com/lycheetrade/krakenx/pkg/types"
)

func newTestExchange(t *testing.T, handler http.HandlerFunc) (*Exchange, *core.OrderRegistry) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	registry := core.NewOrderRegistry()
	ex := New("test-key", base64.StdEncoding.EncodeToString([]byte("test-secret")),
		ratelimit.NewLimiter(ratelimit.PolicyForTier(ratelimit.TierPro)), registry)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	ex.Client().BaseURL = u
	return ex, registry
}

func limitBuy(symbol, quantity, price string) types.SubmitOrder {
	return types.SubmitOrder{
		Symbol:   symbol,
		Side:     types.SideTypeBuy,
		Type:     types.OrderTypeLimit,
		Quantity: decimal.RequireFromString(quantity),
		Price:    decimal.RequireFromString(price),
	}
}

func TestExchange_SubmitOrderBindsBrokerID(t *testing.T) {
	ex, registry := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "XBTUSD", r.PostForm.Get("pair"))
		assert.Equal(t, "buy", r.PostForm.Get("type"))

		_, _ = w.Write([]byte(`{"error":[],"result":{"txid":["OXXX-111"]}}`))
	})

	order, err := ex.SubmitOrder(context.Background(), limitBuy("XBTUSD", "1.0", "50000"))
	require.NoError(t, err)

	assert.NotEmpty(t, order.LocalID, "a local id is assigned when the caller omits one")
	assert.Equal(t, "OXXX-111", order.BrokerID())
	assert.Equal(t, 1, ex.Limiter().OpenOrderCount("XBTUSD"))

	tracked, ok := registry.LookupByBrokerID("OXXX-111")
	require.True(t, ok)
	assert.Equal(t, order.LocalID, tracked.LocalID)
}

func TestExchange_SubmitOrderRollsBackOnRejection(t *testing.T) {
	ex, registry := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":["EOrder:Insufficient funds"]}`))
	})

	_, err := ex.SubmitOrder(context.Background(), limitBuy("XBTUSD", "1.0", "50000"))
	require.Error(t, err)

	assert.Equal(t, 0, ex.Limiter().OpenOrderCount("XBTUSD"), "the order slot is returned on failure")
	assert.Equal(t, 0, registry.NumTracked(), "the registry entry is removed on failure")
}

func TestExchange_SubmitOrderRetriesExchangeSideRateLimit(t *testing.T) {
	var calls int
	ex, _ := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(`{"error":["EOrder:Rate limit exceeded"]}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":[],"result":{"txid":["OXXX-222"]}}`))
	})

	order, err := ex.SubmitOrder(context.Background(), limitBuy("XBTUSD", "1.0", "50000"))
	require.NoError(t, err)
	assert.Equal(t, "OXXX-222", order.BrokerID())
	assert.Equal(t, 2, calls)
}

func TestExchange_CancelOrderRequiresBrokerID(t *testing.T) {
	ex, _ := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	order := &types.Order{SubmitOrder: limitBuy("XBTUSD", "1.0", "50000")}
	err := ex.CancelOrder(context.Background(), order)
	assert.Error(t, err)
}

func TestExchange_ResolveBrokerOrder(t *testing.T) {
	ex, _ := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/private/OpenOrders", r.URL.Path)
		_, _ = w.Write([]byte(`{"error":[],"result":{"open":{
			"OYYY-333":{"status":"open","vol":"2.0","vol_exec":"0.5","opentm":1616666559.8,
				"descr":{"pair":"XBT/USD","type":"sell","ordertype":"limit","price":"60000"}}
		}}}`))
	})

	order, err := ex.ResolveBrokerOrder(context.Background(), "OYYY-333")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "OYYY-333", order.BrokerID())
	assert.Equal(t, types.SideTypeSell, order.Side)

	unknown, err := ex.ResolveBrokerOrder(context.Background(), "ONOPE-000")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestExchange_QueryAccountBalances(t *testing.T) {
	ex, _ := newTestExchange(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/private/Balance", r.URL.Path)
		_, _ = w.Write([]byte(`{"error":[],"result":{"ZUSD":"1000.50","XXBT":"0.25"}}`))
	})

	balances, err := ex.QueryAccountBalances(context.Background())
	require.NoError(t, err)
	assert.True(t, balances["ZUSD"].Equal(decimal.RequireFromString("1000.50")))
	assert.True(t, balances["XXBT"].Equal(decimal.RequireFromString("0.25")))
}
