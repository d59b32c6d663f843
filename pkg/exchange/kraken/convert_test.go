package kraken

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lycheetrade/krakenx/pkg/core"
	"github.com/lycheetrade/krakenx/pkg/exchange/kraken/krakenapi"
	"github.com/lycheetrade/krakenx/pkg/types"
)

func TestToGlobalOrder(t *testing.T) {
	order, err := toGlobalOrder("OABC-123", krakenapi.OpenOrder{
		Status:   "open",
		OpenTime: 1616666559.8974,
		Volume:   "2.5",
		Description: &krakenapi.OrderDescription{
			Pair:      "XBT/USD",
			Type:      "sell",
			OrderType: "limit",
			Price:     "60000",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "OABC-123", order.LocalID)
	assert.Equal(t, "OABC-123", order.BrokerID())
	assert.Equal(t, "XBT/USD", order.Symbol)
	assert.Equal(t, types.SideTypeSell, order.Side)
	assert.Equal(t, types.OrderTypeLimit, order.Type)
	assert.Equal(t, types.OrderStatusSubmitted, order.Status)
	assert.True(t, order.Quantity.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, order.Price.Equal(decimal.NewFromInt(60000)))
	assert.Equal(t, 2021, order.CreationTime.Year())
}

func TestToGlobalOrder_MissingDescription(t *testing.T) {
	_, err := toGlobalOrder("OABC-123", krakenapi.OpenOrder{Status: "open", Volume: "1"})
	assert.Error(t, err)
}

func TestToGlobalOrder_UnknownStatus(t *testing.T) {
	_, err := toGlobalOrder("OABC-123", krakenapi.OpenOrder{
		Status: "suspended",
		Volume: "1",
		Description: &krakenapi.OrderDescription{
			Pair: "XBT/USD", Type: "buy", OrderType: "limit", Price: "1",
		},
	})
	assert.Error(t, err)
}

func TestOrderTypeRoundTrip(t *testing.T) {
	for _, orderType := range []types.OrderType{
		types.OrderTypeLimit,
		types.OrderTypeMarket,
		types.OrderTypeStopLimit,
	} {
		assert.Equal(t, orderType, toGlobalOrderType(toLocalOrderType(orderType)))
	}
}

func TestSideRoundTrip(t *testing.T) {
	assert.Equal(t, "buy", toLocalSide(types.SideTypeBuy))
	assert.Equal(t, "sell", toLocalSide(types.SideTypeSell))
	assert.Equal(t, types.SideTypeBuy, toGlobalSide("buy"))
	assert.Equal(t, types.SideTypeSell, toGlobalSide("sell"))
}

func TestToNotice_TouchedFlag(t *testing.T) {
	notice, err := toNotice("OABC-123", wsOrderUpdate{Touched: true})
	require.NoError(t, err)

	status, ok := notice.(*core.StatusNotice)
	require.True(t, ok)
	assert.True(t, status.Touched)
	assert.Empty(t, status.Status)
}

func TestToNotice_MalformedDecimal(t *testing.T) {
	bad := "not-a-number"
	_, err := toNotice("OABC-123", wsOrderUpdate{VolumeExec: &bad})
	assert.Error(t, err)
}

func TestParseWsTime(t *testing.T) {
	ts := parseWsTime("1616672101.403427")
	assert.Equal(t, int64(1616672101), ts.Unix())
	assert.InDelta(t, 403427000, ts.Nanosecond(), 1000)

	assert.True(t, parseWsTime("").IsZero())
	assert.True(t, parseWsTime("garbage").IsZero())
}

func TestFeeCurrencyFlag(t *testing.T) {
	assert.Equal(t, "fcib", feeCurrencyFlag("base"))
	assert.Equal(t, "fciq", feeCurrencyFlag("QUOTE"))
	assert.Equal(t, "", feeCurrencyFlag(""))
}

func TestToGlobalTime_Zero(t *testing.T) {
	assert.True(t, toGlobalTime(0).IsZero())
	assert.WithinDuration(t,
		time.Unix(1616666559, 0), toGlobalTime(1616666559.8974), time.Second)
}
