package kraken

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/lycheetrade/krakenx/pkg/core"
	"github.com/lycheetrade/krakenx/pkg/exchange/kraken/krakenapi"
	"github.com/lycheetrade/krakenx/pkg/types"
)

func toLocalSide(side types.SideType) string {
	if side == types.SideTypeSell {
		return "sell"
	}
	return "buy"
}

func toGlobalSide(side string) types.SideType {
	if side == "sell" {
		return types.SideTypeSell
	}
	return types.SideTypeBuy
}

func toLocalOrderType(orderType types.OrderType) string {
	switch orderType {
	case types.OrderTypeMarket:
		return "market"
	case types.OrderTypeStopLimit:
		return "stop-loss-limit"
	case types.OrderTypeStopMarket:
		return "stop-loss"
	}
	return "limit"
}

func toGlobalOrderType(orderType string) types.OrderType {
	switch orderType {
	case "market":
		return types.OrderTypeMarket
	case "stop-loss-limit":
		return types.OrderTypeStopLimit
	case "stop-loss", "take-profit":
		return types.OrderTypeStopMarket
	}
	return types.OrderTypeLimit
}

// toGlobalOrder converts an open-order record of the REST OpenOrders result
// into a tracked order. The broker transaction id doubles as the local id
// because the record carries no caller reference.
func toGlobalOrder(txid string, o krakenapi.OpenOrder) (*types.Order, error) {
	if o.Description == nil {
		return nil, errors.Errorf("open order %s carries no description", txid)
	}

	quantity, err := decimal.NewFromString(o.Volume)
	if err != nil {
		return nil, errors.Wrapf(err, "malformed volume %q", o.Volume)
	}

	price := decimal.Zero
	if o.Description.Price != "" {
		price, err = decimal.NewFromString(o.Description.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed price %q", o.Description.Price)
		}
	}

	status, ok := core.ParseBrokerOrderStatus(o.Status)
	if !ok {
		return nil, errors.Errorf("unknown order status %q", o.Status)
	}

	order := &types.Order{
		SubmitOrder: types.SubmitOrder{
			LocalID:  txid,
			Symbol:   o.Description.Pair,
			Side:     toGlobalSide(o.Description.Type),
			Type:     toGlobalOrderType(o.Description.OrderType),
			Quantity: quantity,
			Price:    price,
		},
		Status:       status,
		CreationTime: toGlobalTime(o.OpenTime),
	}
	order.AddBrokerID(txid)
	return order, nil
}

// wsOrderUpdate is one order object of an openOrders stream payload. The
// pointer fields distinguish an absent key from a zero value; presence drives
// the shape detection in toNotice.
type wsOrderUpdate struct {
	Status      string `json:"status"`
	Touched     bool   `json:"touched"`
	Description *struct {
		Pair  string `json:"pair"`
		Type  string `json:"type"`
		Price string `json:"price"`
	} `json:"descr"`

	Volume     *string `json:"vol"`
	VolumeExec *string `json:"vol_exec"`
	AvgPrice   *string `json:"avg_price"`
	Fee        *string `json:"fee"`

	Timestamp   string `json:"timestamp"`
	LastUpdated string `json:"lastupdated"`
}

// toNotice classifies one streamed order update into one of the three notice
// shapes:
//
//   - a description block makes it a full snapshot
//   - executed volume without a description makes it an execution record
//   - anything else is a bare status update
func toNotice(brokerID string, u wsOrderUpdate) (core.Notice, error) {
	t := parseWsTime(u.LastUpdated)
	if t.IsZero() {
		t = parseWsTime(u.Timestamp)
	}

	switch {
	case u.Description != nil:
		n := &core.SnapshotNotice{
			BrokerID: brokerID,
			Status:   u.Status,
			Side:     toGlobalSide(u.Description.Type),
			Symbol:   u.Description.Pair,
			Time:     t,
		}

		var err error
		if n.Price, err = parseWsDecimal(u.Description.Price); err != nil {
			return nil, errors.Wrapf(err, "order %s: malformed price", brokerID)
		}
		if n.AvgPrice, err = parseWsDecimalPtr(u.AvgPrice); err != nil {
			return nil, errors.Wrapf(err, "order %s: malformed avg_price", brokerID)
		}
		if n.ExecutedVolume, err = parseWsDecimalPtr(u.VolumeExec); err != nil {
			return nil, errors.Wrapf(err, "order %s: malformed vol_exec", brokerID)
		}
		if n.Fee, err = parseWsDecimalPtr(u.Fee); err != nil {
			return nil, errors.Wrapf(err, "order %s: malformed fee", brokerID)
		}
		return n, nil

	case u.VolumeExec != nil:
		n := &core.ExecutionNotice{
			BrokerID: brokerID,
			Time:     t,
		}

		var err error
		if n.ExecutedVolume, err = parseWsDecimalPtr(u.VolumeExec); err != nil {
			return nil, errors.Wrapf(err, "order %s: malformed vol_exec", brokerID)
		}
		if n.AvgPrice, err = parseWsDecimalPtr(u.AvgPrice); err != nil {
			return nil, errors.Wrapf(err, "order %s: malformed avg_price", brokerID)
		}
		if n.Fee, err = parseWsDecimalPtr(u.Fee); err != nil {
			return nil, errors.Wrapf(err, "order %s: malformed fee", brokerID)
		}
		return n, nil

	default:
		return &core.StatusNotice{
			BrokerID: brokerID,
			Status:   u.Status,
			Touched:  u.Touched,
			Time:     t,
		}, nil
	}
}

func parseWsDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseWsDecimalPtr(s *string) (decimal.Decimal, error) {
	if s == nil {
		return decimal.Zero, nil
	}
	return parseWsDecimal(*s)
}

// parseWsTime decodes the unix-seconds timestamps the exchange sends, e.g.
// "1616672101.403427".
func parseWsTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	seconds, err := decimal.NewFromString(s)
	if err != nil {
		return time.Time{}
	}

	nanos := seconds.Mul(decimal.NewFromInt(int64(time.Second)))
	return time.Unix(0, nanos.IntPart())
}

// toGlobalTime converts a unix-seconds float timestamp of the REST API.
func toGlobalTime(ts float64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(ts*float64(time.Second)))
}
