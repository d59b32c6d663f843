package core

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lycheetrade/krakenx/pkg/types"
)

// Notice is one raw order notification, already decoded at the transport
// boundary into one of the three shapes the exchange sends. The reconciler
// performs case analysis over the concrete types; an unhandled shape is a
// reconciliation error, never a silent drop.
type Notice interface {
	// BrokerOrderID returns the exchange-assigned id the notice refers to.
	BrokerOrderID() string

	// NoticeTime returns the exchange timestamp, or zero when absent.
	NoticeTime() time.Time
}

// StatusNotice is a pure status update: a status string, or a touched flag
// for a triggered conditional order, and nothing else.
type StatusNotice struct {
	BrokerID string
	Status   string
	Touched  bool
	Time     time.Time
}

func (n *StatusNotice) BrokerOrderID() string { return n.BrokerID }
func (n *StatusNotice) NoticeTime() time.Time { return n.Time }

// SnapshotNotice is a full open-order snapshot carrying the order
// description. This shape arrives for orders already resting when the stream
// connects. ExecutedVolume is cumulative.
type SnapshotNotice struct {
	BrokerID string
	Status   string
	Side     types.SideType
	Symbol   string

	Price          decimal.Decimal
	AvgPrice       decimal.Decimal
	ExecutedVolume decimal.Decimal
	Fee            decimal.Decimal

	Time time.Time
}

func (n *SnapshotNotice) BrokerOrderID() string { return n.BrokerID }
func (n *SnapshotNotice) NoticeTime() time.Time { return n.Time }

// ExecutionNotice is a trade-execution record: cumulative executed volume and
// average price, with no status and no description. The status is inferred by
// comparing the cumulative volume against the order's absolute quantity.
type ExecutionNotice struct {
	BrokerID string

	ExecutedVolume decimal.Decimal
	AvgPrice       decimal.Decimal
	Fee            decimal.Decimal

	Time time.Time
}

func (n *ExecutionNotice) BrokerOrderID() string { return n.BrokerID }
func (n *ExecutionNotice) NoticeTime() time.Time { return n.Time }

// ParseBrokerOrderStatus maps the exchange's raw status strings to the
// normalized order status. The second return is false for strings outside the
// fixed table.
func ParseBrokerOrderStatus(raw string) (types.OrderStatus, bool) {
	switch raw {
	case "pending":
		return types.OrderStatusNew, true
	case "open":
		return types.OrderStatusSubmitted, true
	case "closed":
		return types.OrderStatusFilled, true
	case "expired", "canceled":
		return types.OrderStatusCanceled, true
	}

	return "", false
}
