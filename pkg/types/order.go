package types

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType define order type
type OrderType string

const (
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeStopLimit  OrderType = "STOP_LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

type OrderStatus string

const (
	// OrderStatusNew means the order is accepted but not yet resting on the book.
	OrderStatusNew OrderStatus = "NEW"

	// OrderStatusSubmitted means the exchange acknowledged the order and it is open.
	OrderStatusSubmitted OrderStatus = "SUBMITTED"

	// OrderStatusUpdateSubmitted means a conditional order was touched/triggered.
	// It is a non-terminal transition out of Submitted.
	OrderStatusUpdateSubmitted OrderStatus = "UPDATE_SUBMITTED"

	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
)

// IsTerminal reports whether no further transition can occur from this status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled
}

// SubmitOrder is the caller-side order request.
type SubmitOrder struct {
	// LocalID is the caller-assigned order id, unique within the process.
	LocalID string `json:"localID"`

	Symbol string    `json:"symbol"`
	Side   SideType  `json:"side"`
	Type   OrderType `json:"orderType"`

	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	StopPrice decimal.Decimal `json:"stopPrice,omitempty"`

	// FeeCurrency selects which currency the exchange charges fees in,
	// when the venue supports a preference.
	FeeCurrency string `json:"feeCurrency,omitempty"`

	TimeInForce string `json:"timeInForce,omitempty"`
}

// Order is a tracked order: the submit request plus the identifiers the
// exchange hands back over its lifetime.
//
// BrokerIDs may hold more than one id because an amended or replaced order
// keeps its local id while the exchange assigns a fresh one.
type Order struct {
	SubmitOrder

	mu sync.Mutex

	BrokerIDs    []string    `json:"brokerIDs"`
	Status       OrderStatus `json:"status"`
	CreationTime time.Time   `json:"creationTime"`
}

// AddBrokerID appends a broker id if it is not already recorded.
func (o *Order) AddBrokerID(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, existing := range o.BrokerIDs {
		if existing == id {
			return
		}
	}
	o.BrokerIDs = append(o.BrokerIDs, id)
}

// BrokerID returns the most recently assigned broker id, or "" when the
// placement has not been acknowledged yet.
func (o *Order) BrokerID() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.BrokerIDs) == 0 {
		return ""
	}
	return o.BrokerIDs[len(o.BrokerIDs)-1]
}

// Age returns the elapsed time since the order was created.
func (o *Order) Age(now time.Time) time.Duration {
	return now.Sub(o.CreationTime)
}

func (o *Order) String() string {
	return fmt.Sprintf("ORDER %s %s %s %s @ %s | local %s | broker %s | %s",
		o.Symbol,
		o.Side,
		o.Type,
		o.Quantity.String(),
		o.Price.String(),
		o.LocalID,
		o.BrokerID(),
		o.Status,
	)
}
