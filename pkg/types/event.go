package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderEvent is one normalized order-state transition. The reconciler
// produces exactly one event per meaningful transition and never mutates an
// event after emitting it.
type OrderEvent struct {
	LocalID string      `json:"localID"`
	Symbol  string      `json:"symbol"`
	Time    time.Time   `json:"time"`
	Status  OrderStatus `json:"status"`
	Side    SideType    `json:"side"`

	// FillPrice is the execution price for fill-bearing events, zero otherwise.
	FillPrice decimal.Decimal `json:"fillPrice"`

	// FillDelta is the signed executed-quantity increment carried by this
	// event: positive for buys, negative for sells, so that net position
	// change is directly additive.
	FillDelta decimal.Decimal `json:"fillDelta"`

	Fee         decimal.Decimal `json:"fee"`
	FeeCurrency string          `json:"feeCurrency,omitempty"`
}

func (e OrderEvent) String() string {
	return fmt.Sprintf("ORDER EVENT %s %s %s %-4s | fill %s @ %s | fee %s %s | %s",
		e.Symbol,
		e.LocalID,
		e.Status,
		e.Side,
		e.FillDelta.String(),
		e.FillPrice.String(),
		e.Fee.String(),
		e.FeeCurrency,
		e.Time.Format(time.StampMilli),
	)
}
