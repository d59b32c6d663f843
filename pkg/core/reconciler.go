package core

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/lycheetrade/krakenx/pkg/metrics"
	"github.com/lycheetrade/krakenx/pkg/types"
)

var log = logrus.WithField("component", "reconciler")

// OrderSlotReleaser returns an open-order admission slot when an order
// reaches a terminal state. Satisfied by ratelimit.Limiter.
type OrderSlotReleaser interface {
	ReleaseOrder(symbol string)
}

// OrderResolver looks up an order the registry does not know, typically
// through a REST open-orders query. It is the last resort before a notice is
// dropped.
type OrderResolver interface {
	ResolveBrokerOrder(ctx context.Context, brokerID string) (*types.Order, error)
}

// Reconciler consumes raw order notices and derives a consistent sequence of
// normalized order events: at most one event per meaningful transition, and
// exactly one terminal event per order regardless of how the exchange
// duplicates or reorders its notifications.
//
// Notices for the same order need not arrive in causal order. The reconciler
// tolerates this through idempotent terminal marking and cumulative-fill
// comparison rather than by assuming ordering.
type Reconciler struct {
	registry *OrderRegistry
	releaser OrderSlotReleaser
	resolver OrderResolver

	orderEventCallbacks []func(event types.OrderEvent)
}

func NewReconciler(registry *OrderRegistry, releaser OrderSlotReleaser) *Reconciler {
	return &Reconciler{
		registry: registry,
		releaser: releaser,
	}
}

// SetResolver installs the external order-lookup collaborator.
func (r *Reconciler) SetResolver(resolver OrderResolver) {
	r.resolver = resolver
}

func (r *Reconciler) OnOrderEvent(cb func(event types.OrderEvent)) {
	r.orderEventCallbacks = append(r.orderEventCallbacks, cb)
}

func (r *Reconciler) EmitOrderEvent(event types.OrderEvent) {
	for _, cb := range r.orderEventCallbacks {
		cb(event)
	}
}

// HandleBatch processes each notice independently so one malformed entry
// cannot prevent the others from being applied. The per-notice errors are
// joined and returned.
func (r *Reconciler) HandleBatch(ctx context.Context, notices []Notice) error {
	var err error
	for _, notice := range notices {
		err = multierr.Append(err, r.Handle(ctx, notice))
	}
	return err
}

// Handle applies one notice. A notice for an unknown order that the resolver
// cannot identify is logged and dropped; it never corrupts state for tracked
// orders. A notice that cannot be interpreted at all is returned as an error.
func (r *Reconciler) Handle(ctx context.Context, notice Notice) error {
	brokerID := notice.BrokerOrderID()
	if brokerID == "" {
		return errors.Errorf("order notice %+v carries no broker order id", notice)
	}

	order, ok := r.registry.LookupByBrokerID(brokerID)
	if !ok {
		order = r.resolve(ctx, brokerID)
		if order == nil {
			log.Warnf("dropping notice for unknown broker order %s: %+v", brokerID, notice)
			metrics.ReconcilerDroppedNoticesMetrics.WithLabelValues("unknown_order").Inc()
			return nil
		}
	}

	switch n := notice.(type) {
	case *StatusNotice:
		return r.handleStatus(order, n)

	case *SnapshotNotice:
		return r.handleSnapshot(order, n)

	case *ExecutionNotice:
		return r.handleExecution(order, n)
	}

	return errors.Errorf("unhandled notice shape %T for broker order %s", notice, brokerID)
}

func (r *Reconciler) resolve(ctx context.Context, brokerID string) *types.Order {
	if r.resolver == nil {
		return nil
	}

	order, err := r.resolver.ResolveBrokerOrder(ctx, brokerID)
	if err != nil {
		log.WithError(err).Warnf("broker order %s lookup failed", brokerID)
		return nil
	}
	if order == nil {
		return nil
	}

	order.AddBrokerID(brokerID)
	r.registry.Track(order)
	return order
}

func (r *Reconciler) handleStatus(order *types.Order, n *StatusNotice) error {
	var status types.OrderStatus
	switch {
	case n.Status != "":
		mapped, ok := ParseBrokerOrderStatus(n.Status)
		if !ok {
			return errors.Errorf("unknown order status %q for broker order %s", n.Status, n.BrokerID)
		}
		status = mapped

	case n.Touched:
		status = types.OrderStatusUpdateSubmitted

	default:
		return errors.Errorf("status notice for broker order %s carries neither status nor touched flag", n.BrokerID)
	}

	if status.IsTerminal() {
		return r.finalize(order, status, decimal.Zero, decimal.Zero, decimal.Zero, n.Time)
	}

	if order.Status == status {
		metrics.ReconcilerDroppedNoticesMetrics.WithLabelValues("duplicate_status").Inc()
		return nil
	}

	order.Status = status
	r.emit(types.OrderEvent{
		LocalID:     order.LocalID,
		Symbol:      order.Symbol,
		Time:        eventTime(n.Time),
		Status:      status,
		Side:        order.Side,
		FeeCurrency: order.FeeCurrency,
	})
	return nil
}

func (r *Reconciler) handleSnapshot(order *types.Order, n *SnapshotNotice) error {
	mapped, ok := ParseBrokerOrderStatus(n.Status)
	if !ok {
		return errors.Errorf("unknown order status %q in snapshot for broker order %s", n.Status, n.BrokerID)
	}

	// a snapshot arrives for orders resting before the stream connected; it
	// may carry details a resolver-recovered order is missing
	if order.Side == "" && n.Side != "" {
		order.Side = n.Side
	}

	delta, _ := r.registry.AttributeFill(order.LocalID, n.ExecutedVolume)

	status := mapped
	if !status.IsTerminal() {
		status = r.inferFillStatus(order, n.ExecutedVolume, status)
	}

	price := n.AvgPrice
	if price.IsZero() {
		price = n.Price
	}

	if status.IsTerminal() {
		return r.finalize(order, status, delta, price, n.Fee, n.Time)
	}

	if delta.IsZero() && order.Status == status {
		metrics.ReconcilerDroppedNoticesMetrics.WithLabelValues("duplicate_snapshot").Inc()
		return nil
	}

	order.Status = status
	r.emit(types.OrderEvent{
		LocalID:     order.LocalID,
		Symbol:      order.Symbol,
		Time:        eventTime(n.Time),
		Status:      status,
		Side:        order.Side,
		FillPrice:   price,
		FillDelta:   signedDelta(order.Side, delta),
		Fee:         n.Fee,
		FeeCurrency: order.FeeCurrency,
	})
	return nil
}

func (r *Reconciler) handleExecution(order *types.Order, n *ExecutionNotice) error {
	delta, _ := r.registry.AttributeFill(order.LocalID, n.ExecutedVolume)

	status := r.inferFillStatus(order, n.ExecutedVolume, types.OrderStatusPartiallyFilled)

	if status == types.OrderStatusFilled {
		return r.finalize(order, status, delta, n.AvgPrice, n.Fee, n.Time)
	}

	if delta.Sign() <= 0 {
		// the cumulative volume was already attributed in full: a duplicate
		// delivery of the same execution record
		metrics.ReconcilerDroppedNoticesMetrics.WithLabelValues("duplicate_execution").Inc()
		return nil
	}

	order.Status = status
	r.emit(types.OrderEvent{
		LocalID:     order.LocalID,
		Symbol:      order.Symbol,
		Time:        eventTime(n.Time),
		Status:      status,
		Side:        order.Side,
		FillPrice:   n.AvgPrice,
		FillDelta:   signedDelta(order.Side, delta),
		Fee:         n.Fee,
		FeeCurrency: order.FeeCurrency,
	})
	return nil
}

// inferFillStatus derives the status from the cumulative executed volume:
// equal to the order quantity means Filled, a nonzero partial volume means
// PartiallyFilled, otherwise the given status stands.
func (r *Reconciler) inferFillStatus(
	order *types.Order, cumulative decimal.Decimal, fallback types.OrderStatus,
) types.OrderStatus {
	if order.Quantity.Sign() > 0 && cumulative.Cmp(order.Quantity) >= 0 {
		return types.OrderStatusFilled
	}

	if cumulative.Sign() > 0 {
		return types.OrderStatusPartiallyFilled
	}

	return fallback
}

// finalize performs the terminal bookkeeping: the idempotent terminal marker
// decides whether this notice is the first terminal delivery; only the winner
// emits the event, releases the order's admission slot and removes the order
// from the registry. The terminal event is not emitted before the marker
// succeeds, so exactly one terminal event leaves the reconciler per order.
func (r *Reconciler) finalize(
	order *types.Order, status types.OrderStatus,
	delta, price, fee decimal.Decimal, t time.Time,
) error {
	if !r.registry.MarkTerminalSent(order.LocalID) {
		metrics.ReconcilerDroppedNoticesMetrics.WithLabelValues("duplicate_terminal").Inc()
		return nil
	}

	order.Status = status
	r.emit(types.OrderEvent{
		LocalID:     order.LocalID,
		Symbol:      order.Symbol,
		Time:        eventTime(t),
		Status:      status,
		Side:        order.Side,
		FillPrice:   price,
		FillDelta:   signedDelta(order.Side, delta),
		Fee:         fee,
		FeeCurrency: order.FeeCurrency,
	})

	if r.releaser != nil {
		r.releaser.ReleaseOrder(order.Symbol)
	}
	r.registry.Remove(order.LocalID)
	return nil
}

func (r *Reconciler) emit(event types.OrderEvent) {
	metrics.ReconcilerEventsMetrics.WithLabelValues(string(event.Status)).Inc()
	r.EmitOrderEvent(event)
}

// signedDelta applies the sign convention: sell fills reduce the position.
func signedDelta(side types.SideType, delta decimal.Decimal) decimal.Decimal {
	if side == types.SideTypeSell {
		return delta.Neg()
	}
	return delta
}

func eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
