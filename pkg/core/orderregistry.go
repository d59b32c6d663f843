package core

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/lycheetrade/krakenx/pkg/types"
)

type registryEntry struct {
	order *types.Order

	// filled is the cumulative executed quantity already attributed to this
	// order across all notices.
	filled decimal.Decimal

	// terminalSent marks that the single terminal event has been emitted.
	terminalSent bool
}

// OrderRegistry is the bidirectional mapping between caller-assigned local
// order ids and exchange-assigned broker ids, plus the per-order fill
// bookkeeping the reconciler relies on.
//
// Forward and reverse maps are updated under one mutex so a reader can never
// observe them out of sync. The registry holds non-owning references: the
// tracked orders belong to the caller.
type OrderRegistry struct {
	mu         sync.Mutex
	byLocalID  map[string]*registryEntry
	byBrokerID map[string]string
}

func NewOrderRegistry() *OrderRegistry {
	return &OrderRegistry{
		byLocalID:  make(map[string]*registryEntry),
		byBrokerID: make(map[string]string),
	}
}

// Track registers an order under its local id and any broker ids it already
// carries. Tracking the same local id twice replaces the reference but keeps
// the fill bookkeeping.
func (r *OrderRegistry) Track(order *types.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byLocalID[order.LocalID]
	if !ok {
		entry = &registryEntry{}
		r.byLocalID[order.LocalID] = entry
	}
	entry.order = order

	for _, brokerID := range order.BrokerIDs {
		r.byBrokerID[brokerID] = order.LocalID
	}
}

func (r *OrderRegistry) Lookup(localID string) (*types.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byLocalID[localID]
	if !ok {
		return nil, false
	}
	return entry.order, true
}

func (r *OrderRegistry) LookupByBrokerID(brokerID string) (*types.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	localID, ok := r.byBrokerID[brokerID]
	if !ok {
		return nil, false
	}

	entry, ok := r.byLocalID[localID]
	if !ok {
		return nil, false
	}
	return entry.order, true
}

// AddBrokerID binds a newly discovered broker id to a tracked order, e.g.
// when a placement acknowledgment finally supplies the exchange id.
func (r *OrderRegistry) AddBrokerID(localID, brokerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byLocalID[localID]
	if !ok {
		return false
	}

	entry.order.AddBrokerID(brokerID)
	r.byBrokerID[brokerID] = localID
	return true
}

// ReplaceBrokerIDs drops the order's previous broker ids and binds the given
// set, used when an amend/replace assigns fresh exchange ids.
func (r *OrderRegistry) ReplaceBrokerIDs(localID string, brokerIDs []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byLocalID[localID]
	if !ok {
		return false
	}

	for _, old := range entry.order.BrokerIDs {
		delete(r.byBrokerID, old)
	}

	entry.order.BrokerIDs = append([]string(nil), brokerIDs...)
	for _, brokerID := range brokerIDs {
		r.byBrokerID[brokerID] = localID
	}
	return true
}

// AttributeFill records that the exchange reports the given cumulative
// executed volume for the order and returns the increment that has not been
// attributed before. Duplicate or stale reports yield a zero delta.
func (r *OrderRegistry) AttributeFill(localID string, cumulative decimal.Decimal) (decimal.Decimal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byLocalID[localID]
	if !ok {
		return decimal.Zero, false
	}

	delta := cumulative.Sub(entry.filled)
	if delta.Sign() <= 0 {
		return decimal.Zero, true
	}

	entry.filled = cumulative
	return delta, true
}

// Filled returns the cumulative executed quantity attributed so far.
func (r *OrderRegistry) Filled(localID string) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byLocalID[localID]
	if !ok {
		return decimal.Zero
	}
	return entry.filled
}

// MarkTerminalSent marks the order's terminal event as delivered and reports
// whether this call was the first to do so. The first caller wins; every
// later call observes false and must drop its duplicate terminal notice.
func (r *OrderRegistry) MarkTerminalSent(localID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byLocalID[localID]
	if !ok || entry.terminalSent {
		return false
	}

	entry.terminalSent = true
	return true
}

// Remove drops the order and all of its broker id bindings. This is the
// single authoritative removal point, reached only after the terminal event
// has been emitted.
func (r *OrderRegistry) Remove(localID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byLocalID[localID]
	if !ok {
		return
	}

	for _, brokerID := range entry.order.BrokerIDs {
		delete(r.byBrokerID, brokerID)
	}
	delete(r.byLocalID, localID)
}

func (r *OrderRegistry) NumTracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.byLocalID)
}

// Orders returns a snapshot of the tracked orders.
func (r *OrderRegistry) Orders() []*types.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	orders := make([]*types.Order, 0, len(r.byLocalID))
	for _, entry := range r.byLocalID {
		orders = append(orders, entry.order)
	}
	return orders
}
