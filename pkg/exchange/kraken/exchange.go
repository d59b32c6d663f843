package kraken

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/lycheetrade/krakenx/pkg/core"
	"github.com/lycheetrade/krakenx/pkg/exchange/kraken/krakenapi"
	"github.com/lycheetrade/krakenx/pkg/ratelimit"
	"github.com/lycheetrade/krakenx/pkg/types"
)

var log = logrus.WithField("exchange", "kraken")

// coarse per-endpoint throttles for query-style calls, on top of the
// account-level decaying limiter
var openOrderQueryLimiter = rate.NewLimiter(rate.Every(3*time.Second), 1)
var balanceQueryLimiter = rate.NewLimiter(rate.Every(3*time.Second), 1)

// Exchange is the order-entry side of the adapter. Every outbound request is
// admitted through the account-level rate limiter first; order placement
// additionally claims an open-order slot that the reconciler releases when
// the order reaches a terminal state.
type Exchange struct {
	client   *krakenapi.RestClient
	limiter  *ratelimit.Limiter
	registry *core.OrderRegistry
}

func New(key, secret string, limiter *ratelimit.Limiter, registry *core.OrderRegistry) *Exchange {
	client := krakenapi.NewClient()
	if len(key) > 0 && len(secret) > 0 {
		client.Auth(key, secret)
	}

	return &Exchange{
		client:   client,
		limiter:  limiter,
		registry: registry,
	}
}

func (e *Exchange) Client() *krakenapi.RestClient {
	return e.client
}

func (e *Exchange) Limiter() *ratelimit.Limiter {
	return e.limiter
}

// SubmitOrder places an order. The open-order slot is claimed before any
// network traffic; if the REST call ultimately fails, the slot and the
// registry entry are rolled back so capacity is not leaked.
func (e *Exchange) SubmitOrder(ctx context.Context, submit types.SubmitOrder) (*types.Order, error) {
	if submit.LocalID == "" {
		submit.LocalID = uuid.NewString()
	}

	if err := e.limiter.AdmitOrder(submit.Symbol); err != nil {
		return nil, err
	}

	order := &types.Order{
		SubmitOrder:  submit,
		Status:       types.OrderStatusNew,
		CreationTime: time.Now(),
	}

	// track before sending so a fast stream notice can already resolve the
	// broker id assigned by the acknowledgment
	e.registry.Track(order)

	resp, err := e.sendOrder(ctx, order)
	if err != nil {
		e.registry.Remove(order.LocalID)
		e.limiter.ReleaseOrder(order.Symbol)
		return nil, errors.Wrapf(err, "order %s submit failed", order.LocalID)
	}

	for _, txid := range resp.TxIDs {
		e.registry.AddBrokerID(order.LocalID, txid)
	}

	log.Infof("submitted order %s", order.String())
	return order, nil
}

// CancelOrder cancels a tracked order. The age-dependent cancel weight is
// admitted before the request; a cancel does not release the open-order slot,
// that happens when the terminal notice is reconciled.
func (e *Exchange) CancelOrder(ctx context.Context, order *types.Order) error {
	brokerID := order.BrokerID()
	if brokerID == "" {
		return errors.Errorf("order %s has no broker id to cancel", order.LocalID)
	}

	if err := e.limiter.AdmitCancel(ctx, order.Symbol, order.Age(time.Now())); err != nil {
		return err
	}

	err := e.doWithRetry(ctx, func() error {
		_, err := e.client.CancelOrder(ctx, brokerID)
		return err
	})
	return errors.Wrapf(err, "cancel of order %s failed", order.LocalID)
}

// QueryOpenOrders fetches the resting orders from the exchange, converted to
// tracked-order form.
func (e *Exchange) QueryOpenOrders(ctx context.Context) ([]*types.Order, error) {
	if err := openOrderQueryLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var open map[string]krakenapi.OpenOrder
	err := e.doWithRetry(ctx, func() error {
		var err error
		open, err = e.client.QueryOpenOrders(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	orders := make([]*types.Order, 0, len(open))
	for txid, o := range open {
		order, err := toGlobalOrder(txid, o)
		if err != nil {
			log.WithError(err).Warnf("skipping open order %s", txid)
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// ResolveBrokerOrder implements core.OrderResolver: a last-resort REST lookup
// for a streamed notice whose broker id is not in the registry.
func (e *Exchange) ResolveBrokerOrder(ctx context.Context, brokerID string) (*types.Order, error) {
	orders, err := e.QueryOpenOrders(ctx)
	if err != nil {
		return nil, err
	}

	for _, order := range orders {
		for _, id := range order.BrokerIDs {
			if id == brokerID {
				return order, nil
			}
		}
	}
	return nil, nil
}

// QueryAccountBalances returns the account balances keyed by asset.
func (e *Exchange) QueryAccountBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	if err := balanceQueryLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var raw map[string]string
	err := e.doWithRetry(ctx, func() error {
		var err error
		raw, err = e.client.QueryBalances(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	balances := make(map[string]decimal.Decimal, len(raw))
	for asset, v := range raw {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed balance %q for %s", v, asset)
		}
		balances[asset] = d
	}
	return balances, nil
}

func (e *Exchange) sendOrder(ctx context.Context, order *types.Order) (*krakenapi.AddOrderResponse, error) {
	req := krakenapi.AddOrderRequest{
		Pair:      order.Symbol,
		Type:      toLocalSide(order.Side),
		OrderType: toLocalOrderType(order.Type),
		Volume:    order.Quantity.String(),
		OFlags:    feeCurrencyFlag(order.FeeCurrency),
	}
	if order.Type != types.OrderTypeMarket {
		req.Price = order.Price.String()
	}

	var resp *krakenapi.AddOrderResponse
	err := e.doWithRetry(ctx, func() error {
		var err error
		resp, err = e.client.AddOrder(ctx, req)
		return err
	})
	return resp, err
}

// doWithRetry runs one REST call, retrying on the exchange-side "too many
// requests" rejection with exponential backoff. Every attempt, including
// retries, is admitted through the common request limiter first.
func (e *Exchange) doWithRetry(ctx context.Context, call func() error) error {
	op := func() error {
		if err := e.limiter.AdmitRequest(ctx); err != nil {
			return backoff.Permanent(err)
		}

		err := call()
		if err == nil {
			return nil
		}
		if krakenapi.IsRateLimited(err) {
			log.WithError(err).Warnf("exchange-side rate limit hit, backing off")
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.Retry(op, b)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

func feeCurrencyFlag(feeCurrency string) string {
	switch strings.ToUpper(feeCurrency) {
	case "BASE":
		return "fcib"
	case "QUOTE":
		return "fciq"
	}
	return ""
}
