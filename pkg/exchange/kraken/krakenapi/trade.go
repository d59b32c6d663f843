package krakenapi

import (
	"context"
	"net/url"
)

// AddOrder places a new order through /0/private/AddOrder.
func (c *RestClient) AddOrder(ctx context.Context, r AddOrderRequest) (*AddOrderResponse, error) {
	params := url.Values{}
	params.Set("pair", r.Pair)
	params.Set("type", r.Type)
	params.Set("ordertype", r.OrderType)
	params.Set("volume", r.Volume)
	if r.Price != "" {
		params.Set("price", r.Price)
	}
	if r.UserRef != "" {
		params.Set("userref", r.UserRef)
	}
	if r.OFlags != "" {
		params.Set("oflags", r.OFlags)
	}

	req, err := c.NewAuthenticatedRequest(ctx, "/0/private/AddOrder", params)
	if err != nil {
		return nil, err
	}

	var resp AddOrderResponse
	if err := c.SendRequest(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelOrder cancels an order by its transaction id.
func (c *RestClient) CancelOrder(ctx context.Context, txid string) (*CancelOrderResponse, error) {
	params := url.Values{}
	params.Set("txid", txid)

	req, err := c.NewAuthenticatedRequest(ctx, "/0/private/CancelOrder", params)
	if err != nil {
		return nil, err
	}

	var resp CancelOrderResponse
	if err := c.SendRequest(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueryOpenOrders returns the open orders keyed by transaction id.
func (c *RestClient) QueryOpenOrders(ctx context.Context) (map[string]OpenOrder, error) {
	req, err := c.NewAuthenticatedRequest(ctx, "/0/private/OpenOrders", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Open map[string]OpenOrder `json:"open"`
	}
	if err := c.SendRequest(req, &resp); err != nil {
		return nil, err
	}
	return resp.Open, nil
}

// QueryBalances returns the account balances keyed by asset.
func (c *RestClient) QueryBalances(ctx context.Context) (map[string]string, error) {
	req, err := c.NewAuthenticatedRequest(ctx, "/0/private/Balance", nil)
	if err != nil {
		return nil, err
	}

	var resp map[string]string
	if err := c.SendRequest(req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetWebSocketsToken fetches the short-lived token that authenticates the
// private websocket feed subscriptions.
func (c *RestClient) GetWebSocketsToken(ctx context.Context) (*WebSocketTokenResponse, error) {
	req, err := c.NewAuthenticatedRequest(ctx, "/0/private/GetWebSocketsToken", nil)
	if err != nil {
		return nil, err
	}

	var resp WebSocketTokenResponse
	if err := c.SendRequest(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
