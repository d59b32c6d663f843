package krakenapi

import (
	"fmt"
	"strings"
)

// APIError carries the error class strings of the exchange's error envelope,
// e.g. "EOrder:Rate limit exceeded" or "EAPI:Invalid key".
type APIError struct {
	Path     string
	Messages []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kraken api error on %s: %s", e.Path, strings.Join(e.Messages, "; "))
}

// IsRateLimited reports whether the error is the exchange-side "too many
// requests" rejection, which is retryable after backing off.
func IsRateLimited(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}

	for _, msg := range apiErr.Messages {
		if strings.Contains(msg, "Rate limit exceeded") || strings.Contains(msg, "Too many requests") {
			return true
		}
	}
	return false
}

// OrderDescription is the descr block of an open order.
type OrderDescription struct {
	Pair      string `json:"pair"`
	Type      string `json:"type"` // buy or sell
	OrderType string `json:"ordertype"`
	Price     string `json:"price"`
	Price2    string `json:"price2"`
	Leverage  string `json:"leverage"`
	Order     string `json:"order"`
	Close     string `json:"close"`
}

// OpenOrder is one order record of the OpenOrders result.
type OpenOrder struct {
	RefID       string            `json:"refid"`
	UserRef     int64             `json:"userref"`
	Status      string            `json:"status"`
	OpenTime    float64           `json:"opentm"`
	StartTime   float64           `json:"starttm"`
	ExpireTime  float64           `json:"expiretm"`
	Description *OrderDescription `json:"descr"`
	Volume      string            `json:"vol"`
	VolumeExec  string            `json:"vol_exec"`
	Cost        string            `json:"cost"`
	Fee         string            `json:"fee"`
	AvgPrice    string            `json:"price"` // average price of executed portion
	StopPrice   string            `json:"stopprice"`
	Misc        string            `json:"misc"`
	OrderFlags  string            `json:"oflags"`
}

// AddOrderRequest is the form payload of /0/private/AddOrder.
type AddOrderRequest struct {
	Pair      string
	Type      string // buy or sell
	OrderType string // limit, market, stop-loss, ...
	Price     string
	Volume    string
	UserRef   string
	OFlags    string // e.g. fee currency preference: fcib / fciq
}

// AddOrderResponse is the result block of AddOrder.
type AddOrderResponse struct {
	Description struct {
		Order string `json:"order"`
		Close string `json:"close"`
	} `json:"descr"`
	TxIDs []string `json:"txid"`
}

// CancelOrderResponse is the result block of CancelOrder.
type CancelOrderResponse struct {
	Count   int  `json:"count"`
	Pending bool `json:"pending"`
}

// WebSocketTokenResponse is the result block of GetWebSocketsToken.
type WebSocketTokenResponse struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}
