package krakenapi

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*RestClient, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient()
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	client.BaseURL = u
	client.Auth("test-key", base64.StdEncoding.EncodeToString([]byte("test-secret")))
	return client, server
}

func TestRestClient_AddOrderSignsRequest(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/private/AddOrder", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("API-Key"))
		assert.NotEmpty(t, r.Header.Get("API-Sign"))

		require.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.PostForm.Get("nonce"))
		assert.Equal(t, "XBTUSD", r.PostForm.Get("pair"))
		assert.Equal(t, "buy", r.PostForm.Get("type"))
		assert.Equal(t, "limit", r.PostForm.Get("ordertype"))
		assert.Equal(t, "1.25", r.PostForm.Get("volume"))
		assert.Equal(t, "50000", r.PostForm.Get("price"))

		_, _ = w.Write([]byte(`{"error":[],"result":{"descr":{"order":"buy 1.25 XBTUSD @ limit 50000"},"txid":["OABC-123"]}}`))
	})

	resp, err := client.AddOrder(context.Background(), AddOrderRequest{
		Pair:      "XBTUSD",
		Type:      "buy",
		OrderType: "limit",
		Price:     "50000",
		Volume:    "1.25",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"OABC-123"}, resp.TxIDs)
}

func TestRestClient_ErrorEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":["EOrder:Rate limit exceeded"]}`))
	})

	_, err := client.CancelOrder(context.Background(), "OABC-123")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Contains(t, apiErr.Messages, "EOrder:Rate limit exceeded")
	assert.True(t, IsRateLimited(err))
}

func TestRestClient_QueryOpenOrders(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/private/OpenOrders", r.URL.Path)
		_, _ = w.Write([]byte(`{"error":[],"result":{"open":{
			"OABC-123":{"status":"open","vol":"2.0","vol_exec":"0.5","descr":{"pair":"XBT/USD","type":"sell","ordertype":"limit","price":"60000"}}
		}}}`))
	})

	open, err := client.QueryOpenOrders(context.Background())
	require.NoError(t, err)
	require.Contains(t, open, "OABC-123")

	order := open["OABC-123"]
	assert.Equal(t, "open", order.Status)
	assert.Equal(t, "0.5", order.VolumeExec)
	require.NotNil(t, order.Description)
	assert.Equal(t, "sell", order.Description.Type)
}

func TestRestClient_NonceIsStrictlyIncreasing(t *testing.T) {
	client := NewClient()

	var prev int64
	for i := 0; i < 100; i++ {
		n, err := strconv.ParseInt(client.nonce(), 10, 64)
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestIsRateLimited_OtherErrors(t *testing.T) {
	assert.False(t, IsRateLimited(nil))
	assert.False(t, IsRateLimited(assert.AnError))
	assert.False(t, IsRateLimited(&APIError{Messages: []string{"EGeneral:Invalid arguments"}}))
}
