package krakenapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

const defaultHTTPTimeout = 15 * time.Second

const RestBaseURL = "https://api.kraken.com"

// RestClient is a minimal client for the exchange's REST API. Public
// endpoints need no credentials; private endpoints are signed with
// HMAC-SHA512 over the URI path and the SHA256 of nonce+postdata.
type RestClient struct {
	BaseURL    *url.URL
	HttpClient *http.Client

	Key, Secret string

	lastNonce int64
}

func NewClient() *RestClient {
	u, err := url.Parse(RestBaseURL)
	if err != nil {
		panic(err)
	}

	return &RestClient{
		BaseURL: u,
		HttpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
}

func (c *RestClient) Auth(key, secret string) {
	c.Key = key
	// pragma: allowlist nextline secret
	c.Secret = secret
}

// nonce returns a strictly increasing nonce as the API requires.
func (c *RestClient) nonce() string {
	for {
		last := atomic.LoadInt64(&c.lastNonce)
		next := time.Now().UnixMilli()
		if next <= last {
			next = last + 1
		}
		if atomic.CompareAndSwapInt64(&c.lastNonce, last, next) {
			return strconv.FormatInt(next, 10)
		}
	}
}

// NewAuthenticatedRequest creates a signed POST request for a private
// endpoint such as /0/private/AddOrder.
func (c *RestClient) NewAuthenticatedRequest(ctx context.Context, refPath string, params url.Values) (*http.Request, error) {
	if len(c.Key) == 0 || len(c.Secret) == 0 {
		return nil, errors.New("empty api key or secret")
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("nonce", c.nonce())
	payload := params.Encode()

	rel, err := url.Parse(refPath)
	if err != nil {
		return nil, err
	}
	reqURL := c.BaseURL.ResolveReference(rel)

	sig, err := sign(c.Secret, rel.Path, params.Get("nonce"), payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), strings.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Add("API-Key", c.Key)
	req.Header.Add("API-Sign", sig)
	return req, nil
}

// NewPublicRequest creates an unsigned GET request.
func (c *RestClient) NewPublicRequest(ctx context.Context, refPath string, params url.Values) (*http.Request, error) {
	rel, err := url.Parse(refPath)
	if err != nil {
		return nil, err
	}
	if params != nil {
		rel.RawQuery = params.Encode()
	}

	reqURL := c.BaseURL.ResolveReference(rel)
	return http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
}

// SendRequest executes the request, decodes the error/result envelope and
// unmarshals result into v when v is non-nil.
func (c *RestClient) SendRequest(req *http.Request, v interface{}) error {
	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "request %s failed", req.URL.Path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "response read failed")
	}

	var envelope struct {
		Error  []string        `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errors.Wrapf(err, "malformed response for %s: %s", req.URL.Path, string(body))
	}

	if len(envelope.Error) > 0 {
		return &APIError{Path: req.URL.Path, Messages: envelope.Error}
	}

	if v == nil || len(envelope.Result) == 0 {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(envelope.Result, v), "result decode failed for %s", req.URL.Path)
}

// sign builds the API-Sign header value:
// base64(HMAC-SHA512(path + SHA256(nonce + postdata), base64-decode(secret)))
func sign(secret, path, nonce, payload string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return "", errors.Wrap(err, "api secret is not valid base64")
	}

	digest := sha256.Sum256([]byte(nonce + payload))
	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(path))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
