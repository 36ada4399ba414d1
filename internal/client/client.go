// Package client calls the hotspot JSON-RPC endpoint over HTTP.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	gojson "github.com/goccy/go-json"
	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"

	"github.com/getsentry/hotspot/internal/rpc"
)

type (
	Client struct {
		http *httpclient.Client
		url  string
		id   atomic.Uint64
	}

	Option func(*options)

	options struct {
		timeout time.Duration
		retries int
	}

	response struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      gojson.RawMessage `json:"id"`
		Result  gojson.RawMessage `json:"result"`
		Error   *rpc.Error        `json:"error"`
	}
)

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetries retries requests failing at the transport level or with a
// 5xx status. JSON-RPC errors are never retried.
func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// New returns a client posting to host + "/rpc".
func New(host string, opts ...Option) (*Client, error) {
	if host == "" {
		return nil, errors.New("host must be set")
	}
	o := options{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	httpOpts := []httpclient.Option{httpclient.WithHTTPTimeout(o.timeout)}
	if o.retries > 0 {
		backoff := heimdall.NewConstantBackoff(100*time.Millisecond, 50*time.Millisecond)
		httpOpts = append(httpOpts,
			httpclient.WithRetryCount(o.retries),
			httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
		)
	}
	return &Client{
		http: httpclient.NewClient(httpOpts...),
		url:  strings.TrimSuffix(host, "/") + "/rpc",
	}, nil
}

func (c *Client) URL() string {
	return c.url
}

// Call invokes method with params and decodes its result into result,
// which may be nil. A JSON-RPC error is returned as a *rpc.Error.
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	s := sentry.StartSpan(ctx, "http.client")
	s.Description = method
	defer s.Finish()

	req := rpc.Request{
		JSONRPC: rpc.Version,
		ID:      gojson.RawMessage(strconv.FormatUint(c.id.Add(1), 10)),
		Method:  method,
	}
	if params != nil {
		p, err := gojson.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = p
	}
	body, err := gojson.Marshal(req)
	if err != nil {
		return err
	}

	r, err := http.NewRequestWithContext(s.Context(), http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("sentry-trace", s.ToSentryTrace())
	resp, err := c.http.Do(r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("client: http status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var decoded response
	if err := gojson.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("client: can't decode response: %w", err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if result == nil || len(decoded.Result) == 0 {
		return nil
	}
	return gojson.Unmarshal(decoded.Result, result)
}
