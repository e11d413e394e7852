package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxResponseBytes = 8 << 20

// httpClient performs public REST calls against one venue and turns
// transport and status failures into *Error values.
type httpClient struct {
	exchange string
	baseURL  string
	client   *http.Client
}

func newHTTPClient(exchange, baseURL string, timeout time.Duration) *httpClient {
	return &httpClient{
		exchange: exchange,
		baseURL:  baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(ctx, req)
}

func (c *httpClient) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, req)
}

func (c *httpClient) do(ctx context.Context, req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Exchange: c.exchange, Message: "request failed", Kind: KindNetworkTransient, Original: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Exchange: c.exchange, Message: "failed to read response", Kind: KindNetworkTransient, Original: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Exchange: c.exchange, Code: "429", Message: "too many requests", Kind: KindRateLimited}
	case resp.StatusCode >= 500:
		return nil, &Error{
			Exchange: c.exchange,
			Code:     strconv.Itoa(resp.StatusCode),
			Message:  "server error: " + snippet(body),
			Kind:     KindNetworkTransient,
		}
	case resp.StatusCode >= 400:
		return nil, &Error{
			Exchange: c.exchange,
			Code:     strconv.Itoa(resp.StatusCode),
			Message:  "request rejected: " + snippet(body),
			Kind:     KindRejected,
		}
	}

	return body, nil
}

func (c *httpClient) close() {
	c.client.CloseIdleConnections()
}

func snippet(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

// decodeError wraps a malformed payload as a rejection.
func (c *httpClient) decodeError(what string, err error) error {
	return &Error{Exchange: c.exchange, Message: "failed to decode " + what, Kind: KindRejected, Original: err}
}
