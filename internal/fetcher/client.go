package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// ClientOptions parameterise the shared HTTP client.
type ClientOptions struct {
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	UserAgent string
}

// httpClient is a rate-limited GET helper shared by the providers.
type httpClient struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	name      string
}

func newHTTPClient(name string, opts ClientOptions) *httpClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &httpClient{
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, burst),
		userAgent: strings.TrimSpace(opts.UserAgent),
		name:      name,
	}
}

func (c *httpClient) get(ctx context.Context, endpoint string, headers map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, upstreamErr("%s rate limiter: %v", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	} else {
		req.Header.Set("User-Agent", "cotwatch/1.0")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, upstreamErr("%s request: %v", c.name, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstreamErr("%s read body: %v", c.name, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, c.name, endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(c.name, resp.StatusCode, payload)
	}
	return payload, nil
}

type errorResponse struct {
	Error       any    `json:"error"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

func parseHTTPError(name string, status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return upstreamErr("%s api error (%d): %s", name, status, apiErr.Message)
		}
		if apiErr.Description != "" {
			return upstreamErr("%s api error (%d): %s", name, status, apiErr.Description)
		}
	}
	if len(payload) > 0 {
		body := strings.TrimSpace(string(payload))
		if len(body) > 256 {
			body = body[:256]
		}
		return upstreamErr("%s api error (%d): %s", name, status, body)
	}
	return upstreamErr("%s api error (%d)", name, status)
}

// toDecimal coerces a JSON scalar to a decimal.
func toDecimal(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if s == "" {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}
