package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"stockbars/internal/model"
)

// Client talks to the chart provider's HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a provider client. token may be empty for anonymous
// access.
func NewClient(baseURL, token string, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      token,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chartResponse struct {
	Bars []model.Bar `json:"bars"`
}

type quotaResponse struct {
	Remaining int   `json:"remaining"`
	RefillMs  int64 `json:"refill_ms"`
}

// RequestChunk fetches 1-minute bars for [from, to], both inclusive
// YYYYMMDD. An empty slice is a valid answer.
func (c *Client) RequestChunk(ctx context.Context, code string, from, to int) (model.Bars, error) {
	query := url.Values{}
	query.Set("code", code)
	query.Set("from", strconv.Itoa(from))
	query.Set("to", strconv.Itoa(to))
	query.Set("interval", "1m")

	c.logger.Debug("requesting chunk",
		zap.String("code", code),
		zap.Int("from", from),
		zap.Int("to", to),
	)

	body, err := c.get(ctx, "/v1/chart", query)
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode chart response: %w", err)
	}
	return resp.Bars, nil
}

// Quota probes the provider's remaining call budget and its suggested wait
// when exhausted.
func (c *Client) Quota() (int, time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	body, err := c.get(ctx, "/v1/quota", nil)
	if err != nil {
		return 0, 0, err
	}

	var resp quotaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, 0, fmt.Errorf("decode quota response: %w", err)
	}
	return resp.Remaining, time.Duration(resp.RefillMs) * time.Millisecond, nil
}

// Remaining implements ratelimit.QuotaProbe.
func (c *Client) Remaining() (int, time.Duration, error) {
	return c.Quota()
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
