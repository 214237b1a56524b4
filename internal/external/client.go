// Package external wraps outbound HTTP calls to third-party APIs (forecast
// services, SMS gateways, fire-risk feed) behind a circuit breaker, so an
// unattended job stops hammering a provider that is down.
package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// errUpstream marks responses the breaker counts as failures.
var errUpstream = errors.New("upstream failure")

// ErrCircuitOpen is returned while the breaker refuses calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Client is an http.Client guarded by a circuit breaker.
type Client struct {
	name       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	userAgent  string
}

// NewClient creates a client. The breaker opens after four consecutive
// failures (transport errors, 5xx or 429) and probes again after a minute.
func NewClient(httpClient *http.Client, name, userAgent string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		name:       name,
		httpClient: httpClient,
		userAgent:  userAgent,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    10 * time.Minute,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
		}),
	}
}

// Name returns the provider name used in errors and breaker state.
func (c *Client) Name() string {
	return c.name
}

// State exposes the breaker state for health output.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Do executes req. Any non-2xx status is turned into an *APIError after the
// body has been drained; on success the caller closes the body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			return r, errUpstream
		}
		return r, nil
	})
	if err != nil {
		if resp != nil {
			return nil, c.apiError(resp)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s unavailable: %w", c.name, ErrCircuitOpen)
		}
		return nil, fmt.Errorf("failed to perform %s request: %w", c.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.apiError(resp)
	}
	return resp, nil
}

// GetJSON performs a GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.name, err)
	}
	return nil
}

func (c *Client) apiError(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return &APIError{
		Provider:   c.name,
		StatusCode: resp.StatusCode,
		Message:    string(body),
	}
}
