// Package verifier is a client for the email verification API.
package verifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-pipeline/internal/resilience"
)

const defaultBaseURL = "https://verifier.meetchopra.com"

// StatusValid is the only status that marks an address deliverable.
const StatusValid = "valid"

// Client verifies email deliverability.
type Client interface {
	Verify(ctx context.Context, email string) (*Result, error)
}

// Result is a verification response.
type Result struct {
	Email  string `json:"email"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Valid reports whether the provider judged the address deliverable.
func (r *Result) Valid() bool {
	return r != nil && r.Status == StatusValid
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps verifications per second. Non-positive values disable limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a verification client authenticated by token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Verify(ctx context.Context, email string) (*Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "verifier: rate limit wait")
		}
	}

	endpoint := c.baseURL + "/verify/" + url.PathEscape(email) + "?token=" + url.QueryEscape(c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(resilience.StripURL(err), "verifier: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(resilience.StripURL(err), "verifier: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(resilience.StripURL(err), "verifier: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("verifier: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var out Result
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "verifier: unmarshal response")
	}
	if out.Status == "" {
		return nil, eris.New("verifier: response has no status")
	}
	return &out, nil
}
