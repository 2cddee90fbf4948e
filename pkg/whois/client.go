// Package whois is a client for the WhoisXML API WHOIS lookup service.
package whois

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

const defaultBaseURL = "https://www.whoisxmlapi.com/whoisserver/WhoisService"

// Client looks up WHOIS records by domain name.
type Client interface {
	Lookup(ctx context.Context, domain string) (*Record, error)
}

// Record is the subset of a WHOIS response the pipeline reads.
type Record struct {
	DomainName   string  `json:"domainName"`
	Registrant   Contact `json:"registrant"`
	ContactEmail string  `json:"contactEmail"`
}

// Contact is a WHOIS contact block.
type Contact struct {
	Name         string `json:"name"`
	Organization string `json:"organization"`
	Email        string `json:"email"`
}

// RegistrantEmail returns the registrant contact email, if any.
func (r *Record) RegistrantEmail() string {
	if r == nil {
		return ""
	}
	return r.Registrant.Email
}

type lookupResponse struct {
	WhoisRecord  *Record `json:"WhoisRecord"`
	ErrorMessage *struct {
		ErrorCode string `json:"errorCode"`
		Msg       string `json:"msg"`
	} `json:"ErrorMessage"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default service URL.
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

// WithRateLimit caps lookups per second. Non-positive values disable limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a WhoisXML API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Lookup(ctx context.Context, domain string) (*Record, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "whois: rate limit wait")
		}
	}

	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("domainName", domain)
	q.Set("outputFormat", "JSON")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(resilience.StripURL(err), "whois: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(resilience.StripURL(err), "whois: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(resilience.StripURL(err), "whois: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("whois: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var out lookupResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "whois: unmarshal response")
	}
	if out.ErrorMessage != nil {
		return nil, eris.Errorf("whois: %s: %s", out.ErrorMessage.ErrorCode, out.ErrorMessage.Msg)
	}
	if out.WhoisRecord == nil {
		return &Record{DomainName: domain}, nil
	}
	return out.WhoisRecord, nil
}
