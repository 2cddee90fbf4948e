package whois

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-pipeline/internal/resilience"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       string
		wantTransient bool
		wantEmail     string
	}{
		{
			name:      "registrant email",
			status:    200,
			body:      `{"WhoisRecord":{"domainName":"acme.com","registrant":{"name":"Jo","email":"Owner@Acme.com"}}}`,
			wantEmail: "Owner@Acme.com",
		},
		{
			name:   "no registrant",
			status: 200,
			body:   `{"WhoisRecord":{"domainName":"acme.com"}}`,
		},
		{
			name:   "no record",
			status: 200,
			body:   `{}`,
		},
		{
			name:    "api error message",
			status:  200,
			body:    `{"ErrorMessage":{"errorCode":"WHOIS_01","msg":"bad domain"}}`,
			wantErr: "WHOIS_01",
		},
		{
			name:          "rate limited",
			status:        429,
			body:          `slow down`,
			wantErr:       "unexpected status 429",
			wantTransient: true,
		},
		{
			name:    "unauthorized",
			status:  401,
			body:    `bad key`,
			wantErr: "unexpected status 401",
		},
		{
			name:    "malformed json",
			status:  200,
			body:    `{"WhoisRecord":`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "test-key", r.URL.Query().Get("apiKey"))
				assert.Equal(t, "acme.com", r.URL.Query().Get("domainName"))
				assert.Equal(t, "JSON", r.URL.Query().Get("outputFormat"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body)) //nolint:errcheck
			}))
			defer srv.Close()

			c := NewClient("test-key", WithBaseURL(srv.URL))
			rec, err := c.Lookup(context.Background(), "acme.com")

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, tt.wantTransient, resilience.IsTransient(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEmail, rec.RegistrantEmail())
		})
	}
}

func TestRegistrantEmail_NilRecord(t *testing.T) {
	var r *Record
	assert.Empty(t, r.RegistrantEmail())
}

func TestWithRateLimit(t *testing.T) {
	c := NewClient("k", WithRateLimit(4)).(*httpClient)
	require.NotNil(t, c.limiter)
	assert.Equal(t, rate.Limit(4), c.limiter.Limit())
	assert.Equal(t, 4, c.limiter.Burst())

	assert.Nil(t, NewClient("k", WithRateLimit(0)).(*httpClient).limiter)
	assert.Equal(t, 1, NewClient("k", WithRateLimit(0.5)).(*httpClient).limiter.Burst())
}

func TestLookup_RateLimitHonorsContext(t *testing.T) {
	c := NewClient("k", WithHTTPClient(&http.Client{Timeout: time.Second})).(*httpClient)
	c.limiter = rate.NewLimiter(rate.Every(time.Hour), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Lookup(ctx, "acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestLookup_TransportErrorOmitsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := NewClient("key-secret-123", WithBaseURL(base)).Lookup(context.Background(), "acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whois: send request")
	assert.NotContains(t, err.Error(), "key-secret-123")
	assert.True(t, resilience.IsTransient(err))
}
