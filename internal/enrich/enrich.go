// Package enrich fills in WHOIS registrant emails and deliverability results
// on stored leads.
package enrich

import (
	"context"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-pipeline/internal/metrics"
	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/resilience"
	"github.com/sells-group/lead-pipeline/internal/store"
	"github.com/sells-group/lead-pipeline/pkg/verifier"
	"github.com/sells-group/lead-pipeline/pkg/whois"
)

const (
	// MaxLeads caps the leads handled by one pass.
	MaxLeads = 100

	defaultConcurrency = 4
)

// Request selects the leads to enrich. Explicit IDs take precedence over Limit.
type Request struct {
	IDs   []string `json:"ids,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// Result counts the outcomes of one pass.
type Result struct {
	Processed int `json:"processed"`
	WhoisHits int `json:"whoisHits"`
	Verified  int `json:"verified"`
	Bounced   int `json:"bounced"`
}

// Pipeline runs enrichment passes. A nil provider client skips that step.
type Pipeline struct {
	store    store.Store
	whois    whois.Client
	verifier verifier.Client

	whoisBreaker  *resilience.Breaker
	verifyBreaker *resilience.Breaker

	concurrency int
	metrics     *metrics.Metrics
	now         func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConcurrency sets how many leads are processed at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithBreakers puts each provider behind its own breaker built from cfg.
func WithBreakers(cfg resilience.BreakerConfig) Option {
	return func(p *Pipeline) {
		p.whoisBreaker = resilience.NewBreaker("whois", cfg)
		p.verifyBreaker = resilience.NewBreaker("verifier", cfg)
	}
}

// WithMetrics records pass outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides the clock used for emailVerifiedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. wc and vc may be nil when no provider key is configured.
func New(st store.Store, wc whois.Client, vc verifier.Client, opts ...Option) *Pipeline {
	def := resilience.NewBreakerConfig(0, 0)
	p := &Pipeline{
		store:         st,
		whois:         wc,
		verifier:      vc,
		whoisBreaker:  resilience.NewBreaker("whois", def),
		verifyBreaker: resilience.NewBreaker("verifier", def),
		concurrency:   defaultConcurrency,
		now:           time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run enriches the selected leads. Provider failures are logged and skipped;
// a failed store write aborts the pass.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	leads, err := p.selectLeads(ctx, req)
	if err != nil {
		return nil, err
	}

	var whoisHits, verified, bounced atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, l := range leads {
		g.Go(func() error {
			o, err := p.enrichLead(gctx, l)
			if err != nil {
				return err
			}
			if o.whoisHit {
				whoisHits.Add(1)
			}
			switch o.verified {
			case verdictValid:
				verified.Add(1)
			case verdictInvalid:
				bounced.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Processed: len(leads),
		WhoisHits: int(whoisHits.Load()),
		Verified:  int(verified.Load()),
		Bounced:   int(bounced.Load()),
	}
	p.metrics.RecordEnrich(res.Processed, res.WhoisHits, res.Verified, res.Bounced)
	zap.L().Info("enrichment pass complete",
		zap.Int("processed", res.Processed),
		zap.Int("whois_hits", res.WhoisHits),
		zap.Int("verified", res.Verified),
		zap.Int("bounced", res.Bounced),
	)
	return res, nil
}

func (p *Pipeline) selectLeads(ctx context.Context, req Request) ([]model.Lead, error) {
	if len(req.IDs) > 0 {
		return p.fetchByID(ctx, req.IDs[:min(len(req.IDs), MaxLeads)])
	}

	limit := req.Limit
	if limit <= 0 {
		limit = MaxLeads
	}
	leads, err := p.store.ListLeads(ctx, store.LeadFilter{
		Status:          model.StatusNew,
		EmailUnverified: true,
		Order:           store.Ascending,
		Limit:           min(limit, MaxLeads),
	})
	if err != nil {
		return nil, eris.Wrap(err, "enrich: select leads")
	}
	return leads, nil
}

// fetchByID loads ids concurrently, dropping the ones that do not exist.
func (p *Pipeline) fetchByID(ctx context.Context, ids []string) ([]model.Lead, error) {
	found := make([]*model.Lead, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for i, id := range ids {
		g.Go(func() error {
			l, err := p.store.GetLead(gctx, id)
			if err != nil {
				return eris.Wrapf(err, "enrich: get lead %s", id)
			}
			found[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []model.Lead
	for _, l := range found {
		if l != nil {
			out = append(out, *l)
		}
	}
	return out, nil
}

type verdict int

const (
	verdictNone verdict = iota
	verdictValid
	verdictInvalid
)

type outcome struct {
	whoisHit bool
	verified verdict
}

func (p *Pipeline) enrichLead(ctx context.Context, l model.Lead) (outcome, error) {
	var (
		o     outcome
		patch model.LeadPatch
		log   = zap.L().With(zap.String("lead_id", l.ID))
	)

	if p.whois != nil && l.Website != "" {
		if email, err := p.registrantEmail(ctx, l); err != nil {
			log.Debug("enrich: whois lookup skipped", zap.Error(err))
		} else if email != "" {
			patch.WhoisEmail = &email
			o.whoisHit = true
		}
	}

	if p.verifier != nil {
		res, err := resilience.Call(ctx, p.verifyBreaker, func(ctx context.Context) (*verifier.Result, error) {
			return p.verifier.Verify(ctx, l.Email)
		})
		if err != nil {
			log.Debug("enrich: verification skipped", zap.Error(err))
		} else {
			valid := res.Valid()
			patch.EmailVerified = &valid
			patch.EmailVerifiedAt = model.Ptr(p.now().UTC())
			if valid {
				o.verified = verdictValid
			} else {
				patch.Status = model.Ptr(model.StatusBounced)
				patch.OutreachBounced = model.Ptr(true)
				o.verified = verdictInvalid
			}
		}
	}

	if err := p.store.UpdateLead(ctx, l.ID, patch); err != nil {
		return o, eris.Wrapf(err, "enrich: update lead %s", l.ID)
	}
	return o, nil
}

// registrantEmail returns the usable WHOIS registrant email for the lead's
// website, or "" when there is none.
func (p *Pipeline) registrantEmail(ctx context.Context, l model.Lead) (string, error) {
	domain := domainOf(l.Website)
	if domain == "" {
		return "", eris.Errorf("enrich: no domain in %q", l.Website)
	}
	rec, err := resilience.Call(ctx, p.whoisBreaker, func(ctx context.Context) (*whois.Record, error) {
		return p.whois.Lookup(ctx, domain)
	})
	if err != nil {
		return "", err
	}

	email := strings.ToLower(strings.TrimSpace(rec.RegistrantEmail()))
	if email == "" || email == model.NormalizeEmail(l.Email) {
		return "", nil
	}
	if strings.Contains(email, "privacy") || strings.Contains(email, "redacted") {
		return "", nil
	}
	return email, nil
}

// domainOf extracts the host of a website, accepting bare hosts and dropping
// a leading "www.".
func domainOf(website string) string {
	raw := strings.TrimSpace(website)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
