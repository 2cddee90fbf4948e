package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/cache"
	"github.com/sells-group/lead-pipeline/internal/dedupe"
	"github.com/sells-group/lead-pipeline/internal/enrich"
	"github.com/sells-group/lead-pipeline/internal/leads"
	"github.com/sells-group/lead-pipeline/internal/metrics"
	"github.com/sells-group/lead-pipeline/internal/resilience"
	"github.com/sells-group/lead-pipeline/internal/store"
	"github.com/sells-group/lead-pipeline/pkg/verifier"
	"github.com/sells-group/lead-pipeline/pkg/whois"
)

// appEnv holds the store and services shared by every command.
type appEnv struct {
	Store   store.Store
	Leads   *leads.Service
	Enrich  *enrich.Pipeline
	Dedupe  *dedupe.Sweeper
	Metrics *metrics.Metrics
	Cache   *cache.Client // nil when redis is not configured
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the config for mode and wires the services. Callers
// should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	env := &appEnv{Store: st, Metrics: metrics.New()}

	opts := []leads.Option{leads.WithMetrics(env.Metrics)}
	if cfg.Redis.URL != "" {
		c, err := cache.New(ctx, cfg.Redis.URL)
		if err != nil {
			zap.L().Warn("stats cache disabled", zap.Error(err))
		} else {
			env.Cache = c
			opts = append(opts, leads.WithStatsCache(c, cfg.Redis.StatsTTL()))
		}
	}
	env.Leads = leads.NewService(st, opts...)

	env.Enrich = enrich.New(st, initWhois(), initVerifier(),
		enrich.WithConcurrency(cfg.Enrich.Concurrency),
		enrich.WithBreakers(resilience.NewBreakerConfig(cfg.Enrich.BreakerThreshold, cfg.Enrich.BreakerResetSecs)),
		enrich.WithMetrics(env.Metrics),
	)
	env.Dedupe = dedupe.NewSweeper(st, env.Metrics)

	return env, nil
}

// initWhois returns nil when no WHOIS key is configured.
func initWhois() whois.Client {
	if cfg.Whois.Key == "" {
		zap.L().Info("whois enrichment disabled (no key)")
		return nil
	}
	return whois.NewClient(cfg.Whois.Key,
		whois.WithBaseURL(cfg.Whois.BaseURL),
		whois.WithRateLimit(cfg.Whois.RatePerSec),
		whois.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Whois.TimeoutSecs) * time.Second}),
	)
}

// initVerifier returns nil when no verifier key is configured.
func initVerifier() verifier.Client {
	if cfg.Verifier.Key == "" {
		zap.L().Info("email verification disabled (no key)")
		return nil
	}
	return verifier.NewClient(cfg.Verifier.Key,
		verifier.WithBaseURL(cfg.Verifier.BaseURL),
		verifier.WithRateLimit(cfg.Verifier.RatePerSec),
		verifier.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Verifier.TimeoutSecs) * time.Second}),
	)
}
