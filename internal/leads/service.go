// Package leads implements ingestion, querying, statistics, export and status
// mutation over the lead store.
package leads

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/metrics"
	"github.com/sells-group/lead-pipeline/internal/store"
)

// Request limits.
const (
	MaxIngestBatch   = 500
	MaxStatusIDs     = 500
	DefaultPageSize  = 50
	MaxPageSize      = 200
	DefaultStatsDays = 30
	MaxStatsDays     = 90
	DefaultExportMax = 500
	MaxExportRows    = 5000
)

const statsKeyPattern = "leadstats:*"

// StatsCache stores computed statistics between requests.
type StatsCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// Service runs lead operations against a Store.
type Service struct {
	store    store.Store
	cache    StatsCache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	validate *validator.Validate
	now      func() time.Time

	statusConcurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithStatsCache caches Stats results for ttl.
func WithStatsCache(c StatsCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithMetrics records operation counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the wall clock used for stats windows and side-effect timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:             st,
		validate:          validator.New(),
		now:               time.Now,
		statusConcurrency: 8,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// InvalidateStats drops cached statistics after a write.
func (s *Service) InvalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.DeletePattern(ctx, statsKeyPattern); err != nil {
		zap.L().Warn("leads: invalidate stats cache", zap.Error(err))
	}
}
