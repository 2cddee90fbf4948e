package leads

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/store"
)

// DailyCount is the number of leads created on one UTC day.
type DailyCount struct {
	Date     string         `json:"date"`
	Inserted int            `json:"inserted"`
	Source   map[string]int `json:"source"`
}

// Stats is the dashboard summary of the lead collection.
type Stats struct {
	TotalLeads  int            `json:"totalLeads"`
	NewLast24h  int            `json:"newLast24h"`
	NewLast7d   int            `json:"newLast7d"`
	NewLast30d  int            `json:"newLast30d"`
	BySource    map[string]int `json:"bySource"`
	ByStatus    map[string]int `json:"byStatus"`
	ByState     map[string]int `json:"byState"`
	DailyCounts []DailyCount   `json:"dailyCounts"`
}

func statsKey(days int) string {
	return fmt.Sprintf("leadstats:%d", days)
}

// Stats aggregates the whole collection plus a lookback window of days
// (default 30, at most 90). NewLast30d counts every lead inside the window.
func (s *Service) Stats(ctx context.Context, days int) (*Stats, error) {
	if days < 1 {
		days = DefaultStatsDays
	}
	days = min(days, MaxStatsDays)

	if s.cache != nil {
		var cached Stats
		hit, err := s.cache.GetJSON(ctx, statsKey(days), &cached)
		if err != nil {
			zap.L().Warn("leads: stats cache read", zap.Error(err))
		}
		s.metrics.RecordStatsCache(hit)
		if hit {
			return &cached, nil
		}
	}

	now := s.now().UTC()
	since := now.Add(-time.Duration(days) * 24 * time.Hour)

	var all, recent []model.Lead
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if all, err = s.store.ListLeads(gctx, store.LeadFilter{}); err != nil {
			return eris.Wrap(err, "leads: stats scan")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if recent, err = s.store.ListLeads(gctx, store.LeadFilter{CreatedFrom: &since, Order: store.Ascending}); err != nil {
			return eris.Wrap(err, "leads: stats window scan")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	st := aggregate(all, recent, now)

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, statsKey(days), st, s.cacheTTL); err != nil {
			zap.L().Warn("leads: stats cache write", zap.Error(err))
		}
	}
	return st, nil
}

func aggregate(all, recent []model.Lead, now time.Time) *Stats {
	st := &Stats{
		TotalLeads:  len(all),
		NewLast30d:  len(recent),
		BySource:    map[string]int{},
		ByStatus:    map[string]int{},
		ByState:     map[string]int{},
		DailyCounts: []DailyCount{},
	}
	for _, l := range all {
		st.BySource[string(l.Source)]++
		st.ByStatus[string(l.Status)]++
		if l.State != "" {
			st.ByState[l.State]++
		}
	}

	since24h := now.Add(-24 * time.Hour)
	since7d := now.Add(-7 * 24 * time.Hour)
	daily := map[string]*DailyCount{}
	for _, l := range recent {
		created := l.CreatedAt.UTC()
		key := created.Format(time.DateOnly)
		dc, ok := daily[key]
		if !ok {
			dc = &DailyCount{Date: key, Source: map[string]int{}}
			daily[key] = dc
		}
		dc.Inserted++
		dc.Source[string(l.Source)]++

		if !created.Before(since24h) {
			st.NewLast24h++
		}
		if !created.Before(since7d) {
			st.NewLast7d++
		}
	}
	for _, dc := range daily {
		st.DailyCounts = append(st.DailyCounts, *dc)
	}
	sort.Slice(st.DailyCounts, func(i, j int) bool {
		return st.DailyCounts[i].Date < st.DailyCounts[j].Date
	})
	return st
}
