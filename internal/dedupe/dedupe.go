// Package dedupe removes leads that share a normalized email, keeping the
// earliest-created record.
package dedupe

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/chunk"
	"github.com/sells-group/lead-pipeline/internal/metrics"
	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/store"
)

// Result reports one sweep. DuplicatesFound and Removed are always equal.
type Result struct {
	DuplicatesFound int `json:"duplicatesFound"`
	Removed         int `json:"removed"`
}

// Sweeper runs dedupe sweeps over a Store.
type Sweeper struct {
	store   store.Store
	metrics *metrics.Metrics
}

// NewSweeper creates a Sweeper. m may be nil.
func NewSweeper(st store.Store, m *metrics.Metrics) *Sweeper {
	return &Sweeper{store: st, metrics: m}
}

// Run scans every lead oldest first and deletes each lead whose email was
// already seen. Leads without an email are left alone.
func (s *Sweeper) Run(ctx context.Context) (*Result, error) {
	leads, err := s.store.ListLeads(ctx, store.LeadFilter{Order: store.Ascending})
	if err != nil {
		return nil, eris.Wrap(err, "dedupe: scan leads")
	}

	dupes := duplicates(leads)
	res := &Result{DuplicatesFound: len(dupes)}

	for _, batch := range chunk.Split(dupes, store.MaxBatchWrites) {
		if _, err := s.store.DeleteLeads(ctx, batch); err != nil {
			s.metrics.RecordDedupe(res.Removed)
			return res, eris.Wrap(err, "dedupe: delete batch")
		}
		res.Removed += len(batch)
	}

	s.metrics.RecordDedupe(res.Removed)
	zap.L().Info("dedupe sweep complete",
		zap.Int("scanned", len(leads)),
		zap.Int("duplicates_found", res.DuplicatesFound),
		zap.Int("removed", res.Removed),
	)
	return res, nil
}

// duplicates returns the ids of every lead after the first for each email,
// in scan order.
func duplicates(leads []model.Lead) []string {
	seen := make(map[string]string, len(leads))
	var out []string
	for _, l := range leads {
		key := model.NormalizeEmail(l.Email)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			out = append(out, l.ID)
			continue
		}
		seen[key] = l.ID
	}
	return out
}
