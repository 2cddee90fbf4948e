package leads

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/apperr"
	"github.com/sells-group/lead-pipeline/internal/chunk"
	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/store"
)

// IngestResult reports what happened to each submitted entry.
type IngestResult struct {
	Received int `json:"received"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// ingestEntry is the validated shape of one submitted lead.
type ingestEntry struct {
	Email  string       `validate:"required"`
	Source model.Source `validate:"required"`
}

// Ingest validates, deduplicates and stores a scraper batch. Entries that do
// not decode, or lack an email or source, are counted in Errors. Entries whose
// email already exists, or repeats an earlier entry of the same batch, are
// counted in Skipped.
//
// Inserts are committed in chunks; when a chunk fails the counts accumulated
// so far are returned together with the error.
func (s *Service) Ingest(ctx context.Context, entries []json.RawMessage) (*IngestResult, error) {
	if len(entries) == 0 {
		return nil, apperr.InvalidArgument("leads array is required and must not be empty")
	}
	if len(entries) > MaxIngestBatch {
		return nil, apperr.InvalidArgument("Max %d leads per request", MaxIngestBatch)
	}

	res := &IngestResult{Received: len(entries)}

	var (
		valid    []model.Lead
		unlisted int
	)
	seen := make(map[string]bool, len(entries))
	for _, raw := range entries {
		var in model.LeadInput
		if err := json.Unmarshal(raw, &in); err != nil {
			res.Errors++
			continue
		}
		in.Email = model.NormalizeEmail(in.Email)
		if err := s.validate.Struct(ingestEntry{Email: in.Email, Source: in.Source}); err != nil {
			res.Errors++
			continue
		}
		if seen[in.Email] {
			res.Skipped++
			continue
		}
		seen[in.Email] = true
		if !model.ValidSource(in.Source) {
			unlisted++
		}

		l := model.LeadFromInput(in)
		l.PhoneE164 = phoneE164(in.Phone)
		valid = append(valid, l)
	}

	existing, err := s.existingEmails(ctx, valid)
	if err != nil {
		return res, err
	}

	fresh := valid[:0:0]
	for _, l := range valid {
		if existing[l.Email] {
			res.Skipped++
			continue
		}
		fresh = append(fresh, l)
	}

	defer func() {
		s.metrics.RecordIngest(res.Inserted, res.Skipped, res.Errors)
		if res.Inserted > 0 {
			s.InvalidateStats(context.WithoutCancel(ctx))
		}
	}()

	for _, batch := range chunk.Split(fresh, store.MaxBatchWrites) {
		saved, err := s.store.InsertLeads(ctx, batch)
		if err != nil {
			zap.L().Error("leads: insert chunk failed",
				zap.Int("chunk_size", len(batch)),
				zap.Int("inserted_so_far", res.Inserted),
				zap.Error(err),
			)
			return res, eris.Wrap(err, "leads: insert chunk")
		}
		res.Inserted += len(saved)
	}

	zap.L().Info("leads ingested",
		zap.Int("received", res.Received),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", res.Errors),
		zap.Int("unlisted_sources", unlisted),
	)
	return res, nil
}

func (s *Service) existingEmails(ctx context.Context, leads []model.Lead) (map[string]bool, error) {
	emails := make([]string, len(leads))
	for i, l := range leads {
		emails[i] = l.Email
	}

	existing := make(map[string]bool)
	for _, group := range chunk.Split(emails, store.MaxInValues) {
		found, err := s.store.FindExistingEmails(ctx, group)
		if err != nil {
			return nil, eris.Wrap(err, "leads: find existing emails")
		}
		for _, e := range found {
			existing[e] = true
		}
	}
	return existing, nil
}
