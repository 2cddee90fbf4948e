package leads

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-pipeline/internal/apperr"
	"github.com/sells-group/lead-pipeline/internal/model"
)

// StatusRequest sets the status of a set of leads.
type StatusRequest struct {
	IDs            []string     `json:"ids" validate:"required,min=1,max=500"`
	Status         model.Status `json:"status" validate:"required"`
	OutreachSentAt string       `json:"outreachSentAt,omitempty"`
}

// StatusResult counts per-id outcomes.
type StatusResult struct {
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

// UpdateStatus applies req.Status to every id. Each id is written on its own,
// so a missing or failing id is counted in Errors without affecting the rest.
// Side-effect fields follow the new status: sent records OutreachSentAt when
// one is given, bounced sets OutreachBounced, converted stamps ConvertedAt.
func (s *Service) UpdateStatus(ctx context.Context, req StatusRequest) (*StatusResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, statusRequestError(err)
	}
	if !model.ValidStatus(req.Status) {
		return nil, apperr.InvalidArgument("unknown status %q", req.Status)
	}

	patch := model.LeadPatch{Status: &req.Status}
	switch req.Status {
	case model.StatusSent:
		if req.OutreachSentAt != "" {
			sentAt, err := time.Parse(time.RFC3339, req.OutreachSentAt)
			if err != nil {
				return nil, apperr.InvalidArgument("outreachSentAt must be RFC3339")
			}
			patch.OutreachSentAt = &sentAt
		}
	case model.StatusBounced:
		patch.OutreachBounced = model.Ptr(true)
	case model.StatusConverted:
		patch.ConvertedAt = model.Ptr(s.now().UTC())
	}

	var updated, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.statusConcurrency)
	for _, id := range req.IDs {
		g.Go(func() error {
			if err := s.store.UpdateLead(gctx, id, patch); err != nil {
				failed.Add(1)
				zap.L().Warn("leads: status update failed", zap.String("id", id), zap.Error(err))
				return nil
			}
			updated.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res := &StatusResult{Updated: int(updated.Load()), Errors: int(failed.Load())}
	s.metrics.RecordStatusUpdates(res.Updated, res.Errors)
	if res.Updated > 0 {
		s.InvalidateStats(ctx)
	}
	return res, nil
}

func statusRequestError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.InvalidArgument("invalid request")
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "IDs" && fe.Tag() == "max":
		return apperr.InvalidArgument("Max %d ids per call", MaxStatusIDs)
	case fe.Field() == "IDs":
		return apperr.InvalidArgument("ids array is required")
	default:
		return apperr.InvalidArgument("status is required")
	}
}
