package leads

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-pipeline/internal/apperr"
	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/store"
)

// ListRequest filters and pages a lead listing.
type ListRequest struct {
	Status     model.Status `json:"status,omitempty"`
	Source     model.Source `json:"source,omitempty"`
	State      string       `json:"state,omitempty"`
	Niche      string       `json:"niche,omitempty"`
	DateFrom   string       `json:"dateFrom,omitempty"`
	DateTo     string       `json:"dateTo,omitempty"`
	PageSize   int          `json:"pageSize,omitempty"`
	StartAfter string       `json:"startAfter,omitempty"`
}

// ListResult is one page of leads, newest first.
type ListResult struct {
	Leads      []model.Lead `json:"leads"`
	HasMore    bool         `json:"hasMore"`
	NextCursor *string      `json:"nextCursor"`
}

// List returns a page of leads ordered newest first. NextCursor is the id of
// the last lead on the page and is only set when more leads follow.
func (s *Service) List(ctx context.Context, req ListRequest) (*ListResult, error) {
	size := req.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	size = min(size, MaxPageSize)

	from, err := parseDate("dateFrom", req.DateFrom)
	if err != nil {
		return nil, err
	}
	to, err := parseDate("dateTo", req.DateTo)
	if err != nil {
		return nil, err
	}

	leads, err := s.store.ListLeads(ctx, store.LeadFilter{
		Status:      req.Status,
		Source:      req.Source,
		State:       req.State,
		Niche:       req.Niche,
		CreatedFrom: from,
		CreatedTo:   to,
		Order:       store.Descending,
		StartAfter:  req.StartAfter,
		Limit:       size + 1,
	})
	if err != nil {
		return nil, eris.Wrap(err, "leads: list")
	}

	res := &ListResult{Leads: leads}
	if len(leads) > size {
		res.Leads = leads[:size]
		res.HasMore = true
		last := res.Leads[size-1].ID
		res.NextCursor = &last
	}
	if res.Leads == nil {
		res.Leads = []model.Lead{}
	}
	return res, nil
}

// parseDate accepts RFC3339 timestamps or bare YYYY-MM-DD dates (midnight UTC).
func parseDate(field, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return &t, nil
	}
	return nil, apperr.InvalidArgument("%s must be RFC3339 or YYYY-MM-DD", field)
}
