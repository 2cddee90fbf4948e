package leads

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/apperr"
	"github.com/sells-group/lead-pipeline/internal/chunk"
	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/store"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const exportTimeLayout = "2006-01-02T15:04:05.000Z"

// ExportHeader is the fixed column set of every export.
var ExportHeader = []string{
	"id", "email", "name", "businessName", "phone", "website",
	"niche", "state", "city", "source", "sourceDetail", "createdAt",
}

// ExportRequest selects the leads to export.
type ExportRequest struct {
	Status     model.Status
	Source     model.Source
	State      string
	Limit      int
	MarkQueued bool
	Format     string
}

// Export is a rendered export file.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
	Queued      int
}

// Export renders the matching leads oldest first. Status defaults to new and
// the row limit to 500 (at most 5000). With MarkQueued set, every exported lead
// is moved to queued once the file has been rendered.
func (s *Service) Export(ctx context.Context, req ExportRequest) (*Export, error) {
	if req.Status == "" {
		req.Status = model.StatusNew
	}
	if req.Limit <= 0 {
		req.Limit = DefaultExportMax
	}
	req.Limit = min(req.Limit, MaxExportRows)
	if req.Format == "" {
		req.Format = FormatCSV
	}

	leads, err := s.store.ListLeads(ctx, store.LeadFilter{
		Status: req.Status,
		Source: req.Source,
		State:  req.State,
		Order:  store.Ascending,
		Limit:  req.Limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "leads: export query")
	}

	stamp := s.now().UnixMilli()
	out := &Export{Rows: len(leads)}
	switch req.Format {
	case FormatCSV:
		out.Body = []byte(renderCSV(leads))
		out.ContentType = "text/csv"
		out.Filename = fmt.Sprintf("leads-%d.csv", stamp)
	case FormatXLSX:
		body, err := renderXLSX(leads)
		if err != nil {
			return nil, err
		}
		out.Body = body
		out.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		out.Filename = fmt.Sprintf("leads-%d.xlsx", stamp)
	default:
		return nil, apperr.InvalidArgument("unsupported export format %q", req.Format)
	}

	if req.MarkQueued && len(leads) > 0 {
		if err := s.markQueued(ctx, leads); err != nil {
			return nil, err
		}
		out.Queued = len(leads)
		s.InvalidateStats(ctx)
	}

	s.metrics.RecordExport(out.Rows, out.Queued)
	zap.L().Info("leads exported",
		zap.String("format", req.Format),
		zap.Int("rows", out.Rows),
		zap.Int("queued", out.Queued),
	)
	return out, nil
}

func (s *Service) markQueued(ctx context.Context, leads []model.Lead) error {
	queued := model.StatusQueued
	for _, batch := range chunk.Split(leads, store.MaxBatchWrites) {
		updates := make([]store.LeadUpdate, len(batch))
		for i, l := range batch {
			updates[i] = store.LeadUpdate{ID: l.ID, Patch: model.LeadPatch{Status: &queued}}
		}
		if err := s.store.UpdateLeads(ctx, updates); err != nil {
			return eris.Wrap(err, "leads: mark queued")
		}
	}
	return nil
}

func exportRow(l model.Lead) []string {
	return []string{
		l.ID, l.Email, l.Name, l.BusinessName, l.Phone, l.Website,
		l.Niche, l.State, l.City, string(l.Source), l.SourceDetail,
		l.CreatedAt.UTC().Format(exportTimeLayout),
	}
}

// renderCSV writes the header row bare and every data field double-quoted,
// with embedded quotes doubled. Rows are separated by "\n".
func renderCSV(leads []model.Lead) string {
	var b strings.Builder
	b.WriteString(strings.Join(ExportHeader, ","))
	for _, l := range leads {
		b.WriteByte('\n')
		for i, f := range exportRow(l) {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(f, `"`, `""`))
			b.WriteByte('"')
		}
	}
	return b.String()
}
