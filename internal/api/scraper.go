package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/apperr"
	"github.com/sells-group/lead-pipeline/internal/leads"
	"github.com/sells-group/lead-pipeline/internal/model"
)

type ingestRequest struct {
	Leads []json.RawMessage `json:"leads"`
}

type ingestFailure struct {
	Error string `json:"error"`
	*leads.IngestResult
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeScraperError(w, apperr.InvalidArgument("leads array is required and must not be empty"))
		return
	}

	res, err := s.leads.Ingest(r.Context(), req.Leads)
	if err != nil && res != nil {
		// Earlier chunks were committed; report what landed.
		zap.L().Error("api: ingest partially failed", zap.Int("inserted", res.Inserted), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ingestFailure{Error: apperr.MessageOf(err), IngestResult: res})
		return
	}
	if err != nil {
		writeScraperError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	out, err := s.leads.Export(r.Context(), leads.ExportRequest{
		Status:     model.Status(q.Get("status")),
		Source:     model.Source(q.Get("source")),
		State:      q.Get("state"),
		Limit:      limit,
		MarkQueued: q.Get("markQueued") == "true",
		Format:     q.Get("format"),
	})
	if err != nil {
		writeScraperError(w, err)
		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Body)
}
