package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/apperr"
	"github.com/sells-group/lead-pipeline/internal/dedupe"
	"github.com/sells-group/lead-pipeline/internal/enrich"
	"github.com/sells-group/lead-pipeline/internal/leads"
)

// callable adapts fn to the {"data": ...} / {"result": ...} envelope.
func callable[Req, Resp any](fn func(context.Context, Req) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := decodeData(w, r, &req); err != nil {
			writeCallableError(w, err)
			return
		}
		res, err := fn(r.Context(), req)
		if err != nil {
			zap.L().Warn("operator call failed",
				zap.String("operator", operatorID(r.Context())),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			writeCallableError(w, err)
			return
		}
		zap.L().Info("operator call",
			zap.String("operator", operatorID(r.Context())),
			zap.String("path", r.URL.Path),
		)
		writeJSON(w, http.StatusOK, map[string]any{"result": res})
	}
}

// decodeData reads the request envelope into dst. An empty body or a null
// data field leaves dst zero.
func decodeData(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return apperr.InvalidArgument("request body too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return apperr.InvalidArgument("request body must be a JSON object with a data field")
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return apperr.InvalidArgument("invalid data: %v", err)
	}
	return nil
}

type statsRequest struct {
	Days int `json:"days"`
}

type empty struct{}

func (s *Server) getLeads(ctx context.Context, req leads.ListRequest) (*leads.ListResult, error) {
	return s.leads.List(ctx, req)
}

func (s *Server) getLeadStats(ctx context.Context, req statsRequest) (*leads.Stats, error) {
	return s.leads.Stats(ctx, req.Days)
}

func (s *Server) updateLeadStatus(ctx context.Context, req leads.StatusRequest) (*leads.StatusResult, error) {
	return s.leads.UpdateStatus(ctx, req)
}

func (s *Server) enrichLeads(ctx context.Context, req enrich.Request) (*enrich.Result, error) {
	res, err := s.enrich.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	s.leads.InvalidateStats(ctx)
	return res, nil
}

func (s *Server) dedupeLeads(ctx context.Context, _ empty) (*dedupe.Result, error) {
	res, err := s.dedupe.Run(ctx)
	if err != nil {
		return nil, err
	}
	s.leads.InvalidateStats(ctx)
	return res, nil
}
