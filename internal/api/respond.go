package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// writeScraperError answers a scraper endpoint with {"error": message}.
func writeScraperError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal {
		zap.L().Error("api: request failed", zap.Error(err))
	}
	writeJSON(w, apperr.HTTPStatus(code), map[string]string{"error": apperr.MessageOf(err)})
}

type callableError struct {
	Status  apperr.Code `json:"status"`
	Message string      `json:"message"`
}

// writeCallableError answers an operator callable with
// {"error": {"status": CODE, "message": ...}}.
func writeCallableError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal {
		zap.L().Error("api: callable failed", zap.Error(err))
	}
	writeJSON(w, apperr.HTTPStatus(code), map[string]callableError{
		"error": {Status: code, Message: apperr.MessageOf(err)},
	})
}
