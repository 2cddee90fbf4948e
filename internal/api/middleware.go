package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/apperr"
	"github.com/sells-group/lead-pipeline/internal/model"
)

// ScraperSecretHeader carries the pre-shared scraper secret.
const ScraperSecretHeader = "X-Scraper-Secret"

type ctxKey int

const operatorKey ctxKey = iota

// OperatorFrom returns the operator authenticated for the request, if any.
func OperatorFrom(ctx context.Context) *model.Operator {
	op, _ := ctx.Value(operatorKey).(*model.Operator)
	return op
}

func operatorID(ctx context.Context) string {
	if op := OperatorFrom(ctx); op != nil {
		return op.ID
	}
	return ""
}

// observe logs every request and records HTTP metrics under the matched route.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(r.Method, route, status, elapsed)

		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// allowMethod rejects other methods before any authentication runs.
func allowMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
			return
		}
		next(w, r)
	}
}

func (s *Server) requireScraperSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !secretMatches(s.cfg.ScraperSecret, r.Header.Get(ScraperSecretHeader)) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

// secretMatches compares in constant time. An unset expected secret never matches.
func secretMatches(expected, provided string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

// requireOperator admits requests bearing a valid token for a dev operator.
// Preflight requests pass through to the CORS handler.
func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeCallableError(w, apperr.Unauthenticated("Authentication required."))
			return
		}
		sub, err := ParseOperatorToken(s.cfg.OperatorJWTSecret, raw)
		if err != nil {
			writeCallableError(w, apperr.Unauthenticated("Authentication required."))
			return
		}

		op, err := s.backend.GetOperator(r.Context(), sub)
		if err != nil {
			zap.L().Error("api: operator lookup failed", zap.String("operator_id", sub), zap.Error(err))
			writeCallableError(w, apperr.Internal(err))
			return
		}
		if op == nil || !op.IsDev {
			writeCallableError(w, apperr.PermissionDenied("Dev access required."))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), operatorKey, op)))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
