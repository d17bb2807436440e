package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/khulnasoft/pr-insight/internal/logger"
	"github.com/khulnasoft/pr-insight/internal/store/sqlite"
)

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// Middleware wraps next with panic recovery and request logging. Each
// request gets a request_id in its logging context.
func Middleware(ctx context.Context, serverType string, next http.Handler) http.Handler {
	return logging(ctx, serverType, recovery(next))
}

func logging(base context.Context, serverType string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		ctx := logger.WithLogger(r.Context(), logger.FromContext(base))
		ctx = logger.With(ctx, "server_type", serverType, "request_id", uuid.NewString())
		next.ServeHTTP(sw, r.WithContext(ctx))

		logger.Info(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}

func recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Warn(r.Context(), "panic recovered", "panic", v, "path", r.URL.Path)
				WriteError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// WriteJSON marshals v and writes it with status. A marshal failure turns
// into a 500.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

type errorResponse struct {
	Error string `json:"error"`
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, errorResponse{Error: message})
}

// Health answers GET / with {"status":"ok"}.
func Health(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatsSource summarizes merged pull requests.
type StatsSource interface {
	Summary(ctx context.Context, repo string) (sqlite.StatsSummary, error)
}

// Stats serves GET /api/v1/stats, optionally filtered with ?repo=owner/name.
func Stats(src StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := src.Summary(r.Context(), r.URL.Query().Get("repo"))
		if err != nil {
			logger.Error(r.Context(), "failed to summarize statistics", err)
			WriteError(w, http.StatusInternalServerError, "failed to summarize statistics")
			return
		}
		WriteJSON(w, http.StatusOK, summary)
	}
}
