package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"thinkbox/internal/contextutil"
)

// OwnerHeader carries the authenticated user's id, set by the upstream auth proxy.
const OwnerHeader = "X-User-ID"

// healthPath is not logged when it succeeds.
const healthPath = "/api/health"

var tracer = otel.Tracer("thinkbox/http")

// RequestRecorder receives one observation per served request.
type RequestRecorder interface {
	RecordRequest(ctx context.Context, method, route string, status int, seconds float64)
}

// LoggerMiddleware adds a structured logger to the request context.
func LoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := slog.Default().With(
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			logger = logger.With("request_id", reqID)
		}
		ctx := contextutil.WithLogger(r.Context(), logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs each completed request with its status and duration.
// Successful health checks are skipped.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		if (r.URL.Path == healthPath || r.URL.Path == "/") && rw.statusCode == http.StatusOK {
			return
		}
		ctx := r.Context()
		contextutil.LoggerFromContext(ctx).InfoContext(ctx, "request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// CORS returns a middleware that allows cross-origin requests from origins.
// A "*" entry allows every origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowAll := slices.Contains(origins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case origin == "":
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowAll || slices.Contains(origins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+OwnerHeader)
			w.Header().Set("Access-Control-Max-Age", "3600")

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwner rejects requests without an owner and stores the owner in the context.
// Browsers opening a note page can pass the owner as the userId query parameter instead of the header.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if owner == "" && r.Method == http.MethodGet {
			owner = strings.TrimSpace(r.URL.Query().Get("userId"))
		}
		if owner == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Authentication required"})
			return
		}

		ctx := contextutil.WithOwner(r.Context(), owner)
		ctx = contextutil.WithLogger(ctx, contextutil.LoggerFromContext(ctx).With("owner_id", owner))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Telemetry wraps each request in a span and reports it to recorder, labelled by route pattern.
// recorder may be nil.
func Telemetry(recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
				),
			)
			defer span.End()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", status),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}

			if recorder != nil {
				recorder.RecordRequest(ctx, r.Method, route, status, time.Since(start).Seconds())
			}
		})
	}
}
