package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"thinkbox/internal/contextutil"
	"thinkbox/internal/vectorstore"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// BreakerState reports the state of the generation circuit breaker.
type BreakerState interface {
	State() string
}

// CollectionInspector reads vector index metadata.
type CollectionInspector interface {
	GetCollectionInfo(ctx context.Context, collection string) (*vectorstore.CollectionInfo, error)
}

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	db                 Pinger
	generator          BreakerState
	vectorIndex        CollectionInspector
	collectionName     string
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler. generator and vectorIndex may be nil.
func NewHealthHandler(db Pinger, generator BreakerState, vectorIndex CollectionInspector, collectionName string) *HealthHandler {
	return &HealthHandler{
		db:                 db,
		generator:          generator,
		vectorIndex:        vectorIndex,
		collectionName:     collectionName,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
//
// swagger:model HealthResponse
type HealthResponse struct {
	// Overall health status: "healthy", "degraded", or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Individual check results
	Checks map[string]string `json:"checks"`

	// List of issues (only present if status is degraded or unhealthy)
	Issues []string `json:"issues,omitempty"`
}

// ServeHTTP handles HTTP requests for health checks.
//
// Only a database failure returns 503. An open generation breaker or an
// unreachable vector index is reported as degraded.
//
// swagger:route GET /api/health healthCheck
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: System is healthy or degraded
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
//	'503':
//	  description: Database is unavailable
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	var issues []string
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.PingContext(checkCtx); err != nil {
		logger.WarnContext(ctx, "database health check failed", "error", err)
		checks["database"] = "error"
		issues = append(issues, "database_unavailable")
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.generator != nil {
		state := h.generator.State()
		checks["generation"] = state
		if state == "open" {
			issues = append(issues, "generation_unavailable")
		}
	}

	if h.vectorIndex != nil {
		if h.checkVectorIndex(checkCtx, logger) {
			checks["vector_index"] = "ok"
		} else {
			checks["vector_index"] = "error"
			issues = append(issues, "vector_index_unavailable")
		}
	}

	if len(issues) > 0 && status == "healthy" {
		status = "degraded"
	}

	writeJSON(ctx, w, httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Issues:    issues,
	})
}

// checkVectorIndex checks if the vector index collection is reachable.
func (h *HealthHandler) checkVectorIndex(ctx context.Context, logger *slog.Logger) bool {
	info, err := h.vectorIndex.GetCollectionInfo(ctx, h.collectionName)
	if err != nil {
		logger.WarnContext(ctx, "vector index health check failed", "collection", h.collectionName, "error", err)
		return false
	}
	logger.DebugContext(ctx, "vector index health check", "points", info.PointsCount, "status", info.Status)
	return true
}
