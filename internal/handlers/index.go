package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"thinkbox/internal/contextutil"
	"thinkbox/internal/indexer"
)

// Backfiller recomputes stored fingerprints and reports on their state.
type Backfiller interface {
	Run(ctx context.Context, force bool) (*indexer.RunStats, error)
	Last() *indexer.RunStats
	Coverage(ctx context.Context) (*indexer.CoverageStats, error)
}

// IndexHandler handles HTTP requests for triggering fingerprint backfills.
type IndexHandler struct {
	backfiller Backfiller
}

// NewIndexHandler creates a new IndexHandler.
func NewIndexHandler(backfiller Backfiller) *IndexHandler {
	return &IndexHandler{
		backfiller: backfiller,
	}
}

// IndexResponse represents the response from the index endpoint.
type IndexResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// IndexStatusResponse reports the latest backfill and current coverage.
type IndexStatusResponse struct {
	LastRun  *indexer.RunStats      `json:"last_run"`
	Coverage *indexer.CoverageStats `json:"coverage"`
}

// Trigger handles POST /api/index?force=true.
// The backfill runs in the background; the response only acknowledges it.
func (h *IndexHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if force {
		logger.InfoContext(ctx, "forced fingerprint backfill triggered via API")
	} else {
		logger.InfoContext(ctx, "fingerprint backfill triggered via API")
	}

	// Use a detached context so the backfill outlives the request.
	runCtx := contextutil.WithLogger(context.Background(), logger)
	go func() {
		if _, err := h.backfiller.Run(runCtx, force); err != nil {
			if errors.Is(err, indexer.ErrAlreadyRunning) {
				logger.WarnContext(runCtx, "fingerprint backfill already running")
				return
			}
			logger.ErrorContext(runCtx, "fingerprint backfill completed with errors", "error", err)
		}
	}()

	message := "Backfill started. Check server logs for progress."
	if force {
		message = "Forced backfill started (all fingerprints recomputed). Check server logs for progress."
	}
	writeJSON(ctx, w, http.StatusAccepted, IndexResponse{
		Message: message,
		Status:  "accepted",
	})
}

// Status handles GET /api/index.
func (h *IndexHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	coverage, err := h.backfiller.Coverage(ctx)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to read fingerprint coverage")
		return
	}

	writeJSON(ctx, w, http.StatusOK, IndexStatusResponse{
		LastRun:  h.backfiller.Last(),
		Coverage: coverage,
	})
}
