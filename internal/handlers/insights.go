package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"thinkbox/internal/contextutil"
	"thinkbox/internal/rag"
)

// InsightsHandler summarizes notes or turns them into flashcards.
type InsightsHandler struct {
	engine rag.Engine
}

// NewInsightsHandler creates a new InsightsHandler.
func NewInsightsHandler(engine rag.Engine) *InsightsHandler {
	return &InsightsHandler{
		engine: engine,
	}
}

// InsightsRequest is the body of an insights request.
// Title and Content are only read when the note id is "new".
type InsightsRequest struct {
	Type    rag.InsightType `json:"type"`
	Title   string          `json:"title,omitempty"`
	Content string          `json:"content,omitempty"`
}

// ServeHTTP handles POST /api/ai/insights/{noteId}.
func (h *InsightsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req InsightsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.engine.Insight(ctx, rag.InsightRequest{
		OwnerID: contextutil.OwnerFromContext(ctx),
		NoteID:  chi.URLParam(r, "noteId"),
		Type:    req.Type,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to generate insights")
		return
	}

	writeJSON(ctx, w, http.StatusOK, result)
}
