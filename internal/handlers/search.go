package handlers

import (
	"math"
	"net/http"

	"thinkbox/internal/contextutil"
	"thinkbox/internal/rag"
	"thinkbox/internal/service"
	"thinkbox/internal/storage"
)

// SearchHandler serves fingerprint and text search over the caller's notes.
type SearchHandler struct {
	engine rag.Engine
	notes  service.NoteService
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(engine rag.Engine, notes service.NoteService) *SearchHandler {
	return &SearchHandler{
		engine: engine,
		notes:  notes,
	}
}

// ScoredNoteResponse is a note with its similarity to the query.
type ScoredNoteResponse struct {
	storage.Note
	Similarity float64 `json:"similarity"`
}

// SearchResponse is returned by both search endpoints.
type SearchResponse[T any] struct {
	Query   string `json:"query"`
	Results []T    `json:"results"`
}

// TextSearchRequest is the body of a text search.
type TextSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// Semantic handles GET /api/search?q=&limit=.
func (h *SearchHandler) Semantic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query().Get("q")

	ranked, err := h.engine.Search(ctx, rag.RankRequest{
		Query:   query,
		OwnerID: contextutil.OwnerFromContext(ctx),
		Limit:   queryInt(r, "limit", 0),
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to search notes")
		return
	}

	writeJSON(ctx, w, http.StatusOK, SearchResponse[ScoredNoteResponse]{
		Query:   query,
		Results: scoredNotes(ranked),
	})
}

// Text handles POST /api/search/text.
func (h *SearchHandler) Text(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TextSearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	notes, err := h.notes.TextSearch(ctx, contextutil.OwnerFromContext(ctx), req.Query, req.Limit)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to search notes")
		return
	}
	if notes == nil {
		notes = []storage.Note{}
	}

	writeJSON(ctx, w, http.StatusOK, SearchResponse[storage.Note]{
		Query:   req.Query,
		Results: notes,
	})
}

func scoredNotes(ranked []rag.ScoredNote) []ScoredNoteResponse {
	out := make([]ScoredNoteResponse, len(ranked))
	for i, sn := range ranked {
		out[i] = ScoredNoteResponse{
			Note:       sn.Note,
			Similarity: math.Round(sn.Similarity*100) / 100,
		}
	}
	return out
}
