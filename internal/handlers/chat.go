package handlers

import (
	"net/http"

	"thinkbox/internal/contextutil"
	"thinkbox/internal/rag"
)

// ChatHandler answers questions from the caller's notes.
type ChatHandler struct {
	engine rag.Engine
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(engine rag.Engine) *ChatHandler {
	return &ChatHandler{
		engine: engine,
	}
}

// ChatRequest represents the HTTP request payload for chat.
type ChatRequest struct {
	Message string   `json:"message"`
	NoteIDs []string `json:"noteIds,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// ChatResponse represents the HTTP response payload for chat.
type ChatResponse struct {
	Message  string         `json:"message"`
	Response string         `json:"response"`
	Sources  []rag.Citation `json:"sources"`
	Strategy rag.Strategy   `json:"strategy"`
	Degraded bool           `json:"degraded"`
}

// ServeHTTP handles POST /api/ai/chat.
//
// swagger:route POST /api/ai/chat ai chat
// Answers a question using the caller's notes as context.
// responses:
//
//	200: ChatResponse
//	400: ErrorResponse
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.engine.Answer(ctx, rag.AskRequest{
		Message: req.Message,
		OwnerID: contextutil.OwnerFromContext(ctx),
		NoteIDs: req.NoteIDs,
		Limit:   req.Limit,
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to process chat request")
		return
	}

	sources := result.Sources
	if sources == nil {
		sources = []rag.Citation{}
	}
	writeJSON(ctx, w, http.StatusOK, ChatResponse{
		Message:  req.Message,
		Response: result.Answer,
		Sources:  sources,
		Strategy: result.Strategy,
		Degraded: result.Degraded,
	})
}
