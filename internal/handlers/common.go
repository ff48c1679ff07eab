// Package handlers implements the JSON HTTP surface over notes, search and chat.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"thinkbox/internal/contextutil"
	"thinkbox/internal/indexer"
	"thinkbox/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v with the given status code.
func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}

// handleServiceError maps service errors to appropriate HTTP status codes and responses.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)

	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		logger.WarnContext(ctx, "validation failed", "field", validationErr.Field, "error", err)
		writeError(w, http.StatusBadRequest, validationErr.Field+" "+validationErr.Message)
	case errors.Is(err, service.ErrInvalidInput):
		logger.WarnContext(ctx, "invalid input", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid input")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "Note not found")
	case errors.Is(err, service.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "File size too large. Maximum size is 50MB.")
	case errors.Is(err, indexer.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "Reindex already running")
	case errors.Is(err, service.ErrExternalService):
		logger.ErrorContext(ctx, "external service error", "error", err)
		writeError(w, http.StatusBadGateway, "External service error")
	default:
		logger.ErrorContext(ctx, "service error", "error", err)
		writeError(w, http.StatusInternalServerError, defaultMsg)
	}
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		ctx := r.Context()
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// queryInt parses an optional integer query parameter. Missing or invalid values yield def.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
