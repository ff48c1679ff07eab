package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"thinkbox/internal/contextutil"
	"thinkbox/internal/extract"
	"thinkbox/internal/rag"
	"thinkbox/internal/service"
	"thinkbox/internal/storage"
)

// multipartMemory is the part of a multipart body kept in memory; the rest spills to disk.
const multipartMemory = 32 << 20

// NotesHandler serves note CRUD and related-note lookups.
type NotesHandler struct {
	notes  service.NoteService
	engine rag.Engine
}

// NewNotesHandler creates a new NotesHandler.
func NewNotesHandler(notes service.NoteService, engine rag.Engine) *NotesHandler {
	return &NotesHandler{
		notes:  notes,
		engine: engine,
	}
}

// NoteRequest is the JSON body of a create or update. Tags is comma-separated.
type NoteRequest struct {
	Title          *string           `json:"title"`
	Content        *string           `json:"content"`
	Type           *storage.NoteType `json:"type"`
	Tags           *string           `json:"tags"`
	FileURL        *string           `json:"fileUrl"`
	URL            *string           `json:"url"`
	URLTitle       *string           `json:"urlTitle"`
	URLDescription *string           `json:"urlDescription"`
	IsFavorite     *bool             `json:"isFavorite"`
}

// NoteResponse wraps a single note.
type NoteResponse struct {
	Note *storage.Note `json:"note"`
}

// MessageResponse carries a human-readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// TagsResponse lists the caller's distinct tags.
type TagsResponse struct {
	Tags []string `json:"tags"`
}

// RelatedResponse lists the notes closest to a note.
type RelatedResponse struct {
	NoteID  string               `json:"noteId"`
	Results []ScoredNoteResponse `json:"results"`
}

// List handles GET /api/notes.
func (h *NotesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := storage.ListFilter{
		Tag:   q.Get("tag"),
		Type:  storage.NoteType(q.Get("type")),
		Page:  queryInt(r, "page", 1),
		Limit: queryInt(r, "limit", 0),
	}
	if raw := q.Get("favorite"); raw != "" {
		favorite, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "favorite must be true or false")
			return
		}
		filter.Favorite = &favorite
	}

	result, err := h.notes.List(ctx, contextutil.OwnerFromContext(ctx), filter)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to list notes")
		return
	}
	if result.Notes == nil {
		result.Notes = []storage.Note{}
	}
	writeJSON(ctx, w, http.StatusOK, result)
}

// Get handles GET /api/notes/{id}.
func (h *NotesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	note, err := h.notes.Get(ctx, contextutil.OwnerFromContext(ctx), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to get note")
		return
	}
	writeJSON(ctx, w, http.StatusOK, NoteResponse{Note: note})
}

// Create handles POST /api/notes with a JSON or multipart body.
func (h *NotesHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, file, err := h.readNoteRequest(w, r)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to create note")
		return
	}

	in := service.CreateNoteInput{
		Title:          deref(req.Title),
		Content:        deref(req.Content),
		Tags:           deref(req.Tags),
		FileURL:        deref(req.FileURL),
		URL:            deref(req.URL),
		URLTitle:       deref(req.URLTitle),
		URLDescription: deref(req.URLDescription),
		File:           file,
	}
	if req.Type != nil {
		in.Type = *req.Type
	}

	note, err := h.notes.Create(ctx, contextutil.OwnerFromContext(ctx), in)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to create note")
		return
	}
	writeJSON(ctx, w, http.StatusCreated, NoteResponse{Note: note})
}

// Update handles PUT /api/notes/{id} with a JSON or multipart body.
func (h *NotesHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, file, err := h.readNoteRequest(w, r)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to update note")
		return
	}

	note, err := h.notes.Update(ctx, contextutil.OwnerFromContext(ctx), chi.URLParam(r, "id"), service.UpdateNoteInput{
		Title:          req.Title,
		Content:        req.Content,
		Tags:           req.Tags,
		IsFavorite:     req.IsFavorite,
		URL:            req.URL,
		URLTitle:       req.URLTitle,
		URLDescription: req.URLDescription,
		File:           file,
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to update note")
		return
	}
	writeJSON(ctx, w, http.StatusOK, NoteResponse{Note: note})
}

// Delete handles DELETE /api/notes/{id}.
func (h *NotesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.notes.Delete(ctx, contextutil.OwnerFromContext(ctx), chi.URLParam(r, "id")); err != nil {
		handleServiceError(ctx, w, err, "Failed to delete note")
		return
	}
	writeJSON(ctx, w, http.StatusOK, MessageResponse{Message: "Note deleted successfully"})
}

// Tags handles GET /api/notes/tags/all.
func (h *NotesHandler) Tags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tags, err := h.notes.Tags(ctx, contextutil.OwnerFromContext(ctx))
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to get tags")
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(ctx, w, http.StatusOK, TagsResponse{Tags: tags})
}

// Related handles GET /api/notes/{id}/related?limit=.
func (h *NotesHandler) Related(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	related, err := h.engine.Related(ctx, contextutil.OwnerFromContext(ctx), id, queryInt(r, "limit", 0))
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to find related notes")
		return
	}
	writeJSON(ctx, w, http.StatusOK, RelatedResponse{
		NoteID:  id,
		Results: scoredNotes(related),
	})
}

// readNoteRequest decodes a JSON body, or a multipart form with an optional "file" part.
func (h *NotesHandler) readNoteRequest(w http.ResponseWriter, r *http.Request) (NoteRequest, *service.Upload, error) {
	var req NoteRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := decodeBody(r, &req); err != nil {
			return req, nil, err
		}
		return req, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, extract.MaxUploadSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return req, nil, service.ErrTooLarge
		}
		return req, nil, &service.ValidationError{Field: "body", Message: "must be a valid multipart form"}
	}

	form := r.MultipartForm.Value
	req.Title = formValue(form, "title")
	req.Content = formValue(form, "content")
	req.Tags = formValue(form, "tags")
	req.FileURL = formValue(form, "fileUrl")
	req.URL = formValue(form, "url")
	req.URLTitle = formValue(form, "urlTitle")
	req.URLDescription = formValue(form, "urlDescription")
	if v := formValue(form, "type"); v != nil {
		t := storage.NoteType(*v)
		req.Type = &t
	}
	if v := formValue(form, "isFavorite"); v != nil {
		favorite, err := strconv.ParseBool(*v)
		if err != nil {
			return req, nil, &service.ValidationError{Field: "isFavorite", Message: "must be true or false"}
		}
		req.IsFavorite = &favorite
	}

	file, err := readFormFile(r)
	if err != nil {
		return req, nil, err
	}
	return req, file, nil
}

func readFormFile(r *http.Request) (*service.Upload, error) {
	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	defer f.Close()

	if header.Size > extract.MaxUploadSize {
		return nil, service.ErrTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(f, extract.MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return &service.Upload{
		Filename: header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		contextutil.LoggerFromContext(r.Context()).WarnContext(r.Context(), "invalid request body", "error", err)
		return &service.ValidationError{Field: "body", Message: "must be valid JSON"}
	}
	return nil
}

// formValue returns the first value of key, or nil when the form doesn't carry it.
func formValue(form map[string][]string, key string) *string {
	values, ok := form[key]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
