package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_text_extractor.go -package=mocks thinkbox/internal/service TextExtractor
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_note_service.go -package=mocks -mock_names=NoteService=MockNoteService thinkbox/internal/service NoteService

import (
	"context"
	"errors"
	"strings"

	"thinkbox/internal/contextutil"
	"thinkbox/internal/embedding"
	"thinkbox/internal/extract"
	"thinkbox/internal/storage"
	"thinkbox/internal/vectorstore"
)

const (
	defaultPageSize   = 20
	defaultTextSearch = 10
)

// TextExtractor pulls plain text out of an uploaded file.
// This interface is defined from the service layer's perspective (consumer-first).
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Upload is a file attached to a note.
type Upload struct {
	Filename string
	// MIMEType is the type declared by the client; it may be empty.
	MIMEType string
	Data     []byte
}

// CreateNoteInput holds the fields of a new note.
type CreateNoteInput struct {
	Title   string
	Content string
	// Type defaults to the upload's type, else text.
	Type storage.NoteType
	// Tags is a comma-separated list.
	Tags           string
	FileURL        string
	URL            string
	URLTitle       string
	URLDescription string
	File           *Upload
}

// UpdateNoteInput holds a partial update. Nil fields are left unchanged.
type UpdateNoteInput struct {
	Title          *string
	Content        *string
	Tags           *string
	IsFavorite     *bool
	URL            *string
	URLTitle       *string
	URLDescription *string
	File           *Upload
}

// ListResult is one page of notes.
type ListResult struct {
	Notes       []storage.Note `json:"notes"`
	Total       int            `json:"total"`
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
}

// NoteService manages notes and keeps their fingerprints current.
type NoteService interface {
	Create(ctx context.Context, ownerID string, in CreateNoteInput) (*storage.Note, error)
	Get(ctx context.Context, ownerID, id string) (*storage.Note, error)
	// Update applies a partial update; the fingerprint is recomputed when its source text changes.
	Update(ctx context.Context, ownerID, id string, in UpdateNoteInput) (*storage.Note, error)
	Delete(ctx context.Context, ownerID, id string) error
	List(ctx context.Context, ownerID string, filter storage.ListFilter) (ListResult, error)
	Tags(ctx context.Context, ownerID string) ([]string, error)
	TextSearch(ctx context.Context, ownerID, query string, limit int) ([]storage.Note, error)
}

// noteService implements NoteService.
type noteService struct {
	store      storage.NoteStore
	vectorizer embedding.Vectorizer
	extractor  TextExtractor
	vectors    vectorstore.VectorStore
	collection string
}

// NewNoteService creates a new NoteService.
// vectors may be nil, in which case fingerprints are only kept in the note store.
func NewNoteService(
	store storage.NoteStore,
	vectorizer embedding.Vectorizer,
	extractor TextExtractor,
	vectors vectorstore.VectorStore,
	collection string,
) NoteService {
	return &noteService{
		store:      store,
		vectorizer: vectorizer,
		extractor:  extractor,
		vectors:    vectors,
		collection: collection,
	}
}

// Create validates input, extracts text from any upload, fingerprints and stores the note.
func (s *noteService) Create(ctx context.Context, ownerID string, in CreateNoteInput) (*storage.Note, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "is required"}
	}
	if in.Type != "" && !in.Type.Valid() {
		return nil, invalidType()
	}

	note := &storage.Note{
		OwnerID:        ownerID,
		Title:          title,
		Content:        in.Content,
		Type:           in.Type,
		Tags:           ParseTags(in.Tags),
		FileURL:        in.FileURL,
		URL:            in.URL,
		URLTitle:       in.URLTitle,
		URLDescription: in.URLDescription,
	}

	if in.File != nil {
		mimeType, text, err := s.readUpload(ctx, in.File)
		if err != nil {
			return nil, err
		}
		if note.Type == "" {
			note.Type = extract.NoteTypeFor(mimeType)
		}
		note.ExtractedText = text
	}
	if note.Type == "" {
		note.Type = storage.NoteTypeText
	}

	note.Fingerprint = s.fingerprint(*note)

	if err := s.store.Create(ctx, note); err != nil {
		logger.ErrorContext(ctx, "failed to create note", "error", err)
		return nil, WrapError(err, "failed to create note")
	}
	s.mirror(ctx, note)

	logger.InfoContext(ctx, "note created",
		"note_id", note.ID,
		"type", note.Type,
		"has_fingerprint", note.Fingerprint != nil,
	)
	return note, nil
}

// Get returns one of the owner's notes.
func (s *noteService) Get(ctx context.Context, ownerID, id string) (*storage.Note, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	note, err := s.store.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, notFoundOr(err, "failed to get note")
	}
	return note, nil
}

// Update applies in to the owner's note.
func (s *noteService) Update(ctx context.Context, ownerID, id string, in UpdateNoteInput) (*storage.Note, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	note, err := s.store.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, notFoundOr(err, "failed to get note")
	}
	before := note.FingerprintSource()

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, &ValidationError{Field: "title", Message: "cannot be empty"}
		}
		note.Title = title
	}
	if in.Content != nil {
		note.Content = *in.Content
	}
	if in.Tags != nil {
		note.Tags = ParseTags(*in.Tags)
	}
	if in.IsFavorite != nil {
		note.IsFavorite = *in.IsFavorite
	}
	if in.URL != nil {
		note.URL = *in.URL
	}
	if in.URLTitle != nil {
		note.URLTitle = *in.URLTitle
	}
	if in.URLDescription != nil {
		note.URLDescription = *in.URLDescription
	}
	if in.File != nil {
		_, text, err := s.readUpload(ctx, in.File)
		if err != nil {
			return nil, err
		}
		note.ExtractedText = text
	}

	changed := note.FingerprintSource() != before ||
		len(note.Fingerprint) != s.vectorizer.Dimension()
	if changed {
		note.Fingerprint = s.fingerprint(*note)
	}

	if err := s.store.Update(ctx, note); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFoundOr(err, "failed to update note")
		}
		logger.ErrorContext(ctx, "failed to update note", "note_id", id, "error", err)
		return nil, WrapError(err, "failed to update note")
	}
	if changed {
		s.mirror(ctx, note)
	}

	logger.InfoContext(ctx, "note updated", "note_id", id, "fingerprint_recomputed", changed)
	return note, nil
}

// Delete removes the owner's note and its mirrored fingerprint.
func (s *noteService) Delete(ctx context.Context, ownerID, id string) error {
	logger := contextutil.LoggerFromContext(ctx)

	if err := requireOwner(ownerID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, ownerID, id); err != nil {
		return notFoundOr(err, "failed to delete note")
	}

	if s.vectors != nil {
		if err := s.vectors.Delete(ctx, s.collection, []string{id}); err != nil {
			logger.WarnContext(ctx, "failed to remove fingerprint from vector index", "note_id", id, "error", err)
		}
	}

	logger.InfoContext(ctx, "note deleted", "note_id", id)
	return nil
}

// List returns a page of the owner's notes, newest first.
func (s *noteService) List(ctx context.Context, ownerID string, filter storage.ListFilter) (ListResult, error) {
	if err := requireOwner(ownerID); err != nil {
		return ListResult{}, err
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return ListResult{}, invalidType()
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageSize
	}

	notes, total, err := s.store.List(ctx, ownerID, filter)
	if err != nil {
		return ListResult{}, WrapError(err, "failed to list notes")
	}

	return ListResult{
		Notes:       notes,
		Total:       total,
		TotalPages:  (total + filter.Limit - 1) / filter.Limit,
		CurrentPage: filter.Page,
	}, nil
}

// Tags returns the owner's distinct tags.
func (s *noteService) Tags(ctx context.Context, ownerID string) ([]string, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	tags, err := s.store.Tags(ctx, ownerID)
	if err != nil {
		return nil, WrapError(err, "failed to list tags")
	}
	return tags, nil
}

// TextSearch finds the owner's notes containing query as a substring.
func (s *noteService) TextSearch(ctx context.Context, ownerID, query string, limit int) ([]storage.Note, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ValidationError{Field: "query", Message: "cannot be empty"}
	}
	if limit <= 0 {
		limit = defaultTextSearch
	}

	notes, err := s.store.TextSearch(ctx, ownerID, query, limit)
	if err != nil {
		return nil, WrapError(err, "failed to search notes")
	}
	return notes, nil
}

// readUpload validates an upload and extracts its text.
// Files whose text cannot be extracted are still accepted, with no extracted text.
func (s *noteService) readUpload(ctx context.Context, file *Upload) (string, string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(file.Data) > extract.MaxUploadSize {
		return "", "", ErrTooLarge
	}
	mimeType := extract.DetectMIME(file.Data, file.MIMEType)
	if !extract.Allowed(mimeType) {
		return "", "", &ValidationError{Field: "file", Message: "invalid file type. Allowed: images, PDF, DOCX, TXT"}
	}
	if s.extractor == nil {
		return mimeType, "", nil
	}

	text, err := s.extractor.Extract(ctx, file.Data, mimeType)
	if err != nil {
		logger.WarnContext(ctx, "could not extract text from upload",
			"filename", file.Filename,
			"mime_type", mimeType,
			"error", err,
		)
		return mimeType, "", nil
	}
	return mimeType, text, nil
}

// fingerprint vectorizes the note's source text, or returns nil when there is none.
func (s *noteService) fingerprint(note storage.Note) storage.Fingerprint {
	source := note.FingerprintSource()
	if strings.TrimSpace(source) == "" {
		return nil
	}
	return storage.Fingerprint(s.vectorizer.Vectorize(source))
}

// mirror copies the note's fingerprint into the vector index. Failures are logged only.
func (s *noteService) mirror(ctx context.Context, note *storage.Note) {
	if s.vectors == nil {
		return
	}
	logger := contextutil.LoggerFromContext(ctx)

	var err error
	if note.Fingerprint == nil {
		err = s.vectors.Delete(ctx, s.collection, []string{note.ID})
	} else {
		err = s.vectors.Upsert(ctx, s.collection, []vectorstore.Point{NotePoint(*note)})
	}
	if err != nil {
		logger.WarnContext(ctx, "failed to mirror fingerprint to vector index", "note_id", note.ID, "error", err)
	}
}

// NotePoint builds the vector index point of a fingerprinted note.
func NotePoint(note storage.Note) vectorstore.Point {
	return vectorstore.Point{
		ID:  note.ID,
		Vec: note.Fingerprint,
		Meta: map[string]any{
			"owner_id": note.OwnerID,
			"type":     string(note.Type),
			"title":    note.Title,
		},
	}
}

// ParseTags splits a comma-separated list, trimming blanks and dropping empty entries.
func ParseTags(raw string) storage.Tags {
	tags := storage.Tags{}
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return &ValidationError{Field: "owner", Message: "is required"}
	}
	return nil
}

func invalidType() error {
	return &ValidationError{Field: "type", Message: "must be one of text, image, pdf, url"}
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return WrapError(ErrNotFound, "note not found")
	}
	return WrapError(err, msg)
}
