package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_note_store.go -package=mocks thinkbox/internal/storage NoteStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrNoteChanged is returned by UpdateFingerprint when the note was edited or deleted
	// after the caller read it.
	ErrNoteChanged = errors.New("note changed since it was read")
)

const noteColumns = `id, owner_id, title, content, extracted_text, type, tags, file_url, url,
	url_title, url_description, is_favorite, fingerprint, created_at, updated_at`

// NoteStore defines the interface for note storage operations.
// Every read and write except ListAll and UpdateFingerprint is scoped to one owner.
type NoteStore interface {
	// Create inserts a note, assigning its ID and timestamps.
	Create(ctx context.Context, note *Note) error
	// GetByID returns ErrNotFound when the note does not exist or belongs to another owner.
	GetByID(ctx context.Context, ownerID, id string) (*Note, error)
	// Update overwrites the mutable fields of an existing note.
	Update(ctx context.Context, note *Note) error
	Delete(ctx context.Context, ownerID, id string) error
	// List returns one page of notes, newest first, and the total number of matches.
	List(ctx context.Context, ownerID string, filter ListFilter) ([]Note, int, error)
	// FindByOwner returns the owner's notes in insertion order.
	// A non-empty ids restricts the result to those notes.
	FindByOwner(ctx context.Context, ownerID string, ids []string) ([]Note, error)
	// TextSearch matches query case-insensitively against title, content, tags and extracted text.
	TextSearch(ctx context.Context, ownerID, query string, limit int) ([]Note, error)
	// Tags returns the owner's distinct tags, sorted.
	Tags(ctx context.Context, ownerID string) ([]string, error)
	// ListAll returns every note of every owner in insertion order.
	ListAll(ctx context.Context) ([]Note, error)
	// UpdateFingerprint replaces a note's fingerprint without touching updated_at.
	// The write only applies while updated_at still equals readAt.
	UpdateFingerprint(ctx context.Context, id string, readAt time.Time, fingerprint Fingerprint) error
	// FingerprintDimension is the length every stored fingerprint must have.
	FingerprintDimension() int
}

// NoteRepo provides methods for note operations.
// It implements the NoteStore interface.
type NoteRepo struct {
	db  *sqlx.DB
	dim int
}

// NewNoteRepo creates a new NoteRepo whose fingerprints have length dim.
func NewNoteRepo(db *sqlx.DB, dim int) *NoteRepo {
	return &NoteRepo{db: db, dim: dim}
}

// FingerprintDimension returns the configured fingerprint length.
func (r *NoteRepo) FingerprintDimension() int {
	return r.dim
}

// Create inserts a new note. ID is generated when empty.
func (r *NoteRepo) Create(ctx context.Context, note *Note) error {
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	if note.Type == "" {
		note.Type = NoteTypeText
	}
	now := time.Now().UTC()
	note.CreatedAt = now
	note.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO notes (`+noteColumns+`)
		 VALUES (:id, :owner_id, :title, :content, :extracted_text, :type, :tags, :file_url, :url,
		 :url_title, :url_description, :is_favorite, :fingerprint, :created_at, :updated_at)`,
		note,
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// GetByID gets a note by owner and ID.
// Returns nil and ErrNotFound if not found.
func (r *NoteRepo) GetByID(ctx context.Context, ownerID, id string) (*Note, error) {
	var note Note
	err := r.db.GetContext(ctx, &note,
		`SELECT `+noteColumns+` FROM notes WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query note: %w", err)
	}
	return &note, nil
}

// Update overwrites the mutable fields of note and refreshes UpdatedAt.
func (r *NoteRepo) Update(ctx context.Context, note *Note) error {
	note.UpdatedAt = time.Now().UTC()

	res, err := r.db.NamedExecContext(ctx,
		`UPDATE notes SET title = :title, content = :content, extracted_text = :extracted_text,
		 type = :type, tags = :tags, file_url = :file_url, url = :url, url_title = :url_title,
		 url_description = :url_description, is_favorite = :is_favorite,
		 fingerprint = :fingerprint, updated_at = :updated_at
		 WHERE id = :id AND owner_id = :owner_id`,
		note,
	)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a note of the owner.
func (r *NoteRepo) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return requireAffected(res)
}

// List returns a filtered page of the owner's notes, newest first.
func (r *NoteRepo) List(ctx context.Context, ownerID string, filter ListFilter) ([]Note, int, error) {
	where := []string{"owner_id = ?"}
	args := []any{ownerID}

	if filter.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(notes.tags) WHERE json_each.value = ?)")
		args = append(args, filter.Tag)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Favorite != nil {
		where = append(where, "is_favorite = ?")
		args = append(args, *filter.Favorite)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notes WHERE `+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count notes: %w", err)
	}

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	notes := []Note{}
	err := r.db.SelectContext(ctx, &notes,
		`SELECT `+noteColumns+` FROM notes WHERE `+clause+` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, limit, (page-1)*limit)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, total, nil
}

// FindByOwner returns the owner's notes ordered by creation, optionally restricted to ids.
func (r *NoteRepo) FindByOwner(ctx context.Context, ownerID string, ids []string) ([]Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE owner_id = ?`
	args := []any{ownerID}

	if len(ids) > 0 {
		inQuery, inArgs, err := sqlx.In(` AND id IN (?)`, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to build id filter: %w", err)
		}
		query += inQuery
		args = append(args, inArgs...)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	notes := []Note{}
	if err := r.db.SelectContext(ctx, &notes, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to find notes: %w", err)
	}
	return notes, nil
}

// TextSearch finds the owner's notes containing query, newest first.
func (r *NoteRepo) TextSearch(ctx context.Context, ownerID, query string, limit int) ([]Note, error) {
	if limit < 1 {
		limit = 10
	}
	pattern := "%" + escapeLike(query) + "%"

	notes := []Note{}
	err := r.db.SelectContext(ctx, &notes,
		`SELECT `+noteColumns+` FROM notes
		 WHERE owner_id = ? AND (
			title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\' OR
			tags LIKE ? ESCAPE '\' OR extracted_text LIKE ? ESCAPE '\'
		 )
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		ownerID, pattern, pattern, pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}
	return notes, nil
}

// Tags returns the owner's distinct non-empty tags.
func (r *NoteRepo) Tags(ctx context.Context, ownerID string) ([]string, error) {
	tags := []string{}
	err := r.db.SelectContext(ctx, &tags,
		`SELECT DISTINCT json_each.value FROM notes, json_each(notes.tags)
		 WHERE notes.owner_id = ? AND json_each.value != ''
		 ORDER BY json_each.value`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// ListAll returns all notes in insertion order.
func (r *NoteRepo) ListAll(ctx context.Context) ([]Note, error) {
	notes := []Note{}
	if err := r.db.SelectContext(ctx, &notes, `SELECT `+noteColumns+` FROM notes ORDER BY created_at ASC, rowid ASC`); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

// UpdateFingerprint stores a recomputed fingerprint for the note version last modified at readAt.
func (r *NoteRepo) UpdateFingerprint(ctx context.Context, id string, readAt time.Time, fingerprint Fingerprint) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notes SET fingerprint = ? WHERE id = ? AND updated_at = ?`,
		fingerprint, id, readAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update fingerprint: %w", err)
	}
	if err := requireAffected(res); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNoteChanged
		}
		return err
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
