package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// NoteType is the kind of payload a note was created from.
type NoteType string

const (
	NoteTypeText  NoteType = "text"
	NoteTypeImage NoteType = "image"
	NoteTypePDF   NoteType = "pdf"
	NoteTypeURL   NoteType = "url"
)

// Valid reports whether t is a known note type.
func (t NoteType) Valid() bool {
	switch t {
	case NoteTypeText, NoteTypeImage, NoteTypePDF, NoteTypeURL:
		return true
	}
	return false
}

// Note is a user's note as stored in the database.
type Note struct {
	ID      string `db:"id" json:"_id"`
	OwnerID string `db:"owner_id" json:"userId"`
	Title   string `db:"title" json:"title"`
	Content string `db:"content" json:"content"`
	// ExtractedText is plain text derived from an uploaded file.
	ExtractedText  string   `db:"extracted_text" json:"extractedText"`
	Type           NoteType `db:"type" json:"type"`
	Tags           Tags     `db:"tags" json:"tags"`
	FileURL        string   `db:"file_url" json:"fileUrl,omitempty"`
	URL            string   `db:"url" json:"url,omitempty"`
	URLTitle       string   `db:"url_title" json:"urlTitle,omitempty"`
	URLDescription string   `db:"url_description" json:"urlDescription,omitempty"`
	IsFavorite     bool     `db:"is_favorite" json:"isFavorite"`
	// Fingerprint is nil when the note has no text to fingerprint.
	Fingerprint Fingerprint `db:"fingerprint" json:"-"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}

// FingerprintSource returns the text a note's fingerprint is derived from.
func (n Note) FingerprintSource() string {
	switch {
	case n.ExtractedText != "":
		return n.ExtractedText
	case n.Content != "":
		return n.Content
	default:
		return n.Title
	}
}

// ListFilter narrows and paginates List.
type ListFilter struct {
	Tag      string
	Type     NoteType
	Favorite *bool
	// Page starts at 1.
	Page  int
	Limit int
}

// Tags is a string list stored as a JSON array.
type Tags []string

// Value implements driver.Valuer.
func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (t *Tags) Scan(src any) error {
	raw, err := columnBytes(src)
	if err != nil || raw == nil {
		*t = nil
		return err
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return fmt.Errorf("failed to decode tags: %w", err)
	}
	*t = tags
	return nil
}

// Fingerprint is a note vector stored as a JSON array, or NULL when absent.
type Fingerprint []float32

// Value implements driver.Valuer.
func (f Fingerprint) Value() (driver.Value, error) {
	if len(f) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal([]float32(f))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (f *Fingerprint) Scan(src any) error {
	raw, err := columnBytes(src)
	if err != nil || raw == nil {
		*f = nil
		return err
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return fmt.Errorf("failed to decode fingerprint: %w", err)
	}
	*f = vec
	return nil
}

func columnBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", src)
	}
}
