package storage

import (
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys (disabled by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates the notes table and its indexes.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sqlx.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			extracted_text TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT 'text',
			tags TEXT NOT NULL DEFAULT '[]',
			file_url TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			url_title TEXT NOT NULL DEFAULT '',
			url_description TEXT NOT NULL DEFAULT '',
			is_favorite BOOLEAN NOT NULL DEFAULT 0,
			fingerprint TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_notes_owner_created ON notes(owner_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_notes_owner_type ON notes(owner_id, type);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
