package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func newTestRepo(t *testing.T) *NoteRepo {
	t.Helper()

	db, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewNoteRepo(db, 4)
}

func mustCreate(t *testing.T, repo *NoteRepo, note Note) Note {
	t.Helper()
	if err := repo.Create(context.Background(), &note); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return note
}

func noteTitles(notes []Note) []string {
	titles := make([]string, 0, len(notes))
	for _, n := range notes {
		titles = append(titles, n.Title)
	}
	return titles
}

func TestNewNoteRepo(t *testing.T) {
	repo := newTestRepo(t)
	if repo == nil {
		t.Fatal("NewNoteRepo() returned nil")
	}
	if repo.FingerprintDimension() != 4 {
		t.Errorf("FingerprintDimension() = %d, want 4", repo.FingerprintDimension())
	}
}

func TestNoteRepo_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created := mustCreate(t, repo, Note{
		OwnerID:       "alice",
		Title:         "Paris Trip",
		Content:       "Visited the Louvre in 2019",
		ExtractedText: "scanned ticket",
		Tags:          Tags{"travel", "europe"},
		IsFavorite:    true,
		Fingerprint:   Fingerprint{0.5, 0.5, 0.5, 0.5},
	})

	if created.ID == "" {
		t.Fatal("Create() should assign an ID")
	}
	if created.Type != NoteTypeText {
		t.Errorf("Create() Type = %q, want %q", created.Type, NoteTypeText)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("Create() should set timestamps")
	}

	got, err := repo.GetByID(ctx, "alice", created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Title != "Paris Trip" || got.Content != "Visited the Louvre in 2019" || got.ExtractedText != "scanned ticket" {
		t.Errorf("GetByID() = %+v", got)
	}
	if !reflect.DeepEqual([]string(got.Tags), []string{"travel", "europe"}) {
		t.Errorf("GetByID() Tags = %v", got.Tags)
	}
	if !got.IsFavorite {
		t.Error("GetByID() IsFavorite = false, want true")
	}
	if !reflect.DeepEqual([]float32(got.Fingerprint), []float32{0.5, 0.5, 0.5, 0.5}) {
		t.Errorf("GetByID() Fingerprint = %v", got.Fingerprint)
	}
}

func TestNoteRepo_GetByID(t *testing.T) {
	repo := newTestRepo(t)
	note := mustCreate(t, repo, Note{OwnerID: "alice", Title: "Mine"})

	tests := []struct {
		name    string
		ownerID string
		id      string
		wantErr error
	}{
		{"owner reads own note", "alice", note.ID, nil},
		{"other owner", "bob", note.ID, ErrNotFound},
		{"unknown id", "alice", "missing", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.GetByID(context.Background(), tt.ownerID, tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("GetByID() error = %v, want %v", err, tt.wantErr)
				}
				if got != nil {
					t.Errorf("GetByID() = %+v, want nil", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetByID() unexpected error: %v", err)
			}
			if got.ID != tt.id {
				t.Errorf("GetByID() ID = %v, want %v", got.ID, tt.id)
			}
		})
	}
}

func TestNoteRepo_NullFingerprint(t *testing.T) {
	repo := newTestRepo(t)
	note := mustCreate(t, repo, Note{OwnerID: "alice", Title: "Empty"})

	got, err := repo.GetByID(context.Background(), "alice", note.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Fingerprint != nil {
		t.Errorf("Fingerprint = %v, want nil", got.Fingerprint)
	}
	if len(got.Tags) != 0 {
		t.Errorf("Tags = %v, want empty", got.Tags)
	}
}

func TestNoteRepo_Update(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	note := mustCreate(t, repo, Note{OwnerID: "alice", Title: "Draft"})

	note.Title = "Final"
	note.Tags = Tags{"done"}
	note.Fingerprint = Fingerprint{1, 0, 0, 0}
	if err := repo.Update(ctx, &note); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "alice", note.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Title != "Final" || len(got.Tags) != 1 || len(got.Fingerprint) != 4 {
		t.Errorf("Update() not persisted: %+v", got)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Errorf("UpdatedAt %v before CreatedAt %v", got.UpdatedAt, got.CreatedAt)
	}

	other := note
	other.OwnerID = "bob"
	if err := repo.Update(ctx, &other); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() by other owner error = %v, want ErrNotFound", err)
	}
}

func TestNoteRepo_Delete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	note := mustCreate(t, repo, Note{OwnerID: "alice", Title: "Gone"})

	if err := repo.Delete(ctx, "bob", note.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() by other owner error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "alice", note.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, "alice", note.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "alice", note.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestNoteRepo_FindByOwner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := mustCreate(t, repo, Note{OwnerID: "alice", Title: "first"})
	mustCreate(t, repo, Note{OwnerID: "bob", Title: "bob's"})
	second := mustCreate(t, repo, Note{OwnerID: "alice", Title: "second"})
	mustCreate(t, repo, Note{OwnerID: "alice", Title: "third"})

	tests := []struct {
		name string
		ids  []string
		want []string
	}{
		{"all notes in insertion order", nil, []string{"first", "second", "third"}},
		{"subset keeps insertion order", []string{second.ID, first.ID}, []string{"first", "second"}},
		{"unknown ids", []string{"nope"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindByOwner(ctx, "alice", tt.ids)
			if err != nil {
				t.Fatalf("FindByOwner() error = %v", err)
			}
			if titles := noteTitles(got); !reflect.DeepEqual(titles, tt.want) {
				t.Errorf("FindByOwner() = %v, want %v", titles, tt.want)
			}
		})
	}
}

func TestNoteRepo_List(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustCreate(t, repo, Note{OwnerID: "alice", Title: "a", Tags: Tags{"travel"}})
	mustCreate(t, repo, Note{OwnerID: "alice", Title: "b", Type: NoteTypePDF, IsFavorite: true})
	mustCreate(t, repo, Note{OwnerID: "alice", Title: "c", Tags: Tags{"travel", "food"}, IsFavorite: true})
	mustCreate(t, repo, Note{OwnerID: "bob", Title: "d", Tags: Tags{"travel"}})

	favorite := true
	tests := []struct {
		name      string
		filter    ListFilter
		want      []string
		wantTotal int
	}{
		{"newest first", ListFilter{}, []string{"c", "b", "a"}, 3},
		{"by tag", ListFilter{Tag: "travel"}, []string{"c", "a"}, 2},
		{"by type", ListFilter{Type: NoteTypePDF}, []string{"b"}, 1},
		{"favorites", ListFilter{Favorite: &favorite}, []string{"c", "b"}, 2},
		{"second page", ListFilter{Page: 2, Limit: 2}, []string{"a"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := repo.List(ctx, "alice", tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("List() total = %d, want %d", total, tt.wantTotal)
			}
			if titles := noteTitles(got); !reflect.DeepEqual(titles, tt.want) {
				t.Errorf("List() = %v, want %v", titles, tt.want)
			}
		})
	}
}

func TestNoteRepo_TextSearch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustCreate(t, repo, Note{OwnerID: "alice", Title: "Paris Trip"})
	mustCreate(t, repo, Note{OwnerID: "alice", Title: "Scan", ExtractedText: "receipt from paris"})
	mustCreate(t, repo, Note{OwnerID: "alice", Title: "Tagged", Tags: Tags{"Paris"}})
	mustCreate(t, repo, Note{OwnerID: "alice", Title: "100% done"})
	mustCreate(t, repo, Note{OwnerID: "bob", Title: "Paris too"})

	tests := []struct {
		name  string
		query string
		limit int
		want  []string
	}{
		{"case insensitive across fields", "PARIS", 10, []string{"Tagged", "Scan", "Paris Trip"}},
		{"limit", "paris", 1, []string{"Tagged"}},
		{"percent is literal", "100%", 10, []string{"100% done"}},
		{"no match", "tokyo", 10, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.TextSearch(ctx, "alice", tt.query, tt.limit)
			if err != nil {
				t.Fatalf("TextSearch() error = %v", err)
			}
			if titles := noteTitles(got); !reflect.DeepEqual(titles, tt.want) {
				t.Errorf("TextSearch() = %v, want %v", titles, tt.want)
			}
		})
	}
}

func TestNoteRepo_Tags(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustCreate(t, repo, Note{OwnerID: "alice", Title: "a", Tags: Tags{"travel", "food"}})
	mustCreate(t, repo, Note{OwnerID: "alice", Title: "b", Tags: Tags{"food", ""}})
	mustCreate(t, repo, Note{OwnerID: "bob", Title: "c", Tags: Tags{"work"}})

	got, err := repo.Tags(ctx, "alice")
	if err != nil {
		t.Fatalf("Tags() error = %v", err)
	}
	if want := []string{"food", "travel"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Tags() = %v, want %v", got, want)
	}
}

func TestNoteRepo_ListAllAndUpdateFingerprint(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := mustCreate(t, repo, Note{OwnerID: "alice", Title: "a"})
	mustCreate(t, repo, Note{OwnerID: "bob", Title: "b"})

	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if titles := noteTitles(all); !reflect.DeepEqual(titles, []string{"a", "b"}) {
		t.Errorf("ListAll() = %v", titles)
	}

	if err := repo.UpdateFingerprint(ctx, a.ID, all[0].UpdatedAt, Fingerprint{0, 1, 0, 0}); err != nil {
		t.Fatalf("UpdateFingerprint() error = %v", err)
	}
	got, err := repo.GetByID(ctx, "alice", a.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(got.Fingerprint) != 4 || got.Fingerprint[1] != 1 {
		t.Errorf("Fingerprint = %v", got.Fingerprint)
	}

	if err := repo.UpdateFingerprint(ctx, "missing", time.Now(), Fingerprint{1}); !errors.Is(err, ErrNoteChanged) {
		t.Errorf("UpdateFingerprint() missing error = %v, want ErrNoteChanged", err)
	}
}

func TestNoteRepo_UpdateFingerprintAfterEdit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	note := mustCreate(t, repo, Note{OwnerID: "alice", Title: "Paris", Content: "old text"})
	snapshot, err := repo.GetByID(ctx, "alice", note.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	edited := *snapshot
	edited.Content = "new text"
	edited.Fingerprint = Fingerprint{0, 0, 0, 1}
	time.Sleep(time.Millisecond)
	if err := repo.Update(ctx, &edited); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	err = repo.UpdateFingerprint(ctx, note.ID, snapshot.UpdatedAt, Fingerprint{1, 0, 0, 0})
	if !errors.Is(err, ErrNoteChanged) {
		t.Fatalf("UpdateFingerprint() error = %v, want ErrNoteChanged", err)
	}

	got, err := repo.GetByID(ctx, "alice", note.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(got.Fingerprint) != 4 || got.Fingerprint[3] != 1 {
		t.Errorf("Fingerprint = %v, want the edit's fingerprint kept", got.Fingerprint)
	}

	if err := repo.UpdateFingerprint(ctx, note.ID, got.UpdatedAt, Fingerprint{1, 0, 0, 0}); err != nil {
		t.Errorf("UpdateFingerprint() with current version error = %v", err)
	}
}

func TestNote_FingerprintSource(t *testing.T) {
	tests := []struct {
		name string
		note Note
		want string
	}{
		{"extracted text wins", Note{Title: "t", Content: "c", ExtractedText: "e"}, "e"},
		{"content before title", Note{Title: "t", Content: "c"}, "c"},
		{"title last", Note{Title: "t"}, "t"},
		{"nothing", Note{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.note.FingerprintSource(); got != tt.want {
				t.Errorf("FingerprintSource() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNoteType_Valid(t *testing.T) {
	for _, typ := range []NoteType{NoteTypeText, NoteTypeImage, NoteTypePDF, NoteTypeURL} {
		if !typ.Valid() {
			t.Errorf("%q.Valid() = false", typ)
		}
	}
	if NoteType("video").Valid() {
		t.Error(`"video".Valid() = true`)
	}
}
