package rag_test

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"thinkbox/internal/embedding"
	"thinkbox/internal/rag"
	"thinkbox/internal/storage"
)

func init() {
	// Set default logger to discard output for cleaner test output
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var testVectorizer = embedding.NewHashVectorizer(embedding.DefaultDimension)

// fingerprinted returns the note with its fingerprint computed the way the write path does.
func fingerprinted(n storage.Note) storage.Note {
	if src := n.FingerprintSource(); src != "" {
		n.Fingerprint = testVectorizer.Vectorize(src)
	}
	return n
}

func parisNotes() []storage.Note {
	return []storage.Note{
		fingerprinted(storage.Note{
			ID:      "b",
			Title:   "Recipe",
			Content: "Paris is mentioned once",
			Type:    storage.NoteTypeText,
		}),
		fingerprinted(storage.Note{
			ID:      "a",
			Title:   "Paris Trip",
			Content: "Visited the Louvre in 2019",
			Tags:    storage.Tags{"travel"},
			Type:    storage.NoteTypeText,
		}),
	}
}

func scoredIDs(notes []rag.ScoredNote) []string {
	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		ids = append(ids, n.Note.ID)
	}
	return ids
}

type rankCall struct {
	candidates, ranked int
	fallback           bool
}

type answerCall struct {
	strategy rag.Strategy
	degraded bool
	sources  int
}

// fakeRecorder captures Recorder calls.
type fakeRecorder struct {
	mu      sync.Mutex
	ranks   []rankCall
	answers []answerCall
}

func (r *fakeRecorder) RecordRank(_ context.Context, candidates, ranked int, fallback bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ranks = append(r.ranks, rankCall{candidates, ranked, fallback})
}

func (r *fakeRecorder) RecordAnswer(_ context.Context, strategy rag.Strategy, degraded bool, sources int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, answerCall{strategy, degraded, sources})
}
