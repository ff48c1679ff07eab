// Package indexer keeps stored note fingerprints consistent with the configured vectorizer.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"thinkbox/internal/contextutil"
	"thinkbox/internal/embedding"
	"thinkbox/internal/service"
	"thinkbox/internal/storage"
	"thinkbox/internal/vectorstore"
)

// mirrorBatchSize is the number of points sent to the vector index per upsert.
const mirrorBatchSize = 64

// ErrAlreadyRunning is returned when a backfill is requested while another is in progress.
var ErrAlreadyRunning = errors.New("reindex already running")

// Reindexer recomputes note fingerprints that are missing or were built with another dimension,
// and re-mirrors every fingerprint to the vector index.
type Reindexer struct {
	notes       storage.NoteStore
	vectorizer  embedding.Vectorizer
	vectorStore vectorstore.VectorStore
	collection  string

	running sync.Mutex
	mu      sync.RWMutex
	last    *RunStats
}

// NewReindexer creates a Reindexer. vectorStore may be nil.
func NewReindexer(
	notes storage.NoteStore,
	vectorizer embedding.Vectorizer,
	vectorStore vectorstore.VectorStore,
	collection string,
) *Reindexer {
	return &Reindexer{
		notes:       notes,
		vectorizer:  vectorizer,
		vectorStore: vectorStore,
		collection:  collection,
	}
}

// Run backfills fingerprints. With force every note is recomputed.
// Errors for individual notes are logged and counted but don't stop the run.
func (r *Reindexer) Run(ctx context.Context, force bool) (*RunStats, error) {
	if !r.running.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer r.running.Unlock()

	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	notes, err := r.notes.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	dim := r.vectorizer.Dimension()
	stats := &RunStats{
		StartedAt:          start.UTC(),
		Force:              force,
		Dimension:          dim,
		FingerprintVersion: FingerprintVersion(dim),
	}
	logger.InfoContext(ctx, "starting fingerprint backfill", "notes", len(notes), "force", force, "dimension", dim)

	var points []vectorstore.Point
	var cleared []string

	for i := range notes {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		note := &notes[i]
		stats.NotesScanned++

		want, action := r.plan(*note, force)
		switch action {
		case actionRecompute, actionClear:
			err := r.notes.UpdateFingerprint(ctx, note.ID, note.UpdatedAt, want)
			if errors.Is(err, storage.ErrNoteChanged) {
				// The writer that changed it stored and mirrored its own fingerprint.
				stats.Skipped++
				logger.DebugContext(ctx, "note changed during backfill", "note_id", note.ID)
				continue
			}
			if err != nil {
				stats.Failed++
				logger.ErrorContext(ctx, "failed to store fingerprint", "note_id", note.ID, "error", err)
				continue
			}
			note.Fingerprint = want
			if action == actionClear {
				stats.Cleared++
			} else {
				stats.Recomputed++
			}
		default:
			stats.Unchanged++
		}

		if note.Fingerprint == nil {
			cleared = append(cleared, note.ID)
			continue
		}
		points = append(points, service.NotePoint(*note))
	}

	if r.vectorStore != nil {
		stats.Mirrored = r.mirror(ctx, points, cleared)
	}

	stats.DurationMs = time.Since(start).Milliseconds()
	r.mu.Lock()
	r.last = stats
	r.mu.Unlock()

	logger.InfoContext(ctx, "fingerprint backfill completed",
		slog.Int("scanned", stats.NotesScanned),
		slog.Int("recomputed", stats.Recomputed),
		slog.Int("cleared", stats.Cleared),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed),
		slog.Int("mirrored", stats.Mirrored),
		slog.Int64("duration_ms", stats.DurationMs),
	)

	if stats.Failed > 0 {
		return stats, fmt.Errorf("backfill completed with %d errors", stats.Failed)
	}
	return stats, nil
}

// Last returns the stats of the most recent completed run, or nil.
func (r *Reindexer) Last() *RunStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

type action int

const (
	actionKeep action = iota
	actionRecompute
	actionClear
)

// plan decides what a note's fingerprint should become.
func (r *Reindexer) plan(note storage.Note, force bool) (storage.Fingerprint, action) {
	source := note.FingerprintSource()
	if strings.TrimSpace(source) == "" {
		if note.Fingerprint == nil {
			return nil, actionKeep
		}
		return nil, actionClear
	}
	if !force && len(note.Fingerprint) == r.vectorizer.Dimension() {
		return note.Fingerprint, actionKeep
	}
	return storage.Fingerprint(r.vectorizer.Vectorize(source)), actionRecompute
}

// mirror upserts points in batches and drops cleared ones. It returns the number of points written.
func (r *Reindexer) mirror(ctx context.Context, points []vectorstore.Point, cleared []string) int {
	logger := contextutil.LoggerFromContext(ctx)

	mirrored := 0
	for start := 0; start < len(points); start += mirrorBatchSize {
		end := start + mirrorBatchSize
		if end > len(points) {
			end = len(points)
		}
		if err := r.vectorStore.Upsert(ctx, r.collection, points[start:end]); err != nil {
			logger.WarnContext(ctx, "failed to mirror fingerprints", "batch_start", start, "count", end-start, "error", err)
			continue
		}
		mirrored += end - start
	}

	if len(cleared) > 0 {
		if err := r.vectorStore.Delete(ctx, r.collection, cleared); err != nil {
			logger.WarnContext(ctx, "failed to remove cleared fingerprints", "count", len(cleared), "error", err)
		}
	}
	return mirrored
}
