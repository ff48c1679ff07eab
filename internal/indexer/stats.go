package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"

	"thinkbox/internal/embedding"
)

// VectorizerVersion identifies the fingerprint algorithm.
// Update this when the vectorizer's output changes for the same input.
const VectorizerVersion = "tf-hash-v1"

// RunStats describes one backfill run.
type RunStats struct {
	StartedAt time.Time `json:"started_at"`
	Force     bool      `json:"force"`
	// NotesScanned is the number of notes examined.
	NotesScanned int `json:"notes_scanned"`
	// Recomputed counts notes whose fingerprint was missing, stale or forced.
	Recomputed int `json:"recomputed"`
	// Cleared counts notes whose fingerprint was removed because they have no text.
	Cleared   int `json:"cleared"`
	Unchanged int `json:"unchanged"`
	// Skipped counts notes edited or deleted while the run was in progress.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	// Mirrored is the number of fingerprints written to the vector index.
	Mirrored           int    `json:"mirrored"`
	Dimension          int    `json:"dimension"`
	FingerprintVersion string `json:"fingerprint_version"`
	DurationMs         int64  `json:"duration_ms"`
}

// CoverageStats describes the fingerprint state of the stored notes.
type CoverageStats struct {
	Notes int `json:"notes"`
	// Fingerprinted counts notes whose fingerprint has the configured dimension.
	Fingerprinted int `json:"fingerprinted"`
	// Missing counts notes without a fingerprint.
	Missing int `json:"missing"`
	// Stale counts notes whose fingerprint has another dimension.
	Stale int `json:"stale"`
	// SourceTokenStats summarizes the meaningful token counts of fingerprint sources.
	SourceTokenStats TokenStats `json:"source_token_stats"`

	Dimension          int    `json:"dimension"`
	FingerprintVersion string `json:"fingerprint_version"`
}

// TokenStats contains min, max, mean and 95th percentile of token counts.
type TokenStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// Coverage inspects every stored note and reports how many fingerprints are current.
func (r *Reindexer) Coverage(ctx context.Context) (*CoverageStats, error) {
	notes, err := r.notes.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	dim := r.vectorizer.Dimension()
	stats := &CoverageStats{
		Notes:              len(notes),
		Dimension:          dim,
		FingerprintVersion: FingerprintVersion(dim),
	}

	tokenCounts := make([]int, 0, len(notes))
	for _, note := range notes {
		switch {
		case len(note.Fingerprint) == dim:
			stats.Fingerprinted++
		case note.Fingerprint == nil:
			stats.Missing++
		default:
			stats.Stale++
		}
		tokenCounts = append(tokenCounts, meaningfulTokens(note.FingerprintSource()))
	}
	stats.SourceTokenStats = computeTokenStats(tokenCounts)

	return stats, nil
}

// FingerprintVersion hashes the vectorizer version and dimension into a short identifier.
// Fingerprints with different versions are not comparable.
func FingerprintVersion(dim int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|dim=%d", VectorizerVersion, dim)))
	return hex.EncodeToString(hash[:])[:16]
}

func meaningfulTokens(text string) int {
	count := 0
	for _, token := range embedding.Tokenize(text) {
		if !embedding.IsStopword(token) && len([]rune(token)) >= 3 {
			count++
		}
	}
	return count
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) TokenStats {
	if len(tokenCounts) == 0 {
		return TokenStats{}
	}

	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	sum := 0
	for _, count := range sorted {
		sum += count
	}
	mean := float64(sum) / float64(len(sorted))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return TokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95Index],
	}
}
