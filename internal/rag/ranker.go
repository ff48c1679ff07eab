package rag

import (
	"sort"

	"thinkbox/internal/config"
	"thinkbox/internal/embedding"
	"thinkbox/internal/storage"
)

// Ranker orders notes by relevance to a query. It holds no mutable state
// and is safe for concurrent use.
type Ranker struct {
	vectorizer embedding.Vectorizer
	weights    config.Ranking
}

// NewRanker creates a Ranker with the given vectorizer and weights.
func NewRanker(vectorizer embedding.Vectorizer, weights config.Ranking) *Ranker {
	return &Ranker{
		vectorizer: vectorizer,
		weights:    weights,
	}
}

// Weights returns the ranking weights in use.
func (r *Ranker) Weights() config.Ranking {
	return r.weights
}

// Score computes the combined score of every note, drops notes that do not
// clear the score floor, and sorts the rest by combined score, highest first.
// Notes with equal scores keep their input order.
func (r *Ranker) Score(query string, notes []storage.Note) []ScoredNote {
	queryVector := r.vectorizer.Vectorize(query)
	tokens := queryTokens(query)

	scored := make([]ScoredNote, 0, len(notes))
	for _, note := range notes {
		var similarity float64
		if len(note.Fingerprint) > 0 {
			similarity = embedding.CosineSimilarity(queryVector, note.Fingerprint)
		}
		keyword, titleMatches := keywordScore(tokens, note, r.weights)

		combined := r.weights.EmbeddingWeight*similarity +
			r.weights.KeywordWeight*keyword +
			float64(titleMatches)*r.weights.TitleBonus
		if combined <= r.weights.ScoreFloor {
			continue
		}

		scored = append(scored, ScoredNote{
			Note:         note,
			Similarity:   similarity,
			KeywordScore: keyword,
			TitleMatches: titleMatches,
			Combined:     combined,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Combined > scored[j].Combined
	})
	return scored
}

// Rank returns at most limit notes ordered by combined score. When no note
// clears the floor it falls back to notes containing any query keyword,
// each reported with the nominal fallback similarity.
func (r *Ranker) Rank(query string, notes []storage.Note, limit int) []ScoredNote {
	if limit <= 0 {
		limit = r.weights.ChatLimit
	}

	scored := r.Score(query, notes)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	if len(scored) > 0 {
		return scored
	}
	return r.fallback(query, notes, limit)
}

func (r *Ranker) fallback(query string, notes []storage.Note, limit int) []ScoredNote {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil
	}

	var matched []ScoredNote
	for _, note := range notes {
		if len(matched) == limit {
			break
		}
		if !containsAny(tokens, note) {
			continue
		}
		matched = append(matched, ScoredNote{
			Note:       note,
			Similarity: r.weights.FallbackSimilarity,
			Fallback:   true,
		})
	}
	return matched
}
