package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Ranking holds the tunable weights of retrieval and answer synthesis.
type Ranking struct {
	// EmbeddingWeight multiplies the fingerprint cosine similarity.
	EmbeddingWeight float64 `yaml:"embedding_weight"`
	// KeywordWeight multiplies the additive keyword score.
	KeywordWeight float64 `yaml:"keyword_weight"`
	// TitleBonus is added once per query token found in a note title.
	TitleBonus float64 `yaml:"title_bonus"`

	TitleMatch float64 `yaml:"title_match"`
	TagMatch   float64 `yaml:"tag_match"`
	BodyMatch  float64 `yaml:"body_match"`

	// ScoreFloor is the combined score a note must strictly exceed to be ranked.
	ScoreFloor float64 `yaml:"score_floor"`
	// FallbackSimilarity is reported for notes picked by the substring fallback.
	FallbackSimilarity float64 `yaml:"fallback_similarity"`

	ChatLimit    int `yaml:"chat_limit"`
	SearchLimit  int `yaml:"search_limit"`
	ContextChars int `yaml:"context_chars"`
	SnippetChars int `yaml:"snippet_chars"`
}

// DefaultRanking returns the weights the application ships with.
func DefaultRanking() Ranking {
	return Ranking{
		EmbeddingWeight:    0.2,
		KeywordWeight:      0.3,
		TitleBonus:         2,
		TitleMatch:         5,
		TagMatch:           2,
		BodyMatch:          0.5,
		ScoreFloor:         0.1,
		FallbackSimilarity: 0.5,
		ChatLimit:          20,
		SearchLimit:        10,
		ContextChars:       1000,
		SnippetChars:       150,
	}
}

// LoadRanking reads a YAML file on top of DefaultRanking.
// Keys absent from the file keep their default values.
func LoadRanking(path string) (Ranking, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Ranking{}, fmt.Errorf("failed to read ranking config: %w", err)
	}

	ranking := DefaultRanking()
	if err := yaml.Unmarshal(raw, &ranking); err != nil {
		return Ranking{}, fmt.Errorf("failed to parse ranking config: %w", err)
	}
	if err := ranking.Validate(); err != nil {
		return Ranking{}, err
	}
	return ranking, nil
}

// Validate rejects negative weights and non-positive limits.
func (r Ranking) Validate() error {
	weights := map[string]float64{
		"embedding_weight":    r.EmbeddingWeight,
		"keyword_weight":      r.KeywordWeight,
		"title_bonus":         r.TitleBonus,
		"title_match":         r.TitleMatch,
		"tag_match":           r.TagMatch,
		"body_match":          r.BodyMatch,
		"score_floor":         r.ScoreFloor,
		"fallback_similarity": r.FallbackSimilarity,
	}
	for name, w := range weights {
		if w < 0 {
			return fmt.Errorf("ranking %s must not be negative", name)
		}
	}

	limits := map[string]int{
		"chat_limit":    r.ChatLimit,
		"search_limit":  r.SearchLimit,
		"context_chars": r.ContextChars,
		"snippet_chars": r.SnippetChars,
	}
	for name, l := range limits {
		if l <= 0 {
			return fmt.Errorf("ranking %s must be greater than 0", name)
		}
	}
	return nil
}
