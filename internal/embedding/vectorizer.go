// Package embedding turns note text into fixed-length fingerprints and compares them.
//
// The fingerprint is not a learned embedding. It is a deterministic, offline
// projection of term frequencies into a D-dimensional vector:
//
//  1. Lowercase the text and split it into runs of letters, digits and underscores.
//  2. Count every token's frequency in the document.
//  3. Drop stopwords and tokens shorter than three runes, keeping order and duplicates.
//  4. For the i-th remaining token t, with freq = count(t) / total tokens:
//     vector[min(i, D-1)] = freq, and vector[hash(t) mod D] += 0.5 * freq,
//     where hash is the sum of t's code points.
//  5. L2-normalize; a zero vector stays zero.
//
// Any Vectorizer can replace it without touching ranking or synthesis.
package embedding

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultDimension is the fingerprint length used when none is configured.
const DefaultDimension = 384

const (
	minTokenRunes = 3
	hashWeight    = 0.5
)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "is": {}, "was": {}, "are": {}, "be": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {}, "will": {}, "would": {},
	"could": {}, "should": {},
}

// Vectorizer maps text to a fixed-length fingerprint.
// Implementations must be pure: the same text always yields the same vector.
type Vectorizer interface {
	// Vectorize returns a vector of length Dimension(). It never fails;
	// text without meaningful tokens yields the zero vector.
	Vectorize(text string) []float32
	// Dimension returns the fixed vector length.
	Dimension() int
}

// HashVectorizer is the built-in term-frequency Vectorizer.
type HashVectorizer struct {
	dim int
}

// NewHashVectorizer creates a HashVectorizer producing vectors of length dim.
// A non-positive dim falls back to DefaultDimension.
func NewHashVectorizer(dim int) *HashVectorizer {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashVectorizer{dim: dim}
}

// Dimension returns the fixed vector length.
func (v *HashVectorizer) Dimension() int {
	return v.dim
}

// Vectorize computes the fingerprint of text.
func (v *HashVectorizer) Vectorize(text string) []float32 {
	vec := make([]float64, v.dim)

	tokens := Tokenize(text)
	if len(tokens) > 0 {
		counts := make(map[string]int, len(tokens))
		for _, token := range tokens {
			counts[token]++
		}
		total := float64(len(tokens))

		for i, token := range meaningful(tokens) {
			freq := float64(counts[token]) / total
			pos := i
			if pos > v.dim-1 {
				pos = v.dim - 1
			}
			vec[pos] = freq
			vec[tokenHash(token)%v.dim] += hashWeight * freq
		}
	}

	var sum float64
	for _, x := range vec {
		sum += x * x
	}
	magnitude := math.Sqrt(sum)

	out := make([]float32, v.dim)
	for i, x := range vec {
		if magnitude > 0 {
			x /= magnitude
		}
		out[i] = float32(x)
	}
	return out
}

// Tokenize lowercases text and splits it into runs of letters, digits and underscores.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}

// IsStopword reports whether token is ignored when fingerprinting.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

func meaningful(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if IsStopword(token) || utf8.RuneCountInString(token) < minTokenRunes {
			continue
		}
		out = append(out, token)
	}
	return out
}

func tokenHash(token string) int {
	var h int
	for _, r := range token {
		h += int(r)
	}
	return h
}
