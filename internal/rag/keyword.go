package rag

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"thinkbox/internal/config"
	"thinkbox/internal/storage"
)

// minKeywordRunes is the shortest query token that takes part in keyword matching.
const minKeywordRunes = 3

// queryTokens splits a query on whitespace into lowercase keywords.
// Surrounding punctuation is trimmed so "Paris?" matches "paris".
func queryTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if utf8.RuneCountInString(f) < minKeywordRunes {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// KeywordScore scores how well the query's keywords appear in a note.
// Each keyword is checked independently against the title, the tags and the body
// (content and extracted text as one bucket). It returns the score and the number
// of keywords found in the title.
func KeywordScore(query string, note storage.Note, w config.Ranking) (float64, int) {
	return keywordScore(queryTokens(query), note, w)
}

func keywordScore(tokens []string, note storage.Note, w config.Ranking) (float64, int) {
	if len(tokens) == 0 {
		return 0, 0
	}

	title := strings.ToLower(note.Title)
	tags := strings.ToLower(strings.Join(note.Tags, " "))
	content := strings.ToLower(note.Content)
	extracted := strings.ToLower(note.ExtractedText)

	var score float64
	var titleMatches int
	for _, token := range tokens {
		if strings.Contains(title, token) {
			score += w.TitleMatch
			titleMatches++
		}
		if strings.Contains(tags, token) {
			score += w.TagMatch
		}
		if strings.Contains(content, token) || strings.Contains(extracted, token) {
			score += w.BodyMatch
		}
	}
	return score, titleMatches
}

// containsAny reports whether any keyword appears in the note's title, content or extracted text.
func containsAny(tokens []string, note storage.Note) bool {
	text := strings.ToLower(note.Title + " " + note.Content + " " + note.ExtractedText)
	for _, token := range tokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}
