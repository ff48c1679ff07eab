package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_generator.go -package=mocks thinkbox/internal/rag Generator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"thinkbox/internal/config"
	"thinkbox/internal/contextutil"
)

// Generator produces text from a prompt. Any error is treated as a backend failure.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

var errEmptyGeneration = errors.New("generation backend returned an empty response")

// Synthesizer turns a query and its ranked notes into an answer.
// It never fails: backend errors are replaced by fixed fallback texts.
type Synthesizer struct {
	generator Generator
	weights   config.Ranking
	timeout   time.Duration
}

// NewSynthesizer creates a Synthesizer. A zero timeout leaves the caller's deadline in charge.
func NewSynthesizer(generator Generator, weights config.Ranking, timeout time.Duration) *Synthesizer {
	return &Synthesizer{
		generator: generator,
		weights:   weights,
		timeout:   timeout,
	}
}

// Synthesize answers query from notes. Sources always mirror notes in order.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, notes []ScoredNote) AnswerResult {
	logger := contextutil.LoggerFromContext(ctx)

	strategy := selectStrategy(query, notes)
	var prompt string
	switch strategy {
	case StrategyGreeting:
		prompt = greetingPrompt(query)
	case StrategyNoContext:
		prompt = noContextPrompt(query)
	default:
		prompt = informativePrompt(query, buildContext(notes, s.weights.ContextChars))
	}

	result := AnswerResult{
		Sources:  s.citations(notes),
		Strategy: strategy,
	}

	logger.DebugContext(ctx, "generating answer",
		"strategy", strategy,
		"notes", len(notes),
		"prompt_length", len(prompt),
	)

	answer, err := s.generate(ctx, prompt)
	if err != nil {
		logger.WarnContext(ctx, "generation failed, using fallback answer",
			"strategy", strategy,
			"error", err,
		)
		result.Answer = degradedAnswer(query, notes)
		result.Degraded = true
		return result
	}

	result.Answer = answer
	return result
}

// generate calls the backend under the configured timeout.
func (s *Synthesizer) generate(ctx context.Context, prompt string) (string, error) {
	if s.generator == nil {
		return "", errors.New("no generation backend configured")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errEmptyGeneration
	}
	return text, nil
}

func selectStrategy(query string, notes []ScoredNote) Strategy {
	switch {
	case IsGreeting(query):
		return StrategyGreeting
	case len(notes) == 0:
		return StrategyNoContext
	default:
		return StrategyInformative
	}
}

func degradedAnswer(query string, notes []ScoredNote) string {
	if len(notes) == 0 {
		return fmt.Sprintf("I couldn't find any relevant notes for %q. Try creating some notes first, or use different search terms.", query)
	}
	return fmt.Sprintf("I found information in your note %q, but I'm having trouble processing it right now. "+
		"Please check the note directly or try rephrasing your question.\n\n"+
		"Note: AI features are experiencing issues, so answers are limited for now.", notes[0].Note.Title)
}

func (s *Synthesizer) citations(notes []ScoredNote) []Citation {
	citations := make([]Citation, 0, len(notes))
	for _, sn := range notes {
		citations = append(citations, Citation{
			NoteID:     sn.Note.ID,
			Title:      sn.Note.Title,
			Type:       sn.Note.Type,
			Similarity: roundTo2(sn.Similarity),
			Snippet:    snippet(sn, s.weights.SnippetChars),
		})
	}
	return citations
}

func snippet(sn ScoredNote, maxChars int) string {
	body := firstNonEmpty(sn.Note.Content, sn.Note.ExtractedText)
	if body == "" {
		return noPreview
	}
	runes := []rune(body)
	if len(runes) > maxChars {
		runes = runes[:maxChars]
	}
	return string(runes) + ellipsis
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
