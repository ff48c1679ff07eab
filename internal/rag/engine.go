package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_note_finder.go -package=mocks thinkbox/internal/rag NoteFinder
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_engine.go -package=mocks -mock_names=Engine=MockEngine thinkbox/internal/rag Engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"thinkbox/internal/contextutil"
	"thinkbox/internal/embedding"
	"thinkbox/internal/service"
	"thinkbox/internal/storage"
	"thinkbox/internal/vectorstore"
)

const insightUnavailable = "Insights are temporarily unavailable for %q. Please try again later."

// NoteFinder is the read side of the note store used by the engine.
type NoteFinder interface {
	// FindByOwner returns the owner's notes in insertion order, optionally restricted to ids.
	FindByOwner(ctx context.Context, ownerID string, ids []string) ([]storage.Note, error)
	// GetByID returns one note of the owner, or storage.ErrNotFound.
	GetByID(ctx context.Context, ownerID, id string) (*storage.Note, error)
}

// Recorder receives per-request ranking and answer outcomes.
type Recorder interface {
	RecordRank(ctx context.Context, candidates, ranked int, fallback bool)
	RecordAnswer(ctx context.Context, strategy Strategy, degraded bool, sources int)
}

// Engine answers questions and searches over an owner's notes.
type Engine interface {
	// Rank returns the owner's notes ordered by relevance, with the substring fallback.
	Rank(ctx context.Context, req RankRequest) ([]ScoredNote, error)
	// Answer ranks the owner's notes and synthesizes an answer from them.
	// Generation failures never surface as errors.
	Answer(ctx context.Context, req AskRequest) (AnswerResult, error)
	// Search ranks the owner's notes without fallback or synthesis.
	Search(ctx context.Context, req RankRequest) ([]ScoredNote, error)
	// Insight summarizes a note or turns it into flashcards.
	Insight(ctx context.Context, req InsightRequest) (InsightResult, error)
	// Related returns the notes whose fingerprints are closest to the given note.
	Related(ctx context.Context, ownerID, noteID string, limit int) ([]ScoredNote, error)
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	notes       NoteFinder
	ranker      *Ranker
	synthesizer *Synthesizer
	vectorStore vectorstore.VectorStore
	collection  string
	recorder    Recorder
}

// NewEngine creates a new Engine. vectorStore and recorder may be nil;
// without a vector store Related compares fingerprints in memory.
func NewEngine(
	notes NoteFinder,
	ranker *Ranker,
	synthesizer *Synthesizer,
	vectorStore vectorstore.VectorStore,
	collection string,
	recorder Recorder,
) Engine {
	return &ragEngine{
		notes:       notes,
		ranker:      ranker,
		synthesizer: synthesizer,
		vectorStore: vectorStore,
		collection:  collection,
		recorder:    recorder,
	}
}

var tracer = otel.Tracer("thinkbox/rag")

// Rank returns the owner's notes ordered by relevance.
func (e *ragEngine) Rank(ctx context.Context, req RankRequest) ([]ScoredNote, error) {
	ctx, span := tracer.Start(ctx, "rag.rank")
	defer span.End()

	if err := validateQuery(req.Query, req.OwnerID); err != nil {
		return nil, err
	}

	notes, err := e.candidates(ctx, req.OwnerID, req.NoteIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = e.ranker.Weights().ChatLimit
	}
	ranked := e.ranker.Rank(req.Query, notes, limit)

	fallback := len(ranked) > 0 && ranked[0].Fallback
	span.SetAttributes(
		attribute.Int("rag.candidates", len(notes)),
		attribute.Int("rag.ranked", len(ranked)),
		attribute.Bool("rag.fallback", fallback),
	)
	if e.recorder != nil {
		e.recorder.RecordRank(ctx, len(notes), len(ranked), fallback)
	}
	logRanking(ctx, req.Query, len(notes), ranked)

	return ranked, nil
}

// Answer ranks the owner's notes and synthesizes an answer.
func (e *ragEngine) Answer(ctx context.Context, req AskRequest) (AnswerResult, error) {
	ctx, span := tracer.Start(ctx, "rag.answer")
	defer span.End()

	logger := contextutil.LoggerFromContext(ctx)
	logger.InfoContext(ctx, "answer started",
		"query_length", len(req.Message),
		"selected_notes", len(req.NoteIDs),
	)

	ranked, err := e.Rank(ctx, RankRequest{
		Query:   req.Message,
		OwnerID: req.OwnerID,
		NoteIDs: req.NoteIDs,
		Limit:   req.Limit,
	})
	if err != nil {
		return AnswerResult{}, err
	}

	result := e.synthesizer.Synthesize(ctx, req.Message, ranked)

	span.SetAttributes(
		attribute.String("rag.strategy", string(result.Strategy)),
		attribute.Bool("rag.degraded", result.Degraded),
	)
	if e.recorder != nil {
		e.recorder.RecordAnswer(ctx, result.Strategy, result.Degraded, len(result.Sources))
	}

	logger.InfoContext(ctx, "answer completed",
		"strategy", result.Strategy,
		"degraded", result.Degraded,
		"sources", len(result.Sources),
		"answer_length", len(result.Answer),
	)
	return result, nil
}

// Search ranks the owner's notes for a plain search.
func (e *ragEngine) Search(ctx context.Context, req RankRequest) ([]ScoredNote, error) {
	ctx, span := tracer.Start(ctx, "rag.search")
	defer span.End()

	if err := validateQuery(req.Query, req.OwnerID); err != nil {
		return nil, err
	}

	notes, err := e.candidates(ctx, req.OwnerID, req.NoteIDs)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = e.ranker.Weights().SearchLimit
	}
	scored := e.ranker.Score(req.Query, notes)
	if len(scored) > limit {
		scored = scored[:limit]
	}

	span.SetAttributes(attribute.Int("rag.candidates", len(notes)), attribute.Int("rag.ranked", len(scored)))
	logRanking(ctx, req.Query, len(notes), scored)
	return scored, nil
}

// Insight summarizes a note or turns it into flashcards.
func (e *ragEngine) Insight(ctx context.Context, req InsightRequest) (InsightResult, error) {
	ctx, span := tracer.Start(ctx, "rag.insight")
	defer span.End()

	logger := contextutil.LoggerFromContext(ctx)

	if req.OwnerID == "" {
		return InsightResult{}, &service.ValidationError{Field: "owner", Message: "is required"}
	}
	if req.Type != InsightSummarize && req.Type != InsightFlashcards {
		return InsightResult{}, &service.ValidationError{Field: "type", Message: "must be summarize or flashcards"}
	}

	var title, content string
	if req.NoteID == NewNoteID {
		content = firstNonEmpty(req.Content, req.Title)
		title = firstNonEmpty(req.Title, "New Note")
		if strings.TrimSpace(content) == "" {
			return InsightResult{}, &service.ValidationError{Field: "content", Message: "is required for generating insights"}
		}
	} else {
		note, err := e.notes.GetByID(ctx, req.OwnerID, req.NoteID)
		if err != nil {
			return InsightResult{}, notFoundOr(err, "failed to load note")
		}
		content = firstNonEmpty(note.Content, note.ExtractedText, note.Title)
		title = note.Title
	}

	prompt := summarizePrompt(title, content)
	if req.Type == InsightFlashcards {
		prompt = flashcardsPrompt(title, content)
	}

	result := InsightResult{Type: req.Type, NoteID: req.NoteID}
	text, err := e.synthesizer.generate(ctx, prompt)
	if err != nil {
		logger.WarnContext(ctx, "insight generation failed, using fallback", "type", req.Type, "error", err)
		result.Insight = fmt.Sprintf(insightUnavailable, title)
		result.Degraded = true
		return result, nil
	}

	result.Insight = text
	return result, nil
}

// Related returns the notes most similar to noteID by fingerprint.
func (e *ragEngine) Related(ctx context.Context, ownerID, noteID string, limit int) ([]ScoredNote, error) {
	ctx, span := tracer.Start(ctx, "rag.related")
	defer span.End()

	logger := contextutil.LoggerFromContext(ctx)

	if ownerID == "" {
		return nil, &service.ValidationError{Field: "owner", Message: "is required"}
	}
	if limit <= 0 {
		limit = e.ranker.Weights().SearchLimit
	}

	target, err := e.notes.GetByID(ctx, ownerID, noteID)
	if err != nil {
		return nil, notFoundOr(err, "failed to load note")
	}
	if len(target.Fingerprint) == 0 {
		return []ScoredNote{}, nil
	}

	if e.vectorStore != nil {
		related, err := e.relatedFromStore(ctx, ownerID, target, limit)
		if err == nil {
			return related, nil
		}
		logger.WarnContext(ctx, "vector store lookup failed, comparing in memory", "note_id", noteID, "error", err)
	}

	notes, err := e.notes.FindByOwner(ctx, ownerID, nil)
	if err != nil {
		return nil, service.WrapError(err, "failed to load notes")
	}

	related := make([]ScoredNote, 0, len(notes))
	for _, note := range notes {
		if note.ID == target.ID || len(note.Fingerprint) == 0 {
			continue
		}
		sim := embedding.CosineSimilarity(target.Fingerprint, note.Fingerprint)
		if sim <= 0 {
			continue
		}
		related = append(related, ScoredNote{Note: note, Similarity: sim, Combined: sim})
	}
	sort.SliceStable(related, func(i, j int) bool {
		return related[i].Similarity > related[j].Similarity
	})
	if len(related) > limit {
		related = related[:limit]
	}
	return related, nil
}

func (e *ragEngine) relatedFromStore(ctx context.Context, ownerID string, target *storage.Note, limit int) ([]ScoredNote, error) {
	results, err := e.vectorStore.Search(ctx, e.collection, target.Fingerprint, limit, vectorstore.Filter{
		OwnerID:    ownerID,
		ExcludeIDs: []string{target.ID},
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return []ScoredNote{}, nil
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.PointID)
	}
	notes, err := e.notes.FindByOwner(ctx, ownerID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]storage.Note, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
	}

	related := make([]ScoredNote, 0, len(results))
	for _, r := range results {
		note, ok := byID[r.PointID]
		if !ok {
			// stale point, the note is gone
			continue
		}
		sim := float64(r.Score)
		related = append(related, ScoredNote{Note: note, Similarity: sim, Combined: sim})
	}
	return related, nil
}

func (e *ragEngine) candidates(ctx context.Context, ownerID string, ids []string) ([]storage.Note, error) {
	notes, err := e.notes.FindByOwner(ctx, ownerID, ids)
	if err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to load candidate notes", "error", err)
		return nil, service.WrapError(err, "failed to load notes")
	}
	return notes, nil
}

func validateQuery(query, ownerID string) error {
	if strings.TrimSpace(query) == "" {
		return &service.ValidationError{Field: "query", Message: "cannot be empty"}
	}
	if ownerID == "" {
		return &service.ValidationError{Field: "owner", Message: "is required"}
	}
	return nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return service.WrapError(service.ErrNotFound, "note not found")
	}
	return service.WrapError(err, msg)
}

// logRanking writes a debug summary of the top ranked notes.
func logRanking(ctx context.Context, query string, candidates int, ranked []ScoredNote) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.DebugContext(ctx, "notes ranked",
		"query", query,
		"candidates", candidates,
		"ranked", len(ranked),
	)
	for i := 0; i < len(ranked) && i < 10; i++ {
		sn := ranked[i]
		logger.DebugContext(ctx, "ranked note",
			"rank", i+1,
			"title", sn.Note.Title,
			"combined", sn.Combined,
			"keyword", sn.KeywordScore,
			"similarity", sn.Similarity,
			"fallback", sn.Fallback,
		)
	}
}
