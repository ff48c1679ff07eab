package rag

import "thinkbox/internal/storage"

// RankRequest selects the candidate notes for a query.
type RankRequest struct {
	// Query is the raw user text.
	Query string `json:"query"`
	// OwnerID restricts candidates to notes owned by this user.
	OwnerID string `json:"-"`
	// NoteIDs optionally restricts candidates to an explicit subset. Empty means all notes of the owner.
	NoteIDs []string `json:"noteIds,omitempty"`
	// Limit caps the number of returned notes. Zero selects the configured default.
	Limit int `json:"limit,omitempty"`
}

// AskRequest is a chat question answered from the owner's notes.
type AskRequest struct {
	// Message is the user's question.
	Message string `json:"message"`
	OwnerID string `json:"-"`
	// NoteIDs optionally restricts the search to selected notes.
	NoteIDs []string `json:"noteIds,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// ScoredNote is a note with the scores computed for one query. It is never persisted.
type ScoredNote struct {
	Note storage.Note
	// Similarity is the fingerprint cosine similarity, or the nominal fallback similarity.
	Similarity float64
	// KeywordScore is the additive lexical score.
	KeywordScore float64
	// TitleMatches counts query tokens found in the title.
	TitleMatches int
	// Combined is the weighted score used for ordering.
	Combined float64
	// Fallback is set when the note was selected by the substring fallback and carries no real score.
	Fallback bool
}

// Strategy names the response strategy chosen by the Synthesizer.
type Strategy string

const (
	StrategyInformative Strategy = "informative"
	StrategyGreeting    Strategy = "greeting"
	StrategyNoContext   Strategy = "no_context"
)

// Citation references a note used to build an answer.
type Citation struct {
	NoteID     string           `json:"_id"`
	Title      string           `json:"title"`
	Type       storage.NoteType `json:"type"`
	Similarity float64          `json:"similarity"`
	Snippet    string           `json:"snippet"`
}

// AnswerResult is the synthesized answer with its sources.
type AnswerResult struct {
	Answer  string     `json:"response"`
	Sources []Citation `json:"sources"`
	// Strategy is the branch that produced the answer.
	Strategy Strategy `json:"strategy"`
	// Degraded is set when the generation backend failed and a fixed fallback text was returned.
	Degraded bool `json:"degraded"`
}

// InsightType selects the kind of insight generated for a note.
type InsightType string

const (
	InsightSummarize  InsightType = "summarize"
	InsightFlashcards InsightType = "flashcards"
)

// NewNoteID is the note identifier that asks for insights on unsaved content.
const NewNoteID = "new"

// InsightRequest asks for a summary or flashcards of one note.
type InsightRequest struct {
	OwnerID string
	// NoteID is an existing note, or NewNoteID to use Title and Content directly.
	NoteID  string
	Type    InsightType
	Title   string
	Content string
}

// InsightResult is the generated insight.
type InsightResult struct {
	Type     InsightType `json:"type"`
	NoteID   string      `json:"noteId"`
	Insight  string      `json:"insight"`
	Degraded bool        `json:"degraded"`
}
