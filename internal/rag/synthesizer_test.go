package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"thinkbox/internal/config"
	"thinkbox/internal/rag"
	"thinkbox/internal/rag/mocks"
	"thinkbox/internal/storage"
)

func TestIsGreeting(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"hi", true},
		{"Hello there", true},
		{"hey, how are you", true},
		{"  GREETINGS  ", true},
		{" hi", true},
		{" hi there", false},
		{"\thello, notes", false},
		{"hiking trip notes", false},
		{"heyday", false},
		{"say hello", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := rag.IsGreeting(tt.query); got != tt.want {
				t.Errorf("IsGreeting(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func scored(notes ...storage.Note) []rag.ScoredNote {
	out := make([]rag.ScoredNote, 0, len(notes))
	for i, n := range notes {
		out = append(out, rag.ScoredNote{Note: n, Similarity: 0.8765 - float64(i)*0.1, Combined: 3})
	}
	return out
}

func TestSynthesizer_Strategies(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockGenerator := mocks.NewMockGenerator(ctrl)
	synth := rag.NewSynthesizer(mockGenerator, config.DefaultRanking(), time.Second)

	paris := storage.Note{ID: "a", Title: "Paris Trip", Content: "Visited the Louvre in 2019", Tags: storage.Tags{"travel", "europe"}}

	tests := []struct {
		name         string
		query        string
		notes        []rag.ScoredNote
		wantStrategy rag.Strategy
		promptHas    []string
	}{
		{
			name:         "greeting without notes",
			query:        "hi",
			wantStrategy: rag.StrategyGreeting,
			promptHas:    []string{`The user said: "hi"`, "Create flashcards from their notes"},
		},
		{
			name:         "greeting with notes",
			query:        "Hello there",
			notes:        scored(paris),
			wantStrategy: rag.StrategyGreeting,
			promptHas:    []string{`The user said: "Hello there"`},
		},
		{
			name:         "no context",
			query:        "what is a monad",
			wantStrategy: rag.StrategyNoContext,
			promptHas:    []string{`The user asked: "what is a monad"`, "create notes about this topic"},
		},
		{
			name:         "informative",
			query:        "When did I visit Paris?",
			notes:        scored(paris, storage.Note{Title: "Empty"}),
			wantStrategy: rag.StrategyInformative,
			promptHas: []string{
				`answer their question: "When did I visit Paris?"`,
				"Title: Paris Trip\nContent: Visited the Louvre in 2019\nTags: travel, europe",
				"\n\n---\n\n",
				"Title: Empty\nContent: No content\nTags: No tags",
				"If the notes don't contain the answer, say so clearly",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var prompt string
			mockGenerator.EXPECT().
				Generate(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, p string) (string, error) {
					prompt = p
					return "generated", nil
				})

			result := synth.Synthesize(context.Background(), tt.query, tt.notes)

			if result.Strategy != tt.wantStrategy {
				t.Errorf("Strategy = %v, want %v", result.Strategy, tt.wantStrategy)
			}
			if result.Answer != "generated" || result.Degraded {
				t.Errorf("result = %+v, want generated answer", result)
			}
			for _, want := range tt.promptHas {
				if !strings.Contains(prompt, want) {
					t.Errorf("prompt missing %q:\n%s", want, prompt)
				}
			}
			if len(result.Sources) != len(tt.notes) {
				t.Errorf("Sources = %d, want %d", len(result.Sources), len(tt.notes))
			}
		})
	}
}

func TestSynthesizer_TruncatesContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	weights := config.DefaultRanking()
	weights.ContextChars = 10
	mockGenerator := mocks.NewMockGenerator(ctrl)
	synth := rag.NewSynthesizer(mockGenerator, weights, 0)

	var prompt string
	mockGenerator.EXPECT().
		Generate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p string) (string, error) {
			prompt = p
			return "ok", nil
		})

	notes := scored(
		storage.Note{Title: "Long", Content: "0123456789abcdef"},
		storage.Note{Title: "Short", ExtractedText: "exact10chr"},
	)
	synth.Synthesize(context.Background(), "long notes", notes)

	if !strings.Contains(prompt, "Content: 0123456789...\n") {
		t.Errorf("long content not truncated:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Content: exact10chr\n") {
		t.Errorf("content at the limit should not be truncated:\n%s", prompt)
	}
}

func TestSynthesizer_BackendFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockGenerator := mocks.NewMockGenerator(ctrl)
	synth := rag.NewSynthesizer(mockGenerator, config.DefaultRanking(), time.Second)

	tests := []struct {
		name       string
		query      string
		notes      []rag.ScoredNote
		reply      string
		err        error
		answerHas  []string
		wantSource int
	}{
		{
			name:      "error without notes",
			query:     "volcanoes",
			err:       errors.New("quota exceeded"),
			answerHas: []string{`I couldn't find any relevant notes for "volcanoes"`, "different search terms"},
		},
		{
			name:       "error with notes names the top note",
			query:      "When did I visit Paris?",
			notes:      scored(storage.Note{Title: "Paris Trip"}, storage.Note{Title: "Recipe"}),
			err:        errors.New("connection refused"),
			answerHas:  []string{`your note "Paris Trip"`, "check the note directly", "AI features are experiencing issues"},
			wantSource: 2,
		},
		{
			name:      "empty response counts as failure",
			query:     "anything",
			reply:     "   ",
			answerHas: []string{`relevant notes for "anything"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockGenerator.EXPECT().
				Generate(gomock.Any(), gomock.Any()).
				Return(tt.reply, tt.err)

			result := synth.Synthesize(context.Background(), tt.query, tt.notes)

			if !result.Degraded {
				t.Error("Degraded = false, want true")
			}
			for _, want := range tt.answerHas {
				if !strings.Contains(result.Answer, want) {
					t.Errorf("answer %q missing %q", result.Answer, want)
				}
			}
			if strings.Contains(result.Answer, "Paris Trip") && tt.notes == nil {
				t.Errorf("apology should not name a note: %q", result.Answer)
			}
			if len(result.Sources) != tt.wantSource {
				t.Errorf("Sources = %d, want %d", len(result.Sources), tt.wantSource)
			}
		})
	}
}

func TestSynthesizer_Timeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockGenerator := mocks.NewMockGenerator(ctrl)
	synth := rag.NewSynthesizer(mockGenerator, config.DefaultRanking(), 20*time.Millisecond)

	mockGenerator.EXPECT().
		Generate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})

	start := time.Now()
	result := synth.Synthesize(context.Background(), "slow question", nil)

	if !result.Degraded {
		t.Error("Degraded = false, want true after timeout")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Synthesize() took %v, timeout not applied", elapsed)
	}
}

func TestSynthesizer_NilGenerator(t *testing.T) {
	synth := rag.NewSynthesizer(nil, config.DefaultRanking(), time.Second)

	result := synth.Synthesize(context.Background(), "anything at all", scored(storage.Note{Title: "Top"}))
	if !result.Degraded || !strings.Contains(result.Answer, `"Top"`) {
		t.Errorf("result = %+v, want degraded answer naming the top note", result)
	}
}

func TestSynthesizer_Citations(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockGenerator := mocks.NewMockGenerator(ctrl)
	mockGenerator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("answer", nil)
	synth := rag.NewSynthesizer(mockGenerator, config.DefaultRanking(), time.Second)

	long := strings.Repeat("é", 200)
	notes := []rag.ScoredNote{
		{Note: storage.Note{ID: "1", Title: "Content", Type: storage.NoteTypeText, Content: "Visited the Louvre in 2019"}, Similarity: 0.87654},
		{Note: storage.Note{ID: "2", Title: "Extracted", Type: storage.NoteTypePDF, ExtractedText: "from a pdf"}, Similarity: 0.5},
		{Note: storage.Note{ID: "3", Title: "Bare", Type: storage.NoteTypeURL}, Similarity: 0.005},
		{Note: storage.Note{ID: "4", Title: "Long", Content: long}, Similarity: 0.125},
	}

	result := synth.Synthesize(context.Background(), "citations please", notes)

	want := []rag.Citation{
		{NoteID: "1", Title: "Content", Type: storage.NoteTypeText, Similarity: 0.88, Snippet: "Visited the Louvre in 2019..."},
		{NoteID: "2", Title: "Extracted", Type: storage.NoteTypePDF, Similarity: 0.5, Snippet: "from a pdf..."},
		{NoteID: "3", Title: "Bare", Type: storage.NoteTypeURL, Similarity: 0.01, Snippet: "No content preview available"},
		{NoteID: "4", Title: "Long", Similarity: 0.13, Snippet: strings.Repeat("é", 150) + "..."},
	}

	if len(result.Sources) != len(want) {
		t.Fatalf("Sources = %d, want %d", len(result.Sources), len(want))
	}
	for i := range want {
		if result.Sources[i] != want[i] {
			t.Errorf("Sources[%d] = %+v, want %+v", i, result.Sources[i], want[i])
		}
	}
}
