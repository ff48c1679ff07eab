package rag_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"thinkbox/internal/config"
	"thinkbox/internal/rag"
	"thinkbox/internal/rag/mocks"
	"thinkbox/internal/service"
	"thinkbox/internal/storage"
	"thinkbox/internal/vectorstore"
	vsmocks "thinkbox/internal/vectorstore/mocks"
)

type engineFixture struct {
	finder    *mocks.MockNoteFinder
	generator *mocks.MockGenerator
	store     *vsmocks.MockVectorStore
	recorder  *fakeRecorder
	engine    rag.Engine
}

func newEngineFixture(t *testing.T, withStore bool) *engineFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &engineFixture{
		finder:    mocks.NewMockNoteFinder(ctrl),
		generator: mocks.NewMockGenerator(ctrl),
		recorder:  &fakeRecorder{},
	}

	weights := config.DefaultRanking()
	var store vectorstore.VectorStore
	if withStore {
		f.store = vsmocks.NewMockVectorStore(ctrl)
		store = f.store
	}

	f.engine = rag.NewEngine(
		f.finder,
		rag.NewRanker(testVectorizer, weights),
		rag.NewSynthesizer(f.generator, weights, time.Second),
		store,
		"notes",
		f.recorder,
	)
	return f
}

func isValidation(field string) func(error) bool {
	return func(err error) bool {
		var validationErr *service.ValidationError
		return errors.As(err, &validationErr) && validationErr.Field == field
	}
}

func TestEngine_Answer(t *testing.T) {
	tests := []struct {
		name         string
		req          rag.AskRequest
		mockSetup    func(f *engineFixture)
		wantErr      bool
		checkErrType func(error) bool
		check        func(t *testing.T, res rag.AnswerResult)
	}{
		{
			name: "paris example",
			req:  rag.AskRequest{Message: "When did I visit Paris?", OwnerID: "alice"},
			mockSetup: func(f *engineFixture) {
				f.finder.EXPECT().FindByOwner(gomock.Any(), "alice", gomock.Nil()).Return(parisNotes(), nil)
				f.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("In 2019.", nil)
			},
			check: func(t *testing.T, res rag.AnswerResult) {
				if res.Answer != "In 2019." || res.Strategy != rag.StrategyInformative || res.Degraded {
					t.Errorf("result = %+v", res)
				}
				if len(res.Sources) != 2 || res.Sources[0].NoteID != "a" || res.Sources[1].NoteID != "b" {
					t.Fatalf("Sources = %+v, want a then b", res.Sources)
				}
				if !strings.HasPrefix(res.Sources[0].Snippet, "Visited the Louvre in 2019") {
					t.Errorf("Snippet = %q", res.Sources[0].Snippet)
				}
			},
		},
		{
			name: "selected notes are passed to the store",
			req:  rag.AskRequest{Message: "paris", OwnerID: "alice", NoteIDs: []string{"a"}},
			mockSetup: func(f *engineFixture) {
				f.finder.EXPECT().FindByOwner(gomock.Any(), "alice", []string{"a"}).Return(parisNotes()[1:], nil)
				f.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("answer", nil)
			},
			check: func(t *testing.T, res rag.AnswerResult) {
				if len(res.Sources) != 1 || res.Sources[0].NoteID != "a" {
					t.Errorf("Sources = %+v", res.Sources)
				}
			},
		},
		{
			name: "backend failure degrades",
			req:  rag.AskRequest{Message: "When did I visit Paris?", OwnerID: "alice"},
			mockSetup: func(f *engineFixture) {
				f.finder.EXPECT().FindByOwner(gomock.Any(), "alice", gomock.Nil()).Return(parisNotes(), nil)
				f.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", errors.New("503"))
			},
			check: func(t *testing.T, res rag.AnswerResult) {
				if !res.Degraded || !strings.Contains(res.Answer, `"Paris Trip"`) {
					t.Errorf("result = %+v", res)
				}
				if len(res.Sources) != 2 {
					t.Errorf("Sources = %d, want 2", len(res.Sources))
				}
			},
		},
		{
			name: "no notes and backend failure apologizes",
			req:  rag.AskRequest{Message: "volcanoes", OwnerID: "alice"},
			mockSetup: func(f *engineFixture) {
				f.finder.EXPECT().FindByOwner(gomock.Any(), "alice", gomock.Nil()).Return([]storage.Note{}, nil)
				f.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", context.DeadlineExceeded)
			},
			check: func(t *testing.T, res rag.AnswerResult) {
				if res.Strategy != rag.StrategyNoContext || !strings.Contains(res.Answer, `"volcanoes"`) {
					t.Errorf("result = %+v", res)
				}
				if res.Sources == nil || len(res.Sources) != 0 {
					t.Errorf("Sources = %#v, want empty non-nil list", res.Sources)
				}
			},
		},
		{
			name:         "empty message",
			req:          rag.AskRequest{Message: "  ", OwnerID: "alice"},
			mockSetup:    func(f *engineFixture) {},
			wantErr:      true,
			checkErrType: isValidation("query"),
		},
		{
			name:         "missing owner",
			req:          rag.AskRequest{Message: "hello"},
			mockSetup:    func(f *engineFixture) {},
			wantErr:      true,
			checkErrType: isValidation("owner"),
		},
		{
			name: "store error",
			req:  rag.AskRequest{Message: "paris", OwnerID: "alice"},
			mockSetup: func(f *engineFixture) {
				f.finder.EXPECT().FindByOwner(gomock.Any(), "alice", gomock.Nil()).Return(nil, errors.New("disk I/O error"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, false)
			tt.mockSetup(f)

			res, err := f.engine.Answer(context.Background(), tt.req)

			if tt.wantErr {
				if err == nil {
					t.Fatal("Answer() expected error, got nil")
				}
				if tt.checkErrType != nil && !tt.checkErrType(err) {
					t.Errorf("Answer() error type mismatch: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Answer() unexpected error: %v", err)
			}
			tt.check(t, res)

			if len(f.recorder.answers) != 1 {
				t.Errorf("recorded %d answers, want 1", len(f.recorder.answers))
			}
		})
	}
}

func TestEngine_Rank_RecordsOutcome(t *testing.T) {
	f := newEngineFixture(t, false)
	notes := []storage.Note{{ID: "1", Title: "Hawaii", Content: "saw a volcano"}}
	f.finder.EXPECT().FindByOwner(gomock.Any(), "alice", gomock.Nil()).Return(notes, nil)

	got, err := f.engine.Rank(context.Background(), rag.RankRequest{Query: "volcano", OwnerID: "alice"})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(got) != 1 || got[0].Fallback {
		t.Fatalf("Rank() = %+v, want one scored note", got)
	}
	if want := []rankCall{{candidates: 1, ranked: 1}}; !reflect.DeepEqual(f.recorder.ranks, want) {
		t.Errorf("recorded ranks = %+v, want %+v", f.recorder.ranks, want)
	}
}

func TestEngine_Search(t *testing.T) {
	f := newEngineFixture(t, false)

	var notes []storage.Note
	for i := 0; i < 15; i++ {
		notes = append(notes, storage.Note{ID: string(rune('a' + i)), Title: "standup meeting"})
	}
	notes = append(notes, storage.Note{ID: "zz", Title: "unrelated"})
	f.finder.EXPECT().FindByOwner(gomock.Any(), "alice", gomock.Nil()).Return(notes, nil).Times(2)

	got, err := f.engine.Search(context.Background(), rag.RankRequest{Query: "standup", OwnerID: "alice"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != config.DefaultRanking().SearchLimit {
		t.Errorf("Search() returned %d notes, want the default search limit", len(got))
	}

	// no substring fallback for plain search
	got, err = f.engine.Search(context.Background(), rag.RankRequest{Query: "nothing matches", OwnerID: "alice", Limit: 3})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Search() = %v, want empty", scoredIDs(got))
	}
}

func TestEngine_Insight(t *testing.T) {
	tests := []struct {
		name         string
		req          rag.InsightRequest
		mockSetup    func(f *engineFixture)
		wantErr      error
		checkErrType func(error) bool
		check        func(t *testing.T, res rag.InsightResult)
	}{
		{
			name: "summarize unsaved content",
			req:  rag.InsightRequest{OwnerID: "alice", NoteID: rag.NewNoteID, Type: rag.InsightSummarize, Content: "draft body"},
			mockSetup: func(f *engineFixture) {
				f.generator.EXPECT().
					Generate(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, p string) (string, error) {
						if !strings.Contains(p, "Title: New Note\nContent: draft body") {
							t.Errorf("prompt = %q", p)
						}
						return "summary", nil
					})
			},
			check: func(t *testing.T, res rag.InsightResult) {
				if res.Insight != "summary" || res.NoteID != rag.NewNoteID || res.Type != rag.InsightSummarize {
					t.Errorf("result = %+v", res)
				}
			},
		},
		{
			name: "flashcards of a stored note",
			req:  rag.InsightRequest{OwnerID: "alice", NoteID: "n1", Type: rag.InsightFlashcards},
			mockSetup: func(f *engineFixture) {
				f.finder.EXPECT().GetByID(gomock.Any(), "alice", "n1").
					Return(&storage.Note{ID: "n1", Title: "Go", ExtractedText: "goroutines"}, nil)
				f.generator.EXPECT().
					Generate(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, p string) (string, error) {
						if !strings.Contains(p, "Q: [Question]") || !strings.Contains(p, "Content: goroutines") {
							t.Errorf("prompt = %q", p)
						}
						return "Q: a\nA: b", nil
					})
			},
			check: func(t *testing.T, res rag.InsightResult) {
				if res.Insight != "Q: a\nA: b" {
					t.Errorf("Insight = %q", res.Insight)
				}
			},
		},
		{
			name: "backend failure degrades",
			req:  rag.InsightRequest{OwnerID: "alice", NoteID: rag.NewNoteID, Type: rag.InsightSummarize, Title: "Only title"},
			mockSetup: func(f *engineFixture) {
				f.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", errors.New("down"))
			},
			check: func(t *testing.T, res rag.InsightResult) {
				if !res.Degraded || !strings.Contains(res.Insight, `"Only title"`) {
					t.Errorf("result = %+v", res)
				}
			},
		},
		{
			name:         "unsaved note without content",
			req:          rag.InsightRequest{OwnerID: "alice", NoteID: rag.NewNoteID, Type: rag.InsightSummarize},
			mockSetup:    func(f *engineFixture) {},
			checkErrType: isValidation("content"),
		},
		{
			name:         "unknown type",
			req:          rag.InsightRequest{OwnerID: "alice", NoteID: "n1", Type: "poem"},
			mockSetup:    func(f *engineFixture) {},
			checkErrType: isValidation("type"),
		},
		{
			name: "note not found",
			req:  rag.InsightRequest{OwnerID: "alice", NoteID: "nope", Type: rag.InsightSummarize},
			mockSetup: func(f *engineFixture) {
				f.finder.EXPECT().GetByID(gomock.Any(), "alice", "nope").Return(nil, storage.ErrNotFound)
			},
			wantErr: service.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, false)
			tt.mockSetup(f)

			res, err := f.engine.Insight(context.Background(), tt.req)

			if tt.wantErr != nil || tt.checkErrType != nil {
				if err == nil {
					t.Fatal("Insight() expected error, got nil")
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("Insight() error = %v, want %v", err, tt.wantErr)
				}
				if tt.checkErrType != nil && !tt.checkErrType(err) {
					t.Errorf("Insight() error type mismatch: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Insight() unexpected error: %v", err)
			}
			tt.check(t, res)
		})
	}
}

func TestEngine_Related_InMemory(t *testing.T) {
	f := newEngineFixture(t, false)

	target := storage.Note{ID: "t", Fingerprint: storage.Fingerprint{1, 0, 0}}
	notes := []storage.Note{
		target,
		{ID: "far", Fingerprint: storage.Fingerprint{0.2, 1, 0}},
		{ID: "bare"},
		{ID: "close", Fingerprint: storage.Fingerprint{1, 0.1, 0}},
		{ID: "opposite", Fingerprint: storage.Fingerprint{-1, 0, 0}},
	}
	f.finder.EXPECT().GetByID(gomock.Any(), "alice", "t").Return(&target, nil)
	f.finder.EXPECT().FindByOwner(gomock.Any(), "alice", gomock.Nil()).Return(notes, nil)

	got, err := f.engine.Related(context.Background(), "alice", "t", 5)
	if err != nil {
		t.Fatalf("Related() error = %v", err)
	}
	if ids := scoredIDs(got); !reflect.DeepEqual(ids, []string{"close", "far"}) {
		t.Errorf("Related() = %v, want [close far]", ids)
	}
}

func TestEngine_Related_WithoutFingerprint(t *testing.T) {
	f := newEngineFixture(t, true)
	f.finder.EXPECT().GetByID(gomock.Any(), "alice", "t").Return(&storage.Note{ID: "t"}, nil)

	got, err := f.engine.Related(context.Background(), "alice", "t", 5)
	if err != nil {
		t.Fatalf("Related() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Related() = %v, want empty", scoredIDs(got))
	}
}

func TestEngine_Related_VectorStore(t *testing.T) {
	f := newEngineFixture(t, true)

	target := storage.Note{ID: "t", Fingerprint: storage.Fingerprint{1, 0}}
	f.finder.EXPECT().GetByID(gomock.Any(), "alice", "t").Return(&target, nil)
	f.store.EXPECT().
		Search(gomock.Any(), "notes", []float32{1, 0}, 2, vectorstore.Filter{OwnerID: "alice", ExcludeIDs: []string{"t"}}).
		Return([]vectorstore.SearchResult{
			{PointID: "y", Score: 0.9},
			{PointID: "stale", Score: 0.8},
			{PointID: "x", Score: 0.7},
		}, nil)
	f.finder.EXPECT().FindByOwner(gomock.Any(), "alice", []string{"y", "stale", "x"}).
		Return([]storage.Note{{ID: "x"}, {ID: "y"}}, nil)

	got, err := f.engine.Related(context.Background(), "alice", "t", 2)
	if err != nil {
		t.Fatalf("Related() error = %v", err)
	}
	if ids := scoredIDs(got); !reflect.DeepEqual(ids, []string{"y", "x"}) {
		t.Errorf("Related() = %v, want [y x] in score order", ids)
	}
	if got[0].Similarity < 0.89 || got[0].Similarity > 0.91 {
		t.Errorf("Similarity = %v, want 0.9", got[0].Similarity)
	}
}

func TestEngine_Related_VectorStoreErrorFallsBack(t *testing.T) {
	f := newEngineFixture(t, true)

	target := storage.Note{ID: "t", Fingerprint: storage.Fingerprint{1, 0}}
	f.finder.EXPECT().GetByID(gomock.Any(), "alice", "t").Return(&target, nil)
	f.store.EXPECT().Search(gomock.Any(), "notes", gomock.Any(), 10, gomock.Any()).Return(nil, errors.New("unavailable"))
	f.finder.EXPECT().FindByOwner(gomock.Any(), "alice", gomock.Nil()).
		Return([]storage.Note{target, {ID: "other", Fingerprint: storage.Fingerprint{1, 1}}}, nil)

	got, err := f.engine.Related(context.Background(), "alice", "t", 0)
	if err != nil {
		t.Fatalf("Related() error = %v", err)
	}
	if ids := scoredIDs(got); !reflect.DeepEqual(ids, []string{"other"}) {
		t.Errorf("Related() = %v, want [other]", ids)
	}
}

func TestEngine_Related_NotFound(t *testing.T) {
	f := newEngineFixture(t, false)
	f.finder.EXPECT().GetByID(gomock.Any(), "alice", "nope").Return(nil, storage.ErrNotFound)

	_, err := f.engine.Related(context.Background(), "alice", "nope", 5)
	if !errors.Is(err, service.ErrNotFound) {
		t.Errorf("Related() error = %v, want ErrNotFound", err)
	}
}
