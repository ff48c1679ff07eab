package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"thinkbox/internal/handlers"
	"thinkbox/internal/rag"
	"thinkbox/internal/service"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Engine      rag.Engine
	NoteService service.NoteService
	Backfiller  handlers.Backfiller

	// Health check dependencies. Generator and VectorIndex may be nil.
	DB             handlers.Pinger
	Generator      handlers.BreakerState
	VectorIndex    handlers.CollectionInspector
	CollectionName string

	// Metrics may be nil.
	Metrics     RequestRecorder
	CORSOrigins []string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS(deps.CORSOrigins))
	r.Use(Telemetry(deps.Metrics))

	chatHandler := handlers.NewChatHandler(deps.Engine)
	insightsHandler := handlers.NewInsightsHandler(deps.Engine)
	searchHandler := handlers.NewSearchHandler(deps.Engine, deps.NoteService)
	notesHandler := handlers.NewNotesHandler(deps.NoteService, deps.Engine)
	noteViewHandler := handlers.NewNoteViewHandler(deps.NoteService)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Generator, deps.VectorIndex, deps.CollectionName)
	indexHandler := handlers.NewIndexHandler(deps.Backfiller)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)
		r.Post("/index", indexHandler.Trigger)
		r.Get("/index", indexHandler.Status)

		r.Group(func(r chi.Router) {
			r.Use(RequireOwner)

			r.Route("/ai", func(r chi.Router) {
				r.Method(http.MethodPost, "/chat", chatHandler)
				r.Method(http.MethodPost, "/insights/{noteId}", insightsHandler)
			})

			r.Get("/search", searchHandler.Semantic)
			r.Post("/search/text", searchHandler.Text)

			r.Route("/notes", func(r chi.Router) {
				r.Get("/", notesHandler.List)
				r.Post("/", notesHandler.Create)
				r.Get("/tags/all", notesHandler.Tags)
				r.Get("/{id}", notesHandler.Get)
				r.Put("/{id}", notesHandler.Update)
				r.Delete("/{id}", notesHandler.Delete)
				r.Get("/{id}/related", notesHandler.Related)
			})
		})
	})

	r.With(RequireOwner).Method(http.MethodGet, "/notes/{id}", noteViewHandler)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"name":"thinkbox","status":"ok"}`))
	})

	return r
}
