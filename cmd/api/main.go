package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"thinkbox/internal/config"
	"thinkbox/internal/contextutil"
	"thinkbox/internal/embedding"
	"thinkbox/internal/extract"
	"thinkbox/internal/handlers"
	"thinkbox/internal/http"
	"thinkbox/internal/indexer"
	"thinkbox/internal/llm"
	"thinkbox/internal/rag"
	"thinkbox/internal/service"
	"thinkbox/internal/storage"
	"thinkbox/internal/telemetry"
	"thinkbox/internal/vectorstore"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API stores personal notes and answers questions about them.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Thinkbox API
//   description: |
//     Personal knowledge base API. Notes are fingerprinted on write, ranked per query
//     by fingerprint similarity and keyword matches, and used as context for chat answers.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
//   - multipart/form-data
// produces:
//   - application/json

const (
	serviceName    = "thinkbox"
	serviceVersion = "1.0.0"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, serviceVersion, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Error("Failed to flush traces", "error", err)
		}
	}()

	shutdownMeter, err := telemetry.InitMeter(ctx, serviceName, serviceVersion, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize meter: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMeter(shutdownCtx); err != nil {
			slog.Error("Failed to flush metrics", "error", err)
		}
	}()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	noteRepo := storage.NewNoteRepo(db, cfg.FingerprintDim)
	vectorizer := embedding.NewHashVectorizer(cfg.FingerprintDim)

	// The vector index is optional; without it fingerprints are compared in memory.
	var (
		vectorStore vectorstore.VectorStore
		vectorIndex handlers.CollectionInspector
	)
	if cfg.QdrantURL != "" {
		qdrantStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
		if err != nil {
			log.Fatalf("Failed to create Qdrant client: %v", err)
		}
		if _, err := qdrantStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.FingerprintDim); err != nil {
			log.Fatalf("Failed to ensure Qdrant collection: %v", err)
		}
		slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.FingerprintDim)
		vectorStore = qdrantStore
		vectorIndex = qdrantStore
	}

	// Create the generation backend behind a rate limiter and circuit breaker.
	// Without credentials the interfaces stay nil and answers degrade.
	var (
		generator rag.Generator
		breaker   handlers.BreakerState
		images    extract.ImageTranscriber
	)
	if cfg.GenerationConfigured() {
		var backend llm.Generator
		switch cfg.LLMProvider {
		case "gemini":
			gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				log.Fatalf("Failed to create Gemini client: %v", err)
			}
			defer func() {
				_ = gemini.Close()
			}()
			backend = gemini
			slog.Debug("LLM configuration", "provider", "gemini", "model", cfg.GeminiModel)
		default:
			backend = llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)
			slog.Debug("LLM configuration", "provider", "openai", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
		}
		guard := llm.NewGuard(backend, llm.GuardConfig{
			Name:    cfg.LLMProvider,
			Timeout: cfg.GenerationTimeout,
			RPM:     cfg.GenerationRPM,
		})
		generator = guard
		breaker = guard
		if guard.SupportsImages() {
			images = guard
		}
	} else {
		slog.Warn("Generation backend not configured, chat answers will be degraded", "provider", cfg.LLMProvider)
	}

	extractor := extract.NewExtractor(images)
	noteService := service.NewNoteService(noteRepo, vectorizer, extractor, vectorStore, cfg.QdrantCollection)

	ranker := rag.NewRanker(vectorizer, cfg.Ranking)
	synthesizer := rag.NewSynthesizer(generator, cfg.Ranking, cfg.GenerationTimeout)
	engine := rag.NewEngine(noteRepo, ranker, synthesizer, vectorStore, cfg.QdrantCollection, metrics)
	slog.Info("RAG engine initialized", "dimension", cfg.FingerprintDim, "provider", cfg.LLMProvider)

	reindexer := indexer.NewReindexer(noteRepo, vectorizer, vectorStore, cfg.QdrantCollection)

	router := http.NewRouter(&http.Deps{
		Engine:         engine,
		NoteService:    noteService,
		Backfiller:     reindexer,
		DB:             db,
		Generator:      breaker,
		VectorIndex:    vectorIndex,
		CollectionName: cfg.QdrantCollection,
		Metrics:        metrics,
		CORSOrigins:    cfg.CORSOrigins,
	})

	// Backfill missing or stale fingerprints in background after router is ready
	go func() {
		backfillCtx := contextutil.WithLogger(ctx, logger.With("component", "backfill"))
		slog.Info("Starting fingerprint backfill")
		if _, err := reindexer.Run(backfillCtx, false); err != nil {
			slog.Error("Fingerprint backfill completed with errors", "error", err)
		}
	}()

	addr := ":" + cfg.APIPort
	server := &nethttp.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", addr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			slog.Error("API server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}
}
