package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	APIPort     string
	DBPath      string
	LogLevel    slog.Level
	LogFormat   string
	CORSOrigins []string

	// FingerprintDim is the fixed length of every note fingerprint.
	FingerprintDim int

	LLMProvider       string
	GeminiAPIKey      string
	GeminiModel       string
	LLMBaseURL        string
	LLMAPIKey         string
	LLMModelName      string
	GenerationTimeout time.Duration
	GenerationRPM     int

	QdrantURL        string
	QdrantCollection string

	OTLPEndpoint string

	Ranking Ranking
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates the rest.
// If a .env file exists in the current directory or one of its parents, it is loaded first;
// environment variables already set take precedence over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		APIPort:          getEnv("API_PORT", "8000"),
		DBPath:           getEnv("DB_PATH", "./data/thinkbox.db"),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:5174,http://localhost:3000")),
		LLMProvider:      strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMBaseURL:       getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMAPIKey:        getEnv("LLM_API_KEY", "dummy-key"),
		LLMModelName:     getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		QdrantURL:        getEnv("QDRANT_URL", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "notes"),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Ranking:          DefaultRanking(),
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	cfg.FingerprintDim, err = getPositiveInt("FINGERPRINT_DIM", 384)
	if err != nil {
		return nil, err
	}
	cfg.GenerationRPM, err = getPositiveInt("GENERATION_RPM", 10)
	if err != nil {
		return nil, err
	}

	timeout, err := time.ParseDuration(getEnv("GENERATION_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("GENERATION_TIMEOUT must be a valid duration: %w", err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("GENERATION_TIMEOUT must be greater than 0")
	}
	cfg.GenerationTimeout = timeout

	switch cfg.LLMProvider {
	case "gemini", "openai":
	default:
		return nil, fmt.Errorf("LLM_PROVIDER must be gemini or openai, got %q", cfg.LLMProvider)
	}

	if path := getEnv("RANKING_CONFIG", ""); path != "" {
		ranking, err := LoadRanking(path)
		if err != nil {
			return nil, err
		}
		cfg.Ranking = ranking
	}

	// Create ./data directory if it doesn't exist
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getPositiveInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return value, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}
	return level, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GenerationConfigured reports whether the selected generation backend has the credentials it needs.
// Without them the service still runs and chat answers degrade.
func (c *Config) GenerationConfigured() bool {
	return c.LLMProvider != "gemini" || c.GeminiAPIKey != ""
}
