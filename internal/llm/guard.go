package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"thinkbox/internal/contextutil"
)

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyResponse is returned when a backend answers with blank text.
var ErrEmptyResponse = errors.New("generation backend returned an empty response")

var tracer = otel.Tracer("thinkbox/llm")

// GuardConfig configures a Guard.
type GuardConfig struct {
	// Name labels the backend in logs, spans and the breaker.
	Name string
	// Timeout bounds a single call, including the rate-limit wait. Zero disables it.
	Timeout time.Duration
	// RPM caps requests per minute. Zero or less disables limiting.
	RPM int
}

// Guard wraps a Generator with a timeout, a rate limiter, a circuit breaker and a span per call.
// Image descriptions share the same limiter and breaker.
type Guard struct {
	next    Generator
	name    string
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuard wraps next.
func NewGuard(next Generator, cfg GuardConfig) *Guard {
	name := cfg.Name
	if name == "" {
		name = "llm"
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPM > 0 {
		burst := cfg.RPM / 10
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RPM)), burst)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("generation circuit breaker changed state",
				slog.String("backend", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Guard{
		next:    next,
		name:    name,
		timeout: cfg.Timeout,
		limiter: limiter,
		breaker: breaker,
	}
}

// ImageDescriber turns an image into text.
type ImageDescriber interface {
	DescribeImage(ctx context.Context, data []byte, mimeType string) (string, error)
}

// ErrImagesUnsupported is returned by DescribeImage when the wrapped backend cannot read images.
var ErrImagesUnsupported = errors.New("generation backend does not support images")

// Generate calls the wrapped backend. Blank replies count as failures.
func (g *Guard) Generate(ctx context.Context, prompt string) (string, error) {
	return g.do(ctx, "llm.generate", []attribute.KeyValue{
		attribute.Int("llm.prompt_chars", len(prompt)),
	}, func(ctx context.Context) (string, error) {
		return g.next.Generate(ctx, prompt)
	})
}

// SupportsImages reports whether the wrapped backend implements ImageDescriber.
func (g *Guard) SupportsImages() bool {
	_, ok := g.next.(ImageDescriber)
	return ok
}

// DescribeImage calls the wrapped backend's DescribeImage under the same timeout,
// rate limit and breaker as Generate.
func (g *Guard) DescribeImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	images, ok := g.next.(ImageDescriber)
	if !ok {
		return "", ErrImagesUnsupported
	}
	return g.do(ctx, "llm.describe_image", []attribute.KeyValue{
		attribute.Int("llm.image_bytes", len(data)),
		attribute.String("llm.mime_type", mimeType),
	}, func(ctx context.Context) (string, error) {
		return images.DescribeImage(ctx, data, mimeType)
	})
}

func (g *Guard) do(ctx context.Context, spanName string, attrs []attribute.KeyValue, call func(context.Context) (string, error)) (string, error) {
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(
		append([]attribute.KeyValue{attribute.String("llm.backend", g.name)}, attrs...)...,
	))
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("llm.rate_limited", true))
		return "", g.fail(ctx, span, fmt.Errorf("rate limit wait: %w", err))
	}

	start := time.Now()
	result, err := g.breaker.Execute(func() (interface{}, error) {
		text, err := call(ctx)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyResponse
		}
		return text, nil
	})
	span.SetAttributes(attribute.Int64("llm.duration_ms", time.Since(start).Milliseconds()))

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("llm.circuit_open", true))
		}
		return "", g.fail(ctx, span, fmt.Errorf("%s: %w", g.name, err))
	}

	text := result.(string)
	span.SetAttributes(attribute.Int("llm.reply_chars", len(text)))
	return text, nil
}

// State reports the breaker state: "closed", "half-open" or "open".
func (g *Guard) State() string {
	return g.breaker.State().String()
}

// Name returns the backend label.
func (g *Guard) Name() string {
	return g.name
}

func (g *Guard) fail(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "generation call failed",
		slog.String("backend", g.name),
		slog.String("error", err.Error()),
	)
	return err
}
