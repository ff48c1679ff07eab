package telemetry

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"thinkbox/internal/rag"
)

// Metrics holds all application metrics.
type Metrics struct {
	RequestCounter  metric.Int64Counter
	RequestDuration metric.Float64Histogram
	RankRequests    metric.Int64Counter
	RankCandidates  metric.Int64Histogram
	RankedNotes     metric.Int64Histogram
	Answers         metric.Int64Counter
	AnswerSources   metric.Int64Histogram
}

// InitMetrics creates the instruments on the global meter provider.
func InitMetrics() (*Metrics, error) {
	return NewMetrics(otel.Meter("thinkbox"))
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	rankRequests, err := meter.Int64Counter(
		"rag.rank.requests",
		metric.WithDescription("Ranking requests, by whether the substring fallback was used"),
	)
	if err != nil {
		return nil, err
	}

	rankCandidates, err := meter.Int64Histogram(
		"rag.rank.candidates",
		metric.WithDescription("Notes considered per ranking request"),
	)
	if err != nil {
		return nil, err
	}

	rankedNotes, err := meter.Int64Histogram(
		"rag.rank.results",
		metric.WithDescription("Notes returned per ranking request"),
	)
	if err != nil {
		return nil, err
	}

	answers, err := meter.Int64Counter(
		"rag.answers.total",
		metric.WithDescription("Answers produced, by strategy and degradation"),
	)
	if err != nil {
		return nil, err
	}

	answerSources, err := meter.Int64Histogram(
		"rag.answer.sources",
		metric.WithDescription("Citations attached per answer"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		RankRequests:    rankRequests,
		RankCandidates:  rankCandidates,
		RankedNotes:     rankedNotes,
		Answers:         answers,
		AnswerSources:   answerSources,
	}, nil
}

// RecordRequest records HTTP request metrics.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.String("http.status", strconv.Itoa(status)),
	)
	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, seconds, attrs)
}

// RecordRank implements rag.Recorder.
func (m *Metrics) RecordRank(ctx context.Context, candidates, ranked int, fallback bool) {
	attrs := metric.WithAttributes(attribute.Bool("rag.fallback", fallback))
	m.RankRequests.Add(ctx, 1, attrs)
	m.RankCandidates.Record(ctx, int64(candidates))
	m.RankedNotes.Record(ctx, int64(ranked), attrs)
}

// RecordAnswer implements rag.Recorder.
func (m *Metrics) RecordAnswer(ctx context.Context, strategy rag.Strategy, degraded bool, sources int) {
	attrs := metric.WithAttributes(
		attribute.String("rag.strategy", string(strategy)),
		attribute.Bool("rag.degraded", degraded),
	)
	m.Answers.Add(ctx, 1, attrs)
	m.AnswerSources.Record(ctx, int64(sources), attrs)
}

var _ rag.Recorder = (*Metrics)(nil)
