package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const metricExportInterval = 30 * time.Second

// InitMeter installs a global meter provider that periodically pushes to an OTLP gRPC endpoint.
// An empty endpoint leaves the global no-op provider in place. Call it before InitMetrics.
func InitMeter(ctx context.Context, serviceName, version, endpoint string) (ShutdownFunc, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := newResource(ctx, serviceName, version)
	if err != nil {
		return nil, err
	}

	mp := newMeterProvider(res, sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(metricExportInterval),
	))
	otel.SetMeterProvider(mp)

	slog.Info("OpenTelemetry meter initialized", "service", serviceName, "endpoint", endpoint)

	return mp.Shutdown, nil
}

func newMeterProvider(res *resource.Resource, reader sdkmetric.Reader) *sdkmetric.MeterProvider {
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
}
