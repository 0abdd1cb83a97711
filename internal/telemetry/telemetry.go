package telemetry

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	// Global tracer for the application
	Tracer trace.Tracer

	// Global meter for custom metrics
	Meter metric.Meter

	// Custom metrics
	MessagesDispatched  metric.Int64Counter
	DetoursTaken        metric.Int64Counter
	OffersDrafted       metric.Int64Counter
	HilTasksOpened      metric.Int64UpDownCounter
	BookingsConfirmed   metric.Int64Counter
	DispatchLatency     metric.Float64Histogram
	StageExecutionTime  metric.Float64Histogram
)

// The instruments are created eagerly against the global (noop) providers so
// call sites can record unconditionally; InitTelemetry swaps in the real ones.
func init() {
	Tracer = otel.Tracer("venueflow")
	Meter = otel.Meter("venueflow")
	if err := initMetrics(); err != nil {
		log.Printf("[Telemetry] Failed to create metric instruments: %v", err)
	}
}

// InitTelemetry initializes OpenTelemetry tracing and metrics
func InitTelemetry(ctx context.Context, serviceName, otelEndpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
			attribute.String("environment", "development"),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	Tracer = otel.Tracer(serviceName)
	Meter = otel.Meter(serviceName)

	if err := initMetrics(); err != nil {
		return nil, err
	}

	log.Printf("[Telemetry] Initialized with endpoint %s", otelEndpoint)

	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return traceProvider.Shutdown(shutdownCtx)
	}, nil
}

// initMetrics creates all custom metrics
func initMetrics() error {
	var err error

	MessagesDispatched, err = Meter.Int64Counter(
		"venueflow.messages.dispatched",
		metric.WithDescription("Number of client messages run through the dispatch loop"),
	)
	if err != nil {
		return err
	}

	DetoursTaken, err = Meter.Int64Counter(
		"venueflow.routing.detours",
		metric.WithDescription("Number of backward stage transitions taken"),
	)
	if err != nil {
		return err
	}

	OffersDrafted, err = Meter.Int64Counter(
		"venueflow.offers.drafted",
		metric.WithDescription("Number of offers synthesized"),
	)
	if err != nil {
		return err
	}

	HilTasksOpened, err = Meter.Int64UpDownCounter(
		"venueflow.hil.open",
		metric.WithDescription("Drafts currently parked for manager approval"),
	)
	if err != nil {
		return err
	}

	BookingsConfirmed, err = Meter.Int64Counter(
		"venueflow.bookings.confirmed",
		metric.WithDescription("Bookings that reached signed contract and paid deposit"),
	)
	if err != nil {
		return err
	}

	DispatchLatency, err = Meter.Float64Histogram(
		"venueflow.dispatch.latency",
		metric.WithDescription("Message dispatch latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	StageExecutionTime, err = Meter.Float64Histogram(
		"venueflow.stage.execution_time",
		metric.WithDescription("Stage handler execution time in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}
