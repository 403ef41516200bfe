// Package telemetry wires OpenTelemetry tracing around focus transitions
// (StartRegulatorCall is also provided, but the regulator does not call
// it, so no regulator spans are emitted), grounded in the pack's
// Jeeves-Cluster-Organization-jeeves-core OTel setup. When no OTLP
// endpoint is configured, the SDK's default no-op tracer is used so the
// rest of the daemon pays no cost for tracing it never exports.
package telemetry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

func attrInt(key string, v int) attribute.KeyValue   { return attribute.Int(key, v) }
func attrBool(key string, v bool) attribute.KeyValue { return attribute.Bool(key, v) }
func attrString(key, v string) attribute.KeyValue    { return attribute.String(key, v) }

const tracerName = "github.com/xfeldman/qips"

// Setup configures the global TracerProvider. If endpoint is empty, the
// global provider is left at its default no-op implementation and the
// returned shutdown func is a no-op.
func Setup(ctx context.Context, endpoint string) (shutdown func(context.Context) error, err error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName("qipsd")))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the package-wide tracer, resolved lazily against
// whatever TracerProvider Setup installed (or the default no-op one).
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartFocusTransition opens a span for one run of the seven-step focus
// transition protocol (spec.md §4.4), tagged with the old and new slot ids.
func StartFocusTransition(ctx context.Context, oldSlot, newSlot int, teardown bool) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "focus.switch",
		trace.WithAttributes(
			attrString("switch.correlation_id", uuid.NewString()),
			attrInt("switch.old_slot", oldSlot),
			attrInt("switch.new_slot", newSlot),
			attrBool("switch.teardown", teardown),
		),
	)
}

// StartRegulatorCall opens a span around one regulator round-trip.
func StartRegulatorCall(ctx context.Context, slotID int, execute string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "regulator.call",
		trace.WithAttributes(
			attrInt("regulator.slot", slotID),
			attrString("regulator.execute", execute),
		),
	)
}
