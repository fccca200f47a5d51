// Package observability sets up tracing and holds the Prometheus collectors of
// the chat client.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"google.golang.org/grpc/credentials"

	"github.com/tbourn/go-campus-chat/internal/config"
	"github.com/tbourn/go-campus-chat/internal/domain"
)

// Test seams.
var (
	newOTLPClient = otlptracegrpc.NewClient

	newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		return otlptrace.New(ctx, client)
	}

	newServiceResourceFn = func(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
		return resource.New(
			ctx,
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(version),
			),
		)
	}
)

// SetupOTel configures OpenTelemetry tracing and returns a shutdown function.
// Globals are only replaced once every part was built.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, version string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}

	exp, err := newOTLPExporterFn(ctx, newOTLPClient(opts...))
	if err != nil {
		return nil, err
	}
	res, err := newServiceResourceFn(ctx, cfg.ServiceName, version)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// Op is one traced and counted chat client operation.
type Op struct {
	name string
	span trace.Span
}

// Start opens a span named component/name.
func Start(ctx context.Context, component, name string, attrs ...attribute.KeyValue) (context.Context, *Op) {
	ctx, span := otel.Tracer(component).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Op{name: name, span: span}
}

// End records err on the span, counts the call by result kind and ends the
// span. Expected rejections (validation, rate limits) do not mark the span as
// failed.
func (o *Op) End(err error) {
	result := "ok"
	if err != nil {
		kind := domain.KindOf(err)
		result = kind.String()
		o.span.SetAttributes(attribute.String("error.kind", result))
		switch kind {
		case domain.KindValidation, domain.KindRateLimited, domain.KindNotFound:
		default:
			o.span.RecordError(err)
			o.span.SetStatus(codes.Error, err.Error())
		}
	}
	ClientCalls.WithLabelValues(o.name, result).Inc()
	o.span.End()
}
