package tracing

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const serviceName = "deepfake-api"

type Options struct {
	// Endpoint is the OTLP/HTTP collector URL.
	Endpoint string
	// SampleRatio is the fraction of root analyses traced, in [0,1].
	SampleRatio float64
	// Attributes describe the loaded pipeline, e.g. model files and seq_len.
	Attributes []attribute.KeyValue
}

// Sampler traces the given fraction of new traces and follows the parent
// decision otherwise.
func Sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// Resource identifies this service plus the pipeline attributes.
func Resource(attrs ...attribute.KeyValue) *resource.Resource {
	kv := append([]attribute.KeyValue{semconv.ServiceNameKey.String(serviceName)}, attrs...)
	return resource.NewWithAttributes(semconv.SchemaURL, kv...)
}

// InitTracer installs a global tracer provider exporting over OTLP/HTTP.
// Callers must Shutdown the returned provider.
func InitTracer(ctx context.Context, opts Options) (*sdktrace.TracerProvider, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("empty otlp endpoint")
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(opts.Endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(Sampler(opts.SampleRatio)),
		sdktrace.WithResource(Resource(opts.Attributes...)),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}
