package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSamplerRatio(t *testing.T) {
	t.Parallel()

	params := sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		Name:          "Pipeline.Analyze",
	}

	assert.Equal(t, sdktrace.RecordAndSample, Sampler(1).ShouldSample(params).Decision)
	assert.Equal(t, sdktrace.RecordAndSample, Sampler(2).ShouldSample(params).Decision)
	assert.Equal(t, sdktrace.Drop, Sampler(0).ShouldSample(params).Decision)
	assert.Contains(t, Sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestResourceCarriesPipelineAttributes(t *testing.T) {
	t.Parallel()

	res := Resource(attribute.Int("deepfake.seq_len", 10))
	set := res.Set()

	name, ok := set.Value("service.name")
	require.True(t, ok)
	assert.Equal(t, serviceName, name.AsString())

	seqLen, ok := set.Value("deepfake.seq_len")
	require.True(t, ok)
	assert.Equal(t, int64(10), seqLen.AsInt64())
}

func TestInitTracerRequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := InitTracer(context.Background(), Options{})
	assert.ErrorContains(t, err, "empty otlp endpoint")
}

func TestInitTracerInstallsProvider(t *testing.T) {
	tp, err := InitTracer(context.Background(), Options{
		Endpoint:    "http://127.0.0.1:4318/v1/traces",
		SampleRatio: 1,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, tp.Shutdown(ctx))
}
