package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitInMemory(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	_, shutdown := InitInMemory(exp)
	defer shutdown(context.Background())

	_, span := otel.Tracer("test").Start(context.Background(), "relight")
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "relight", spans[0].Name)
}

func TestEndpointOrDefault(t *testing.T) {
	assert.Equal(t, "localhost:4318", endpointOrDefault(""))
	assert.Equal(t, "collector:4318", endpointOrDefault("collector:4318"))
}
