package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	loggingpkg "github.com/drblury/routeflow/internal/runtime/logging"
)

func TestInitTracerExportsSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	buf := &bytes.Buffer{}
	shutdown, err := InitTracer("routeflow-test", buf, loggingpkg.NewNopServiceLogger())
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "combinedApi")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"combinedApi"`)
	assert.Contains(t, buf.String(), "routeflow-test")
}
