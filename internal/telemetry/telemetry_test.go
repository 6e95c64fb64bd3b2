package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourplan/internal/config"
	"tourplan/internal/opt"
)

func TestInitNone(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "x", TraceExporter: "none"}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "x", TraceExporter: "zipkin"}, nil)
	require.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInitStdoutExportsSearchSpan(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "tourplan-test", TraceExporter: "stdout"}, &buf)
	require.NoError(t, err)

	m := opt.Matrix{{0, 1, 2}, {1, 0, 1}, {2, 1, 0}}
	_, err = opt.Search(context.Background(), m, opt.Tour{0, 1, 2}, opt.Options{Iterations: 5, Seed: 3})
	require.NoError(t, err)

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "opt.Search")
	assert.Contains(t, buf.String(), "tourplan-test")
}
