package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNormalizeTraceMode(t *testing.T) {
	testCases := []struct {
		input string
		want  string
	}{
		{input: "sampled", want: traceModeSampled},
		{input: " Detailed ", want: traceModeDetailed},
		{input: "off", want: traceModeOff},
		{input: "", want: traceModeOff},
		{input: "always", want: traceModeOff},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeTraceMode(tc.input))
		})
	}
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-0.5))
	assert.Equal(t, 0.25, clampRatio(0.25))
	assert.Equal(t, 1.0, clampRatio(3))
}

func TestSetupTracing_LogsFinishedSpans(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	runtime, err := SetupTracing(TracingConfig{TraceMode: "detailed", Logger: zap.New(core)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = runtime.Shutdown(context.Background()) })

	_, span := Tracer().Start(context.Background(), "gateway.fetch_resource")
	span.SetAttributes(attribute.String("github.path", "orgs/acme/repos"))
	span.End()

	entries := logs.FilterMessage("span finished").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "gateway.fetch_resource", fields["span"])
	assert.Equal(t, "orgs/acme/repos", fields["github.path"])
}

func TestSetupTracing_OffRecordsNothing(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	runtime, err := SetupTracing(TracingConfig{TraceMode: "off", Logger: zap.New(core)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = runtime.Shutdown(context.Background()) })

	_, span := Tracer().Start(context.Background(), "usecase.collect_repo")
	assert.False(t, span.IsRecording())
	span.End()

	assert.Zero(t, logs.Len())
}
