package observability

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_Disabled(t *testing.T) {
	for _, exporter := range []string{"", "none", " NONE "} {
		tracer, shutdown, err := Setup(context.Background(), zerolog.New(io.Discard), Config{Exporter: exporter})
		require.NoError(t, err)
		require.NotNil(t, tracer)

		_, span := tracer.Start(context.Background(), "x")
		assert.False(t, span.SpanContext().IsValid())
		span.End()
		assert.NoError(t, shutdown(context.Background()))
	}
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, _, err := Setup(context.Background(), zerolog.New(io.Discard), Config{Exporter: "jaeger"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jaeger")
}

func TestSetup_Stdout(t *testing.T) {
	tracer, shutdown, err := Setup(context.Background(), zerolog.New(io.Discard), Config{Exporter: "stdout", SampleRatio: 1})
	require.NoError(t, err)

	_, span := tracer.Start(context.Background(), "pipeline.stage")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, shutdown(context.Background()))
}

func TestBuildExporter_StdoutWrites(t *testing.T) {
	var buf bytes.Buffer
	exp, err := buildExporter(context.Background(), ExporterStdout, Config{}, &buf)
	require.NoError(t, err)
	require.NoError(t, exp.Shutdown(context.Background()))
}

func TestSampleRatio(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 1},
		{-1, 1},
		{0.25, 0.25},
		{1, 1},
		{7, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SampleRatio(tt.in), "ratio %v", tt.in)
	}
}

func TestParseHeaders(t *testing.T) {
	assert.Nil(t, ParseHeaders(""))
	assert.Nil(t, ParseHeaders("junk,=x,y="))
	assert.Equal(t, map[string]string{"api-key": "abc", "x": "1"}, ParseHeaders(" api-key = abc ,x=1,broken"))
}
