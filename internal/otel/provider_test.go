package otel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NotNil(t, p.MeterProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutSink(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "racecontrol"})
	require.Error(t, err)
}

func TestNew_WriterExportsMetrics(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:        true,
		ServiceName:    "racecontrol",
		ServiceVersion: "0.1.0",
		BatchTimeout:   time.Second,
		LogWriter:      &buf,
		MetricInterval: time.Hour,
	})
	require.NoError(t, err)
	require.True(t, p.Enabled())
	require.NotNil(t, p.LoggerProvider())

	frames, err := p.MeterProvider().Meter("test").Int64Counter("scheduler.frames")
	require.NoError(t, err)
	frames.Add(context.Background(), 3)

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, buf.String(), "scheduler.frames")
	assert.Contains(t, buf.String(), "racecontrol")

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EndpointOnlyHasNoMeters(t *testing.T) {
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "racecontrol",
		BatchTimeout: time.Second,
		Endpoint:     "127.0.0.1:4318",
		Insecure:     true,
	})
	require.NoError(t, err)

	assert.NotNil(t, p.LoggerProvider())
	assert.Nil(t, p.meterProvider)
	assert.NoError(t, p.Shutdown(context.Background()))
}
