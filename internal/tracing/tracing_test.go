package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sampleTraceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestInitializeDisabled(t *testing.T) {
	shutdown, err := Initialize(Config{Enabled: false}, "test", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	ctx, span := StartStageSpan(context.Background(), "req-1", "market")
	defer span.End()
	assert.NotNil(t, ctx)
}

func TestParseTraceparent(t *testing.T) {
	traceID, spanID, flags, ok := ParseTraceparent(sampleTraceparent)
	require.True(t, ok)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", traceID)
	assert.Equal(t, "00f067aa0ba902b7", spanID)
	assert.Equal(t, byte(1), flags)

	for _, bad := range []string{"", "01-abc-def-01", "00-short-00f067aa0ba902b7-01", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-zz"} {
		_, _, _, ok := ParseTraceparent(bad)
		assert.False(t, ok, bad)
	}
}

func TestTraceparentRoundTrip(t *testing.T) {
	ctx := ContextWithTraceparent(context.Background(), sampleTraceparent)
	assert.Equal(t, sampleTraceparent, W3CTraceparent(ctx))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)
	InjectTraceparent(ctx, req)
	assert.Equal(t, sampleTraceparent, req.Header.Get("traceparent"))
}

func TestTraceparentFlagsAreTwoHexDigits(t *testing.T) {
	for _, flags := range []string{"00", "01"} {
		header := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-" + flags
		got := W3CTraceparent(ContextWithTraceparent(context.Background(), header))
		assert.Equal(t, header, got)
		_, _, _, ok := ParseTraceparent(got)
		assert.True(t, ok, got)
	}
}

func TestContextWithInvalidTraceparent(t *testing.T) {
	ctx := ContextWithTraceparent(context.Background(), "garbage")
	assert.Empty(t, W3CTraceparent(ctx))

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	InjectTraceparent(ctx, req)
	assert.Empty(t, req.Header.Get("traceparent"))
}
