package interceptors

import (
	"context"
	"net/http"

	"github.com/haryshwa05/pharmasynapse/internal/tracing"
)

type requestIDKey struct{}

// WithRequestID attaches the analysis request ID to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request ID carried by ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestHTTPRoundTripper adds request correlation headers to outgoing HTTP requests
type RequestHTTPRoundTripper struct {
	base http.RoundTripper
}

// NewRequestHTTPRoundTripper creates a new HTTP interceptor that adds the
// request ID and W3C traceparent headers
func NewRequestHTTPRoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RequestHTTPRoundTripper{base: base}
}

// RoundTrip implements http.RoundTripper. The request is cloned before
// headers are added.
func (rt *RequestHTTPRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	id := RequestIDFrom(ctx)
	traceparent := tracing.W3CTraceparent(ctx)
	if id == "" && traceparent == "" {
		return rt.base.RoundTrip(req)
	}
	out := req.Clone(ctx)
	if id != "" {
		out.Header.Set("X-Request-ID", id)
	}
	if traceparent != "" && out.Header.Get("traceparent") == "" {
		out.Header.Set("traceparent", traceparent)
	}
	return rt.base.RoundTrip(out)
}
