package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/haryshwa05/pharmasynapse/internal/circuitbreaker"
	"github.com/haryshwa05/pharmasynapse/internal/interceptors"
	"github.com/haryshwa05/pharmasynapse/internal/models"
	"github.com/haryshwa05/pharmasynapse/internal/tracing"
)

const maxResponseBytes = 8 << 20

// HTTPOptions configures one provider upstream.
type HTTPOptions struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	// RPS caps outbound calls per second. Zero disables limiting.
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client `mapstructure:"-"`
}

// Enabled reports whether an upstream endpoint is configured.
func (o HTTPOptions) Enabled() bool { return strings.TrimSpace(o.BaseURL) != "" }

// upstream performs rate-limited, breaker-guarded JSON GETs for one stage.
type upstream struct {
	stage   models.StageID
	base    string
	http    *circuitbreaker.HTTPWrapper
	limiter *rate.Limiter
	logger  *zap.Logger
}

func newUpstream(stage models.StageID, opts HTTPOptions, logger *zap.Logger) *upstream {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout, Transport: interceptors.NewRequestHTTPRoundTripper(nil)}
	}
	u := &upstream{
		stage: stage,
		base:  strings.TrimRight(opts.BaseURL, "/"),
		http: circuitbreaker.NewHTTPWrapper(client, string(stage), "provider",
			circuitbreaker.GetProviderConfig(string(stage)), logger),
		logger: logger,
	}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		u.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return u
}

// getJSON fetches endpoint with params and decodes the body into out.
// Failures come back as *Error classified by kind.
func (u *upstream) getJSON(ctx context.Context, op, endpoint string, params url.Values, header http.Header, out any) (err error) {
	if u.limiter != nil {
		if werr := u.limiter.Wait(ctx); werr != nil {
			return NewError(u.stage, models.ErrorTimeout, op, werr)
		}
	}

	reqURL := endpoint
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + params.Encode()
	}

	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodGet, reqURL)
	defer func() { tracing.EndSpan(span, err) }()

	req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if rerr != nil {
		return NewError(u.stage, models.ErrorInvalidInput, op, rerr)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, derr := u.http.Do(req)
	if derr != nil {
		return u.classifyTransport(ctx, op, derr)
	}
	defer resp.Body.Close()

	if kind, bad := classifyStatus(resp.StatusCode); bad {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewError(u.stage, kind, op,
			fmt.Errorf("%s: status %d: %s", sentinel(kind), resp.StatusCode, strings.TrimSpace(string(body))))
	}

	if derr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); derr != nil {
		return NewError(u.stage, models.ErrorUnknown, op, fmt.Errorf("decode response: %w", derr))
	}
	return nil
}

func (u *upstream) classifyTransport(ctx context.Context, op string, err error) error {
	switch {
	case ctx.Err() != nil:
		return NewError(u.stage, models.ErrorTimeout, op, ctx.Err())
	case circuitbreaker.IsRejection(err):
		return NewError(u.stage, models.ErrorUpstreamUnavailable, op, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(u.stage, models.ErrorTimeout, op, err)
	}
	return NewError(u.stage, models.ErrorUpstreamUnavailable, op, err)
}

// classifyStatus maps a non-2xx status to an error kind.
func classifyStatus(code int) (models.ErrorKind, bool) {
	switch {
	case code >= 200 && code < 300:
		return "", false
	case code == http.StatusTooManyRequests, code >= 500:
		return models.ErrorUpstreamUnavailable, true
	case code == http.StatusRequestTimeout:
		return models.ErrorTimeout, true
	default:
		return models.ErrorInvalidInput, true
	}
}

// fallbackOn reports whether a failed upstream call may be answered from the
// offline dataset. Invalid input and caller cancellation are not retried.
func fallbackOn(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	kind := KindOf(err)
	return kind == models.ErrorUpstreamUnavailable || kind == models.ErrorUnknown
}
