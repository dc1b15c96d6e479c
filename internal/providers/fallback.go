package providers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/metrics"
	"github.com/haryshwa05/pharmasynapse/internal/models"
)

// withFallback runs online when an upstream is configured. Availability
// failures are answered by offline; every other error is returned as is.
func withFallback(
	ctx context.Context,
	stage models.StageID,
	logger *zap.Logger,
	online func() (*models.Payload, error),
	offline func() *models.Payload,
) (*models.Payload, error) {
	if online == nil {
		return offline(), nil
	}
	p, err := online()
	if err == nil {
		return p, nil
	}
	if !fallbackOn(ctx, err) {
		return nil, err
	}
	logger.Warn("Upstream failed, answering from offline dataset",
		zap.String("stage", string(stage)),
		zap.Error(err))
	metrics.ProviderFallbacks.WithLabelValues(string(stage)).Inc()
	return offline(), nil
}

func unavailable(source, asOf, summary string) *models.Payload {
	return &models.Payload{Source: source, Summary: summary, AsOf: asOf, Available: false}
}

func apiKeyHeader(name, key string) http.Header {
	h := http.Header{}
	if key != "" {
		h.Set(name, key)
	}
	return h
}
