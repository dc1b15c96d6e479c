package providers

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/cache"
	"github.com/haryshwa05/pharmasynapse/internal/metrics"
	"github.com/haryshwa05/pharmasynapse/internal/models"
)

// cachedProvider memoizes available payloads per query.
type cachedProvider struct {
	next   Provider
	cache  cache.PayloadCache
	ttl    time.Duration
	logger *zap.Logger
}

// WithCache wraps p so repeated queries are served from c for ttl.
// Unavailable payloads and errors are never cached.
func WithCache(p Provider, c cache.PayloadCache, ttl time.Duration, logger *zap.Logger) Provider {
	if c == nil || ttl <= 0 {
		return p
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachedProvider{next: p, cache: c, ttl: ttl, logger: logger}
}

func (c *cachedProvider) Stage() models.StageID     { return c.next.Stage() }
func (c *cachedProvider) Kind() models.ProviderKind { return c.next.Kind() }

func (c *cachedProvider) Invoke(ctx context.Context, q Query) (*models.Payload, error) {
	stage := string(c.Stage())
	key := cache.MakeKey(stage, q.CacheParts()...)
	if raw, ok := c.cache.Get(ctx, key); ok {
		var p models.Payload
		if err := json.Unmarshal(raw, &p); err == nil {
			metrics.ProviderCache.WithLabelValues(stage, "hit").Inc()
			return &p, nil
		}
		c.logger.Warn("Discarding undecodable cache entry", zap.String("key", key))
	}
	metrics.ProviderCache.WithLabelValues(stage, "miss").Inc()

	p, err := c.next.Invoke(ctx, q)
	if err != nil || p == nil || !p.Available {
		return p, err
	}
	if raw, merr := json.Marshal(p); merr == nil {
		c.cache.Set(ctx, key, raw, c.ttl)
	}
	return p, nil
}
