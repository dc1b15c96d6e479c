package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const redisService = "provider-cache"

// RedisWrapper guards the provider cache's Redis client. A tripped breaker
// turns cache calls into immediate misses instead of stalling stages on a
// dead server.
type RedisWrapper struct {
	client *redis.Client
	cb     *CircuitBreaker
	logger *zap.Logger
}

func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	config := GetRedisConfig().ToConfig()
	config.IsSuccessful = cacheOK
	cb := NewCircuitBreaker("redis", config, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker("redis", redisService, cb)
	return &RedisWrapper{client: client, cb: cb, logger: logger}
}

// cacheOK treats a miss as a normal answer.
func cacheOK(err error) bool {
	return err == nil || errors.Is(err, redis.Nil)
}

// redisCmd is the part of go-redis command results the wrapper needs.
type redisCmd interface {
	Err() error
	SetErr(error)
}

// guarded runs call through the breaker. When the breaker rejects the call,
// blank supplies an empty command carrying the rejection.
func guarded[C redisCmd](ctx context.Context, rw *RedisWrapper, call func() C, blank func(context.Context) C) C {
	var (
		result C
		ran    bool
	)
	err := rw.cb.Execute(ctx, func() error {
		result, ran = call(), true
		return result.Err()
	})
	GlobalMetricsCollector.RecordRequest("redis", redisService, rw.cb.State(), cacheOK(err))
	if !ran {
		result = blank(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	return guarded(ctx, rw,
		func() *redis.StatusCmd { return rw.client.Ping(ctx) },
		func(ctx context.Context) *redis.StatusCmd { return redis.NewStatusCmd(ctx) })
}

func (rw *RedisWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	return guarded(ctx, rw,
		func() *redis.StringCmd { return rw.client.Get(ctx, key) },
		func(ctx context.Context) *redis.StringCmd { return redis.NewStringCmd(ctx) })
}

func (rw *RedisWrapper) Set(ctx context.Context, key string, value []byte, ttl time.Duration) *redis.StatusCmd {
	return guarded(ctx, rw,
		func() *redis.StatusCmd { return rw.client.Set(ctx, key, value, ttl) },
		func(ctx context.Context) *redis.StatusCmd { return redis.NewStatusCmd(ctx) })
}

func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// IsCircuitBreakerOpen reports whether cache calls are currently rejected.
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}
