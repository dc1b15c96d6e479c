package health

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pinger is a cache that can verify its connection.
type Pinger interface {
	Ping(ctx context.Context) error
	IsCircuitBreakerOpen() bool
}

// RedisHealthChecker checks the shared payload cache
type RedisHealthChecker struct {
	cache   Pinger
	logger  *zap.Logger
	timeout time.Duration
}

// NewRedisHealthChecker creates a Redis health checker
func NewRedisHealthChecker(cache Pinger, logger *zap.Logger) *RedisHealthChecker {
	return &RedisHealthChecker{cache: cache, logger: logger, timeout: 2 * time.Second}
}

func (r *RedisHealthChecker) Name() string           { return "redis" }
func (r *RedisHealthChecker) IsCritical() bool       { return false } // providers fall back to the local cache
func (r *RedisHealthChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisHealthChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if r.cache.IsCircuitBreakerOpen() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   "circuit breaker open",
			Message: "Redis circuit breaker is open",
		}
	}

	err := r.cache.Ping(ctx)
	latency := time.Since(start)
	if err != nil {
		r.logger.Debug("Redis health check failed", zap.Error(err))
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   err.Error(),
			Message: "Redis ping failed",
			Details: map[string]any{"latency_ms": latency.Milliseconds()},
		}
	}

	result := CheckResult{
		Status:  StatusHealthy,
		Message: "Redis healthy",
		Details: map[string]any{"latency_ms": latency.Milliseconds(), "circuit_breaker_open": false},
	}
	if latency > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "Redis responding but with high latency"
	}
	return result
}

// BreakerState is a client guarded by a circuit breaker.
type BreakerState interface {
	IsCircuitBreakerOpen() bool
}

// LLMServiceHealthChecker reports the generative backend breaker state.
// Synthesis falls back to rules, so the check is non-critical.
type LLMServiceHealthChecker struct {
	client BreakerState
	model  string
}

// NewLLMServiceHealthChecker creates a generative backend checker. A nil
// client means the backend is not configured.
func NewLLMServiceHealthChecker(client BreakerState, model string) *LLMServiceHealthChecker {
	return &LLMServiceHealthChecker{client: client, model: model}
}

func (l *LLMServiceHealthChecker) Name() string           { return "llm_service" }
func (l *LLMServiceHealthChecker) IsCritical() bool       { return false }
func (l *LLMServiceHealthChecker) Timeout() time.Duration { return time.Second }

func (l *LLMServiceHealthChecker) Check(context.Context) CheckResult {
	switch {
	case l.client == nil:
		return CheckResult{
			Status:  StatusDegraded,
			Message: "Generative backend not configured; deterministic synthesis only",
		}
	case l.client.IsCircuitBreakerOpen():
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   "circuit breaker open",
			Message: "Generative backend circuit breaker is open",
			Details: map[string]any{"model": l.model},
		}
	default:
		return CheckResult{
			Status:  StatusHealthy,
			Message: "Generative backend available",
			Details: map[string]any{"model": l.model},
		}
	}
}

// ProviderCounter reports how many providers are registered.
type ProviderCounter interface {
	Len() int
}

// RegistryHealthChecker fails readiness when no provider is registered.
type RegistryHealthChecker struct {
	registry ProviderCounter
}

// NewRegistryHealthChecker creates a provider registry checker
func NewRegistryHealthChecker(registry ProviderCounter) *RegistryHealthChecker {
	return &RegistryHealthChecker{registry: registry}
}

func (r *RegistryHealthChecker) Name() string           { return "providers" }
func (r *RegistryHealthChecker) IsCritical() bool       { return true }
func (r *RegistryHealthChecker) Timeout() time.Duration { return time.Second }

func (r *RegistryHealthChecker) Check(context.Context) CheckResult {
	n := r.registry.Len()
	if n == 0 {
		return CheckResult{Status: StatusUnhealthy, Message: "No providers registered"}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "Providers registered",
		Details: map[string]any{"count": n},
	}
}

// CustomHealthChecker allows for custom health check logic
type CustomHealthChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	checkFn  func(ctx context.Context) CheckResult
}

// NewCustomHealthChecker creates a custom health checker
func NewCustomHealthChecker(name string, critical bool, timeout time.Duration, checkFn func(ctx context.Context) CheckResult) *CustomHealthChecker {
	return &CustomHealthChecker{
		name:     name,
		critical: critical,
		timeout:  timeout,
		checkFn:  checkFn,
	}
}

func (c *CustomHealthChecker) Name() string           { return c.name }
func (c *CustomHealthChecker) IsCritical() bool       { return c.critical }
func (c *CustomHealthChecker) Timeout() time.Duration { return c.timeout }

func (c *CustomHealthChecker) Check(ctx context.Context) CheckResult {
	return c.checkFn(ctx)
}
