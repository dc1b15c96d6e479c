package circuitbreaker

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CircuitBreakerConfig represents configuration for a circuit breaker
type CircuitBreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// GetRedisConfig returns provider cache circuit breaker configuration from environment variables
func GetRedisConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      getEnvUint32("CB_REDIS_MAX_REQUESTS", 5),
		Interval:         getEnvDuration("CB_REDIS_INTERVAL", 30*time.Second),
		Timeout:          getEnvDuration("CB_REDIS_TIMEOUT", 15*time.Second),
		FailureThreshold: getEnvUint32("CB_REDIS_FAILURE_THRESHOLD", 3),
		SuccessThreshold: getEnvUint32("CB_REDIS_SUCCESS_THRESHOLD", 2),
	}
}

// GetLLMConfig returns generative backend circuit breaker configuration from environment variables
func GetLLMConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      getEnvUint32("CB_LLM_MAX_REQUESTS", 2),
		Interval:         getEnvDuration("CB_LLM_INTERVAL", 60*time.Second),
		Timeout:          getEnvDuration("CB_LLM_TIMEOUT", 30*time.Second),
		FailureThreshold: getEnvUint32("CB_LLM_FAILURE_THRESHOLD", 3),
		SuccessThreshold: getEnvUint32("CB_LLM_SUCCESS_THRESHOLD", 1),
	}
}

// GetProviderConfig returns the breaker configuration for one provider
// upstream. CB_PROVIDER_<STAGE>_* overrides CB_PROVIDER_*.
func GetProviderConfig(stage string) CircuitBreakerConfig {
	prefix := "CB_PROVIDER_" + strings.ToUpper(stage) + "_"
	return CircuitBreakerConfig{
		MaxRequests:      getEnvUint32(prefix+"MAX_REQUESTS", getEnvUint32("CB_PROVIDER_MAX_REQUESTS", 5)),
		Interval:         getEnvDuration(prefix+"INTERVAL", getEnvDuration("CB_PROVIDER_INTERVAL", 30*time.Second)),
		Timeout:          getEnvDuration(prefix+"TIMEOUT", getEnvDuration("CB_PROVIDER_TIMEOUT", 20*time.Second)),
		FailureThreshold: getEnvUint32(prefix+"FAILURE_THRESHOLD", getEnvUint32("CB_PROVIDER_FAILURE_THRESHOLD", 5)),
		SuccessThreshold: getEnvUint32(prefix+"SUCCESS_THRESHOLD", getEnvUint32("CB_PROVIDER_SUCCESS_THRESHOLD", 2)),
	}
}

// ToConfig converts CircuitBreakerConfig to circuit breaker Config
func (cbc CircuitBreakerConfig) ToConfig() Config {
	return Config{
		MaxRequests:      cbc.MaxRequests,
		Interval:         cbc.Interval,
		Timeout:          cbc.Timeout,
		FailureThreshold: cbc.FailureThreshold,
		SuccessThreshold: cbc.SuccessThreshold,
	}
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
