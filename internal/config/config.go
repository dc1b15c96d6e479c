// Package config loads service configuration from defaults, an optional
// YAML file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/haryshwa05/pharmasynapse/internal/intent"
	"github.com/haryshwa05/pharmasynapse/internal/llm"
	"github.com/haryshwa05/pharmasynapse/internal/orchestrator"
	"github.com/haryshwa05/pharmasynapse/internal/providers"
	"github.com/haryshwa05/pharmasynapse/internal/streaming"
	"github.com/haryshwa05/pharmasynapse/internal/synthesis"
	"github.com/haryshwa05/pharmasynapse/internal/tracing"
)

// DefaultPath is read when CONFIG_PATH is unset.
const DefaultPath = "config/pharmasynapse.yaml"

var ErrInvalidConfig = errors.New("invalid configuration")

type ServerConfig struct {
	HTTPPort    int           `mapstructure:"http_port"`
	MetricsPort int           `mapstructure:"metrics_port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

type IntentConfig struct {
	RuleConfidence float64       `mapstructure:"rule_confidence"`
	ModelTimeout   time.Duration `mapstructure:"model_timeout"`
	// LexiconPath overrides the embedded keyword lexicon.
	LexiconPath string `mapstructure:"lexicon_path"`
}

type TemplatesConfig struct {
	// Dir holds YAML templates layered over the built-in table.
	Dir string `mapstructure:"dir"`
}

type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	LocalCapacity int           `mapstructure:"local_capacity"`
	LocalTTL      time.Duration `mapstructure:"local_ttl"`
}

type SynthesisConfig struct {
	Timeout time.Duration    `mapstructure:"timeout"`
	Params  synthesis.Params `mapstructure:",squash"`
}

type StreamingConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// Config is built once at start-up and treated as read-only afterwards.
type Config struct {
	Server       ServerConfig        `mapstructure:"server"`
	Logging      LoggingConfig       `mapstructure:"logging"`
	LLM          llm.Config          `mapstructure:"llm"`
	Intent       IntentConfig        `mapstructure:"intent"`
	Templates    TemplatesConfig     `mapstructure:"templates"`
	Providers    providers.Settings  `mapstructure:"providers"`
	Cache        CacheConfig         `mapstructure:"cache"`
	Orchestrator orchestrator.Config `mapstructure:"orchestrator"`
	Synthesis    SynthesisConfig     `mapstructure:"synthesis"`
	Streaming    StreamingConfig     `mapstructure:"streaming"`
	Tracing      tracing.Config      `mapstructure:"tracing"`
}

// envBindings maps config keys to the environment variables that override
// them.
var envBindings = map[string]string{
	"llm.api_key":                  "GEMINI_API_KEY",
	"llm.base_url":                 "LLM_SERVICE_URL",
	"llm.model":                    "LLM_MODEL",
	"providers.patent.api_key":     "PATENTSVIEW_API_KEY",
	"cache.redis_addr":             "REDIS_ADDR",
	"orchestrator.stage_timeout":   "STAGE_TIMEOUT",
	"orchestrator.request_timeout": "REQUEST_TIMEOUT",
	"server.http_port":             "HTTP_PORT",
	"server.metrics_port":          "METRICS_PORT",
	"tracing.otlp_endpoint":        "OTEL_EXPORTER_OTLP_ENDPOINT",
	"logging.development":          "LOG_DEVELOPMENT",
}

// Load reads path (CONFIG_PATH or DefaultPath when empty). A missing file
// is not an error; defaults and environment still apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	explicit := path != ""
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	defaults := synthesis.DefaultParams()
	if len(cfg.Synthesis.Params.TrialLevels) == 0 {
		cfg.Synthesis.Params.TrialLevels = defaults.TrialLevels
	}
	if len(cfg.Synthesis.Params.FTOLevels) == 0 {
		cfg.Synthesis.Params.FTOLevels = defaults.FTOLevels
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 2112)
	v.SetDefault("server.read_timeout", 15*time.Second)

	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", llm.DefaultBaseURL)
	v.SetDefault("llm.model", llm.DefaultModel)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.rps", 2.0)
	v.SetDefault("llm.burst", 4)

	v.SetDefault("intent.rule_confidence", intent.DefaultRuleConfidence)
	v.SetDefault("intent.model_timeout", 8*time.Second)
	v.SetDefault("intent.lexicon_path", "")

	v.SetDefault("templates.dir", "")

	v.SetDefault("providers.clinical_trials.base_url", "https://clinicaltrials.gov")
	v.SetDefault("providers.clinical_trials.rps", 5.0)
	v.SetDefault("providers.clinical_trials.burst", 5)
	v.SetDefault("providers.patent.base_url", "")
	v.SetDefault("providers.patent.api_key", "")
	v.SetDefault("providers.market.base_url", "")
	v.SetDefault("providers.web_research.base_url", "")
	v.SetDefault("providers.web_research_max_results", 5)
	v.SetDefault("providers.dataset_path", "")
	v.SetDefault("providers.cache_ttl", 10*time.Minute)

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.local_capacity", 512)
	v.SetDefault("cache.local_ttl", time.Minute)

	v.SetDefault("orchestrator.stage_timeout", orchestrator.DefaultStageTimeout)
	v.SetDefault("orchestrator.request_timeout", orchestrator.DefaultRequestTimeout)
	v.SetDefault("orchestrator.max_concurrency", 0)

	p := synthesis.DefaultParams()
	v.SetDefault("synthesis.timeout", 20*time.Second)
	v.SetDefault("synthesis.weights.trial", p.Weights.Trial)
	v.SetDefault("synthesis.weights.fto", p.Weights.FTO)
	v.SetDefault("synthesis.weights.market", p.Weights.Market)
	v.SetDefault("synthesis.go_threshold", p.GoThreshold)
	v.SetDefault("synthesis.conditional_threshold", p.ConditionalThreshold)
	v.SetDefault("synthesis.high_confidence", p.HighConfidence)
	v.SetDefault("synthesis.medium_confidence", p.MediumConfidence)
	v.SetDefault("synthesis.market.large_size_usd", p.Market.LargeSizeUSD)
	v.SetDefault("synthesis.market.medium_size_usd", p.Market.MediumSizeUSD)
	v.SetDefault("synthesis.market.high_growth_pct", p.Market.HighGrowthPct)
	v.SetDefault("synthesis.market.moderate_growth_pct", p.Market.ModerateGrowthPct)
	v.SetDefault("synthesis.market.high_score", p.Market.HighScore)
	v.SetDefault("synthesis.market.moderate_score", p.Market.ModerateScore)
	v.SetDefault("synthesis.market.low_score", p.Market.LowScore)

	v.SetDefault("streaming.capacity", streaming.DefaultCapacity)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "pharmasynapse")
	v.SetDefault("tracing.otlp_endpoint", "")
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	if err := c.Synthesis.Params.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	timeouts := map[string]time.Duration{
		"orchestrator.stage_timeout":   c.Orchestrator.StageTimeout,
		"orchestrator.request_timeout": c.Orchestrator.RequestTimeout,
		"synthesis.timeout":            c.Synthesis.Timeout,
		"intent.model_timeout":         c.Intent.ModelTimeout,
	}
	for key, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidConfig, key, d)
		}
	}
	if c.Orchestrator.StageTimeout > c.Orchestrator.RequestTimeout {
		return fmt.Errorf("%w: stage timeout %v exceeds request timeout %v",
			ErrInvalidConfig, c.Orchestrator.StageTimeout, c.Orchestrator.RequestTimeout)
	}
	if c.Intent.RuleConfidence <= 0 || c.Intent.RuleConfidence > 1 {
		return fmt.Errorf("%w: intent.rule_confidence must be within (0,1], got %v", ErrInvalidConfig, c.Intent.RuleConfidence)
	}
	for key, port := range map[string]int{"server.http_port": c.Server.HTTPPort, "server.metrics_port": c.Server.MetricsPort} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%w: %s out of range: %d", ErrInvalidConfig, key, port)
		}
	}
	if c.Orchestrator.MaxConcurrency < 0 {
		return fmt.Errorf("%w: orchestrator.max_concurrency must not be negative", ErrInvalidConfig)
	}
	return nil
}

// IntentOptions converts the intent section for the resolver.
func (c *Config) IntentOptions() intent.Options {
	return intent.Options{
		RuleConfidence: c.Intent.RuleConfidence,
		ModelTimeout:   c.Intent.ModelTimeout,
	}
}
