package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/cache"
	"github.com/haryshwa05/pharmasynapse/internal/circuitbreaker"
	"github.com/haryshwa05/pharmasynapse/internal/config"
	"github.com/haryshwa05/pharmasynapse/internal/degradation"
	"github.com/haryshwa05/pharmasynapse/internal/health"
	"github.com/haryshwa05/pharmasynapse/internal/intent"
	"github.com/haryshwa05/pharmasynapse/internal/llm"
	"github.com/haryshwa05/pharmasynapse/internal/orchestrator"
	"github.com/haryshwa05/pharmasynapse/internal/planner"
	"github.com/haryshwa05/pharmasynapse/internal/providers"
	"github.com/haryshwa05/pharmasynapse/internal/server"
	"github.com/haryshwa05/pharmasynapse/internal/streaming"
	"github.com/haryshwa05/pharmasynapse/internal/synthesis"
	"github.com/haryshwa05/pharmasynapse/internal/templates"
	"github.com/haryshwa05/pharmasynapse/internal/tracing"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	svc       *server.Service
	events    *streaming.Manager
	degrader  *degradation.Manager
	providers *providers.Registry
	templates *templates.Registry
	gemini    *llm.GeminiClient
	redis     *cache.RedisCache

	shutdownTracing tracing.ShutdownFunc
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
		zc.Level = level
	}
	return zc.Build()
}

// newApp loads configuration and builds the analysis pipeline. Optional
// dependencies (Redis, the generative backend, tracing) degrade to warnings.
func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	a.shutdownTracing, err = tracing.Initialize(cfg.Tracing, version, logger)
	if err != nil {
		logger.Warn("Failed to initialize tracing", zap.Error(err))
	}

	local := cache.NewLocalLRU(cfg.Cache.LocalCapacity)
	var pc cache.PayloadCache = local
	if cfg.Cache.RedisAddr != "" {
		rc, err := cache.NewRedisCache(cfg.Cache.RedisAddr, logger)
		if err != nil {
			logger.Warn("Redis unavailable, caching in process only",
				zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		} else {
			a.redis = rc
			pc = cache.NewTiered(local, rc, cfg.Cache.LocalTTL)
		}
	}

	dataset, err := providers.LoadDataset(cfg.Providers.DatasetPath)
	if err != nil {
		return nil, err
	}
	a.providers, err = providers.Build(cfg.Providers, dataset, pc, logger)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	a.templates, err = templates.NewDefaultRegistry(cfg.Templates.Dir)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	var lex *intent.Lexicon
	if cfg.Intent.LexiconPath != "" {
		if lex, err = intent.LoadLexicon(cfg.Intent.LexiconPath); err != nil {
			return nil, err
		}
	}

	var client llm.Client
	a.gemini, err = llm.NewGeminiClient(cfg.LLM, logger)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		logger.Warn("No generative backend configured; using rule resolution and deterministic synthesis")
	case err != nil:
		return nil, err
	default:
		client = a.gemini
	}

	resolver, err := intent.NewResolver(a.templates, lex, client, cfg.IntentOptions(), logger)
	if err != nil {
		return nil, err
	}
	synth, err := synthesis.New(client, cfg.Synthesis.Params, cfg.Synthesis.Timeout, logger)
	if err != nil {
		return nil, err
	}

	a.events = streaming.NewManager(cfg.Streaming.Capacity, logger)
	orch := orchestrator.New(cfg.Orchestrator, a.providers, synth, logger).
		WithStageTimeouts(a.templates).
		WithEvents(a.events)

	a.degrader = degradation.NewManager(logger)
	if a.redis != nil {
		a.degrader.Register("redis", a.redis)
	}
	if a.gemini != nil {
		a.degrader.Register("llm", a.gemini)
	}

	plans := planner.New(a.templates)
	if err := plans.Validate(); err != nil {
		return nil, err
	}

	a.svc, err = server.NewService(server.Deps{
		Resolver:    resolver,
		Planner:     plans,
		Executor:    orch,
		Degradation: a.degrader,
		Events:      a.events,
		Catalog:     a.templates,
	}, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("Analysis pipeline ready",
		zap.Int("providers", a.providers.Len()),
		zap.Int("pipelines", len(a.templates.Pipelines())),
		zap.Bool("generative", client != nil),
		zap.Bool("redis", a.redis != nil))
	return a, nil
}

// healthManager registers a checker per dependency.
func (a *app) healthManager() (*health.Manager, error) {
	hm := health.NewManager(a.logger)
	var breaker health.BreakerState
	if a.gemini != nil {
		breaker = a.gemini
	}
	checkers := []health.Checker{
		health.NewRegistryHealthChecker(a.providers),
		health.NewLLMServiceHealthChecker(breaker, a.cfg.LLM.Model),
		health.NewCustomHealthChecker("templates", true, time.Second, func(context.Context) health.CheckResult {
			n := len(a.templates.Pipelines())
			if n == 0 {
				return health.CheckResult{Status: health.StatusUnhealthy, Message: "no pipelines registered"}
			}
			return health.CheckResult{
				Status:  health.StatusHealthy,
				Message: fmt.Sprintf("%d pipelines registered", n),
				Details: map[string]any{"pipelines": n},
			}
		}),
		health.NewCustomHealthChecker("circuit_breakers", false, time.Second, breakerCheck),
	}
	if a.redis != nil {
		checkers = append(checkers, health.NewRedisHealthChecker(a.redis, a.logger))
	}
	for _, c := range checkers {
		if err := hm.RegisterChecker(c); err != nil {
			return nil, err
		}
	}
	return hm, nil
}

// breakerCheck reports degraded while any upstream breaker is open.
func breakerCheck(context.Context) health.CheckResult {
	var open []string
	states := circuitbreaker.GlobalMetricsCollector.Snapshot()
	for _, st := range states {
		if st.State == circuitbreaker.StateOpen.String() {
			open = append(open, st.Service+"/"+st.Name)
		}
	}
	res := health.CheckResult{
		Status:  health.StatusHealthy,
		Message: fmt.Sprintf("%d breakers closed or probing", len(states)),
		Details: map[string]any{"breakers": states},
	}
	if len(open) > 0 {
		res.Status = health.StatusDegraded
		res.Message = "open breakers: " + strings.Join(open, ", ")
	}
	return res
}

func (a *app) close() {
	a.degrader.Stop()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
