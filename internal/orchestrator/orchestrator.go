// Package orchestrator executes planned stage groups with per-stage
// deadlines, failure isolation and a strict barrier between groups.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/haryshwa05/pharmasynapse/internal/interceptors"
	"github.com/haryshwa05/pharmasynapse/internal/metrics"
	"github.com/haryshwa05/pharmasynapse/internal/models"
	"github.com/haryshwa05/pharmasynapse/internal/providers"
	"github.com/haryshwa05/pharmasynapse/internal/streaming"
	"github.com/haryshwa05/pharmasynapse/internal/tracing"
)

const (
	DefaultStageTimeout   = 15 * time.Second
	DefaultRequestTimeout = 60 * time.Second
)

var ErrInvalidPlan = errors.New("invalid execution plan")

// Config bounds execution.
type Config struct {
	StageTimeout   time.Duration `mapstructure:"stage_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MaxConcurrency caps concurrently running stages per group; 0 is unbounded.
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

// Providers resolves the provider serving a stage.
type Providers interface {
	Get(stage models.StageID) (providers.Provider, bool)
}

// Synthesizer produces the terminal output. It must not fail.
type Synthesizer interface {
	Synthesize(ctx context.Context, v models.View) models.SynthesisOutput
}

// TimeoutSource supplies per-category stage timeouts. A zero duration
// selects the configured default.
type TimeoutSource interface {
	StageTimeout(c models.Category, s models.StageID) time.Duration
}

// Publisher receives progress events.
type Publisher interface {
	Publish(requestID string, evt streaming.Event)
}

// Orchestrator runs execution plans. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	providers Providers
	synth     Synthesizer
	timeouts  TimeoutSource
	events    Publisher
	logger    *zap.Logger
}

// New creates an orchestrator over a read-only provider registry.
func New(cfg Config, reg Providers, synth Synthesizer, logger *zap.Logger) *Orchestrator {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = DefaultStageTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, providers: reg, synth: synth, logger: logger}
}

// WithStageTimeouts sets per-category stage timeouts.
func (o *Orchestrator) WithStageTimeouts(src TimeoutSource) *Orchestrator {
	o.timeouts = src
	return o
}

// WithEvents sets the progress event sink.
func (o *Orchestrator) WithEvents(p Publisher) *Orchestrator {
	o.events = p
	return o
}

// Execute runs plan for intent. Stage failures are recorded, never
// returned; the error is reserved for plans that cannot be executed.
func (o *Orchestrator) Execute(ctx context.Context, requestID string, plan models.ExecutionPlan, intent models.QueryIntent) (*models.ExecutionContext, error) {
	if err := checkPlan(plan); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()
	ctx = interceptors.WithRequestID(ctx, requestID)

	ec := models.NewExecutionContext(requestID, intent)
	last := len(plan.Groups) - 1
	for i, group := range plan.Groups[:last] {
		o.runGroup(ctx, ec, i, group)
	}
	o.runSynthesis(ctx, ec, last)

	o.logger.Info("Execution completed",
		zap.String("request_id", requestID),
		zap.String("category", string(intent.Category())),
		zap.Int("groups", len(plan.Groups)),
		zap.Duration("elapsed", time.Since(ec.StartedAt())))
	return ec, nil
}

func checkPlan(plan models.ExecutionPlan) error {
	n := len(plan.Groups)
	if n == 0 {
		return fmt.Errorf("%w: no groups", ErrInvalidPlan)
	}
	final := plan.Groups[n-1].Stages
	if len(final) != 1 || !final[0].IsSynthesis() {
		return fmt.Errorf("%w: synthesis must run alone in the final group", ErrInvalidPlan)
	}
	for _, g := range plan.Groups[:n-1] {
		for _, s := range g.Stages {
			if s.IsSynthesis() {
				return fmt.Errorf("%w: synthesis before the final group", ErrInvalidPlan)
			}
		}
	}
	return nil
}

// runGroup is the barrier: it returns only after every stage of group has
// recorded a result.
func (o *Orchestrator) runGroup(ctx context.Context, ec *models.ExecutionContext, idx int, group models.StageGroup) {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.group",
		attribute.String("request_id", ec.RequestID()),
		attribute.Int("group", idx))
	defer span.End()

	prior := ec.View()
	var g errgroup.Group
	if o.cfg.MaxConcurrency > 0 {
		g.SetLimit(o.cfg.MaxConcurrency)
	}
	for _, stage := range group.Stages {
		g.Go(func() error {
			ec.Record(o.runStage(ctx, ec, idx, stage, prior))
			// Failures are data, not errors: siblings keep running.
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, stage := range group.Stages {
		if r, ok := ec.Result(stage); !ok || !r.OK() {
			failed++
		}
	}
	if len(group.Stages) > 0 && failed == len(group.Stages) {
		ec.MarkGroupDegraded(idx)
		metrics.DegradedGroups.Inc()
		o.logger.Warn("Every stage in group failed",
			zap.String("request_id", ec.RequestID()),
			zap.Int("group", idx))
		o.publish(ec.RequestID(), streaming.Event{
			Type:    streaming.EventGroupDegraded,
			Group:   idx,
			Message: fmt.Sprintf("all %d stages failed", failed),
		})
	}
}

func (o *Orchestrator) stageTimeout(c models.Category, s models.StageID) time.Duration {
	if o.timeouts != nil {
		if d := o.timeouts.StageTimeout(c, s); d > 0 {
			return d
		}
	}
	return o.cfg.StageTimeout
}

func (o *Orchestrator) runStage(ctx context.Context, ec *models.ExecutionContext, idx int, stage models.StageID, prior models.View) models.StageResult {
	requestID := ec.RequestID()
	start := time.Now()
	o.publish(requestID, streaming.Event{Type: streaming.EventStageStarted, Stage: string(stage), Group: idx})

	result := models.StageResult{StageID: stage}
	p, ok := o.providers.Get(stage)
	if !ok {
		result.Status = models.StatusSkipped
		result.Message = "no provider registered"
	} else {
		sctx, cancel := context.WithTimeout(ctx, o.stageTimeout(ec.Intent().Category(), stage))
		sctx, span := tracing.StartStageSpan(sctx, requestID, string(stage))
		payload, err := o.invoke(sctx, p, providers.NewQuery(requestID, ec.Intent(), prior))
		tracing.EndSpan(span, err)
		cancel()
		switch {
		case err != nil:
			result.Error = providers.KindOf(err)
			result.Status = models.StatusFailed
			if result.Error == models.ErrorTimeout {
				result.Status = models.StatusTimeout
			}
			result.Message = err.Error()
		case payload == nil:
			result.Status = models.StatusFailed
			result.Error = models.ErrorUnknown
			result.Message = "provider returned no payload"
		default:
			result.Status = models.StatusOK
			result.Payload = payload
		}
	}
	elapsed := time.Since(start)
	result.DurationMs = elapsed.Milliseconds()

	metrics.RecordStageMetrics(string(stage), string(result.Status), elapsed.Seconds())
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("stage", string(stage)),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", elapsed),
	}
	if result.Status == models.StatusOK || result.Status == models.StatusSkipped {
		o.logger.Debug("Stage finished", fields...)
	} else {
		o.logger.Warn("Stage failed", append(fields, zap.String("error", result.Message))...)
	}
	o.publish(requestID, streaming.Event{
		Type:       streaming.EventStageCompleted,
		Stage:      string(stage),
		Group:      idx,
		Status:     string(result.Status),
		Message:    result.Message,
		DurationMs: result.DurationMs,
	})
	return result
}

type outcome struct {
	payload *models.Payload
	err     error
}

// invoke returns when the provider answers or ctx ends, whichever is first.
// A provider that ignores ctx keeps running; its result is dropped.
func (o *Orchestrator) invoke(ctx context.Context, p providers.Provider, q providers.Query) (*models.Payload, error) {
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: providers.NewError(p.Stage(), models.ErrorUnknown, "invoke", fmt.Errorf("panic: %v", r))}
			}
		}()
		payload, err := p.Invoke(ctx, q)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		return out.payload, out.err
	case <-ctx.Done():
		go o.discardLate(p.Stage(), q.RequestID, done)
		return nil, providers.NewError(p.Stage(), models.ErrorTimeout, "invoke", ctx.Err())
	}
}

func (o *Orchestrator) discardLate(stage models.StageID, requestID string, done <-chan outcome) {
	<-done
	metrics.LateStageResults.WithLabelValues(string(stage)).Inc()
	o.logger.Debug("Discarded late stage result",
		zap.String("request_id", requestID),
		zap.String("stage", string(stage)))
}

// runSynthesis runs in the caller's goroutine so a panic reaches the
// request boundary.
func (o *Orchestrator) runSynthesis(ctx context.Context, ec *models.ExecutionContext, idx int) {
	start := time.Now()
	requestID := ec.RequestID()
	o.publish(requestID, streaming.Event{Type: streaming.EventStageStarted, Stage: string(models.StageSynthesis), Group: idx})

	out := o.synth.Synthesize(ctx, ec.View())
	elapsed := time.Since(start)
	ec.SetSynthesis(out)
	ec.Record(models.StageResult{
		StageID:    models.StageSynthesis,
		Status:     models.StatusOK,
		DurationMs: elapsed.Milliseconds(),
	})
	metrics.RecordStageMetrics(string(models.StageSynthesis), string(models.StatusOK), elapsed.Seconds())

	msg := string(out.Mode)
	if out.Degraded {
		msg += " (degraded)"
	}
	o.publish(requestID, streaming.Event{
		Type:       streaming.EventSynthesisCompleted,
		Stage:      string(models.StageSynthesis),
		Group:      idx,
		Status:     string(out.Decision),
		Message:    msg,
		DurationMs: elapsed.Milliseconds(),
	})
}

func (o *Orchestrator) publish(requestID string, evt streaming.Event) {
	if o.events != nil {
		o.events.Publish(requestID, evt)
	}
}
