// Package server runs one analysis end to end: resolve, plan, execute and
// synthesize.
package server

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/degradation"
	"github.com/haryshwa05/pharmasynapse/internal/intent"
	"github.com/haryshwa05/pharmasynapse/internal/metrics"
	"github.com/haryshwa05/pharmasynapse/internal/models"
	"github.com/haryshwa05/pharmasynapse/internal/streaming"
	"github.com/haryshwa05/pharmasynapse/internal/templates"
	"github.com/haryshwa05/pharmasynapse/internal/tracing"
)

var (
	// ErrInvalidRequest is returned when neither a question nor a molecule
	// was supplied.
	ErrInvalidRequest = errors.New("query or molecule is required")
	// ErrSynthesisFailed reports an internal fault while producing the
	// result, including a recovered panic.
	ErrSynthesisFailed = errors.New("synthesis failed")
)

type Resolver interface {
	Resolve(ctx context.Context, q intent.RawQuery) (models.QueryIntent, error)
}

type Planner interface {
	Plan(intent models.QueryIntent) (models.ExecutionPlan, error)
}

type Executor interface {
	Execute(ctx context.Context, requestID string, plan models.ExecutionPlan, intent models.QueryIntent) (*models.ExecutionContext, error)
}

// DegradationRecorder classifies a finished execution.
type DegradationRecorder interface {
	Record(v models.View, out models.SynthesisOutput) degradation.Report
}

// EventStream is the per-request progress channel.
type EventStream interface {
	Subscribe(requestID string, buffer int) chan streaming.Event
	Unsubscribe(requestID string, ch chan streaming.Event)
	Close(requestID string)
}

// Catalog lists the configured pipelines.
type Catalog interface {
	Pipelines() []templates.TemplateSummary
}

// Deps wires the service. Degradation, Events and Catalog are optional.
type Deps struct {
	Resolver    Resolver
	Planner     Planner
	Executor    Executor
	Degradation DegradationRecorder
	Events      EventStream
	Catalog     Catalog
}

// Service is safe for concurrent use; it holds no per-request state.
type Service struct {
	deps   Deps
	logger *zap.Logger
}

// NewService validates deps and returns a Service.
func NewService(deps Deps, logger *zap.Logger) (*Service, error) {
	if deps.Resolver == nil || deps.Planner == nil || deps.Executor == nil {
		return nil, errors.New("server: resolver, planner and executor are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{deps: deps, logger: logger}, nil
}

// Pipelines returns the category to stages table.
func (s *Service) Pipelines() []templates.TemplateSummary {
	if s.deps.Catalog == nil {
		return nil
	}
	return s.deps.Catalog.Pipelines()
}

// Analyze runs q under a fresh request id.
func (s *Service) Analyze(ctx context.Context, q intent.RawQuery) (*AnalysisResponse, error) {
	return s.analyze(ctx, uuid.NewString(), q)
}

// AnalyzeWithID runs q under a caller-chosen request id so observers can
// follow its progress events. An empty id gets a fresh one.
func (s *Service) AnalyzeWithID(ctx context.Context, requestID string, q intent.RawQuery) (*AnalysisResponse, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return s.analyze(ctx, requestID, q)
}

func (s *Service) analyze(ctx context.Context, requestID string, q intent.RawQuery) (resp *AnalysisResponse, err error) {
	if strings.TrimSpace(q.Question) == "" && strings.TrimSpace(q.Molecule) == "" {
		return nil, ErrInvalidRequest
	}
	started := time.Now()
	ctx, span := tracing.StartSpan(ctx, "analysis.request", attribute.String("request.id", requestID))
	defer span.End()

	category := "unknown"
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Analysis panicked",
				zap.String("request_id", requestID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			resp, err = nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, r)
		}
		status := "ok"
		if err != nil {
			status = "error"
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.RecordRequestMetrics(category, status, time.Since(started).Seconds())
		if s.deps.Events != nil {
			s.deps.Events.Close(requestID)
		}
	}()

	qi, err := s.deps.Resolver.Resolve(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("resolve intent: %w", err)
	}
	category = string(qi.Category())
	metrics.AnalysesStarted.WithLabelValues(category).Inc()
	span.SetAttributes(
		attribute.String("intent.category", category),
		attribute.String("intent.resolved_by", string(qi.ResolvedBy())),
	)
	s.logger.Info("Analysis started",
		zap.String("request_id", requestID),
		zap.String("category", category),
		zap.String("resolved_by", string(qi.ResolvedBy())),
		zap.Float64("confidence", qi.Confidence()),
	)

	plan, err := s.deps.Planner.Plan(qi)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	ec, err := s.deps.Executor.Execute(ctx, requestID, plan, qi)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	out, ok := ec.Synthesis()
	if !ok {
		return nil, fmt.Errorf("%w: no output recorded", ErrSynthesisFailed)
	}

	var report degradation.Report
	if s.deps.Degradation != nil {
		report = s.deps.Degradation.Record(ec.View(), out)
	} else {
		report = degradation.Assess(ec.View(), out)
	}

	resp = buildResponse(requestID, qi, plan, ec, out, report, started)
	s.logger.Info("Analysis completed",
		zap.String("request_id", requestID),
		zap.String("decision", string(out.Decision)),
		zap.String("mode", string(out.Mode)),
		zap.String("degradation", report.Level.String()),
		zap.Duration("elapsed", time.Since(started)),
	)
	return resp, nil
}
