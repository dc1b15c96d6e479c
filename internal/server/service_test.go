package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/haryshwa05/pharmasynapse/internal/degradation"
	"github.com/haryshwa05/pharmasynapse/internal/intent"
	"github.com/haryshwa05/pharmasynapse/internal/models"
	"github.com/haryshwa05/pharmasynapse/internal/orchestrator"
	"github.com/haryshwa05/pharmasynapse/internal/planner"
	"github.com/haryshwa05/pharmasynapse/internal/providers"
	"github.com/haryshwa05/pharmasynapse/internal/streaming"
	"github.com/haryshwa05/pharmasynapse/internal/synthesis"
	"github.com/haryshwa05/pharmasynapse/internal/templates"
)

type stubProvider struct {
	stage   models.StageID
	payload *models.Payload
	err     error
}

func (s *stubProvider) Stage() models.StageID     { return s.stage }
func (s *stubProvider) Kind() models.ProviderKind { return s.stage.Kind() }

func (s *stubProvider) Invoke(context.Context, providers.Query) (*models.Payload, error) {
	return s.payload, s.err
}

func available(stage models.StageID, p *models.Payload) *stubProvider {
	p.Available = true
	p.Source = "stub"
	return &stubProvider{stage: stage, payload: p}
}

func moleculeProviders() []providers.Provider {
	return []providers.Provider{
		available(models.StageMarket, &models.Payload{Market: &models.MarketSnapshot{Therapy: "diabetes", MarketSizeUSD: 5e9, GrowthPct: 12}}),
		available(models.StageClinicalTrials, &models.Payload{Trials: &models.TrialLandscape{Total: 25}}),
		available(models.StagePatent, &models.Payload{Patents: &models.PatentLandscape{Total: 3, Expired: 3}}),
		&stubProvider{stage: models.StageTrade, err: providers.NewError(models.StageTrade, models.ErrorUpstreamUnavailable, "load", nil)},
	}
}

type panicSynth struct{}

func (panicSynth) Synthesize(context.Context, models.View) models.SynthesisOutput {
	panic("nil market table")
}

type fixture struct {
	svc    *Service
	events *streaming.Manager
}

func newFixture(t *testing.T, synth orchestrator.Synthesizer, ps ...providers.Provider) fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	reg, err := templates.NewDefaultRegistry("")
	require.NoError(t, err)
	resolver, err := intent.NewResolver(reg, nil, nil, intent.Options{}, logger)
	require.NoError(t, err)
	providerReg, err := providers.NewRegistry(ps...)
	require.NoError(t, err)
	if synth == nil {
		s, err := synthesis.New(nil, synthesis.DefaultParams(), 0, logger)
		require.NoError(t, err)
		synth = s
	}
	events := streaming.NewManager(streaming.DefaultCapacity, logger)
	orch := orchestrator.New(orchestrator.Config{}, providerReg, synth, zap.NewNop()).
		WithStageTimeouts(reg).
		WithEvents(events)

	svc, err := NewService(Deps{
		Resolver:    resolver,
		Planner:     planner.New(reg),
		Executor:    orch,
		Degradation: degradation.NewManager(logger),
		Events:      events,
		Catalog:     reg,
	}, logger)
	require.NoError(t, err)
	return fixture{svc: svc, events: events}
}

func TestAnalyzeStructuredMolecule(t *testing.T) {
	f := newFixture(t, nil, moleculeProviders()...)

	resp, err := f.svc.Analyze(context.Background(), intent.RawQuery{Molecule: "Metformin", Disease: "diabetes"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, models.CategoryMoleculeAnalysis, resp.Intent.Category())
	assert.True(t, resp.Intent.IsStructuredInput())
	assert.Equal(t, 1.0, resp.Intent.Confidence())

	require.Len(t, resp.Plan.Groups, 2)
	assert.Equal(t, []models.StageID{models.StageSynthesis}, resp.Plan.Groups[1].Stages)

	out := resp.Synthesis
	assert.Equal(t, models.ModeDeterministic, out.Mode)
	require.NotNil(t, out.FeasibilityScore)
	assert.InDelta(t, 1.0, *out.FeasibilityScore, 1e-9)
	assert.Equal(t, models.DecisionGo, out.Decision)
	assert.Equal(t, models.ConfidenceMedium, out.ConfidenceLevel)
	assert.Equal(t, []string{"trade"}, out.DataGaps)

	assert.Equal(t, degradation.LevelMinor, resp.Degradation.Level)
	assert.Equal(t, 4, resp.Metadata.StagesPlanned)
	assert.Equal(t, 3, resp.Metadata.StagesSucceeded)
	require.Len(t, resp.StageErrors, 1)
	assert.Equal(t, models.StageTrade, resp.StageErrors[0].Stage)
	assert.Equal(t, models.ErrorUpstreamUnavailable, resp.StageErrors[0].Kind)

	got, ok := resp.Context.Synthesis()
	require.True(t, ok)
	assert.Equal(t, out, got)
}

func TestAnalyzeRequiresInput(t *testing.T) {
	f := newFixture(t, nil, moleculeProviders()...)
	_, err := f.svc.Analyze(context.Background(), intent.RawQuery{Question: "  "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSynthesisPanicBecomesError(t *testing.T) {
	f := newFixture(t, panicSynth{}, moleculeProviders()...)

	resp, err := f.svc.Analyze(context.Background(), intent.RawQuery{Molecule: "Metformin"})
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSynthesisFailed))
	assert.Contains(t, err.Error(), "nil market table")
}

func TestNewServiceRequiresPipeline(t *testing.T) {
	_, err := NewService(Deps{}, nil)
	assert.Error(t, err)
}

func TestStreamDeliversProgress(t *testing.T) {
	f := newFixture(t, nil, moleculeProviders()...)

	var (
		mu     sync.Mutex
		events []streaming.Event
	)
	resp, err := f.svc.Stream(context.Background(), intent.RawQuery{Molecule: "Metformin"}, func(e streaming.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, streaming.EventSynthesisCompleted, last.Type)
	assert.Equal(t, string(resp.Synthesis.Decision), last.Status)

	started := 0
	for i, e := range events {
		assert.Equal(t, resp.RequestID, e.RequestID)
		assert.Equal(t, uint64(i+1), e.Seq)
		if e.Type == streaming.EventStageStarted {
			started++
		}
	}
	// Four data stages plus synthesis.
	assert.Equal(t, 5, started)

	// History is released once the request finishes.
	assert.Empty(t, f.events.ReplaySince(resp.RequestID, 0))
}

func TestStreamSurvivesConsumerFailure(t *testing.T) {
	f := newFixture(t, nil, moleculeProviders()...)

	calls := 0
	resp, err := f.svc.Stream(context.Background(), intent.RawQuery{Molecule: "Metformin"}, func(streaming.Event) error {
		calls++
		return errors.New("connection reset")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, models.DecisionGo, resp.Synthesis.Decision)
}

func TestStreamRejectsEmptyQuery(t *testing.T) {
	f := newFixture(t, nil, moleculeProviders()...)
	_, err := f.svc.Stream(context.Background(), intent.RawQuery{}, func(streaming.Event) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPipelines(t *testing.T) {
	f := newFixture(t, nil, moleculeProviders()...)
	pipelines := f.svc.Pipelines()
	require.NotEmpty(t, pipelines)
	for _, p := range pipelines {
		assert.Equal(t, models.StageSynthesis, p.Stages[len(p.Stages)-1], p.Name)
	}
}
