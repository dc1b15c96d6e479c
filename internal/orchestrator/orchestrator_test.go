package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/haryshwa05/pharmasynapse/internal/models"
	"github.com/haryshwa05/pharmasynapse/internal/providers"
	"github.com/haryshwa05/pharmasynapse/internal/streaming"
	"github.com/haryshwa05/pharmasynapse/internal/synthesis"
)

// fakeProvider answers after delay. When ignoreCtx is set it keeps
// sleeping through cancellation, like a provider stuck in a network call.
type fakeProvider struct {
	stage     models.StageID
	payload   *models.Payload
	err       error
	delay     time.Duration
	ignoreCtx bool
	onInvoke  func(q providers.Query)
	panicMsg  string
}

func (f *fakeProvider) Stage() models.StageID     { return f.stage }
func (f *fakeProvider) Kind() models.ProviderKind { return f.stage.Kind() }

func (f *fakeProvider) Invoke(ctx context.Context, q providers.Query) (*models.Payload, error) {
	if f.onInvoke != nil {
		f.onInvoke(q)
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-ctx.Done():
				return nil, providers.NewError(f.stage, models.ErrorTimeout, "invoke", ctx.Err())
			case <-time.After(f.delay):
			}
		}
	}
	return f.payload, f.err
}

func okProvider(stage models.StageID, p *models.Payload) *fakeProvider {
	p.Available = true
	return &fakeProvider{stage: stage, payload: p}
}

func failingProvider(stage models.StageID) *fakeProvider {
	return &fakeProvider{stage: stage, err: providers.NewError(stage, models.ErrorUpstreamUnavailable, "get", nil)}
}

type recorder struct {
	mu     sync.Mutex
	events []streaming.Event
}

func (r *recorder) Publish(_ string, evt streaming.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) count(typ streaming.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func newIntent(t *testing.T, c models.Category, stages ...models.StageID) models.QueryIntent {
	t.Helper()
	intent, err := models.NewQueryIntent(models.IntentFields{
		Category:       c,
		PrimaryEntity:  "Metformin",
		RequiredStages: append(stages, models.StageSynthesis),
		Confidence:     0.6,
		ResolvedBy:     models.PathRules,
	})
	require.NoError(t, err)
	return intent
}

func onePlan(c models.Category, stages ...models.StageID) models.ExecutionPlan {
	return models.ExecutionPlan{
		Category: c,
		Groups: []models.StageGroup{
			{Stages: stages},
			{Stages: []models.StageID{models.StageSynthesis}},
		},
	}
}

func newOrchestrator(t *testing.T, cfg Config, ps ...providers.Provider) *Orchestrator {
	t.Helper()
	reg, err := providers.NewRegistry(ps...)
	require.NoError(t, err)
	synth, err := synthesis.New(nil, synthesis.DefaultParams(), 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	// Abandoned provider goroutines can outlive the test, so the
	// orchestrator must not log through t.
	return New(cfg, reg, synth, zap.NewNop())
}

func TestFailureIsolation(t *testing.T) {
	o := newOrchestrator(t, Config{},
		failingProvider(models.StageMarket),
		okProvider(models.StageClinicalTrials, &models.Payload{Trials: &models.TrialLandscape{Total: 12}}),
		okProvider(models.StagePatent, &models.Payload{Patents: &models.PatentLandscape{}}),
	)
	events := &recorder{}
	o.WithEvents(events)
	stages := []models.StageID{models.StageMarket, models.StageClinicalTrials, models.StagePatent}

	ec, err := o.Execute(context.Background(), "req-1", onePlan(models.CategoryRepurposing, stages...),
		newIntent(t, models.CategoryRepurposing, stages...))
	require.NoError(t, err)

	r, ok := ec.Result(models.StageMarket)
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, r.Status)
	assert.Equal(t, models.ErrorUpstreamUnavailable, r.Error)

	for _, s := range []models.StageID{models.StageClinicalTrials, models.StagePatent} {
		r, ok := ec.Result(s)
		require.True(t, ok)
		assert.Equal(t, models.StatusOK, r.Status, s)
	}

	out, ok := ec.Synthesis()
	require.True(t, ok)
	assert.Equal(t, []string{"market"}, out.DataGaps)
	assert.NotEmpty(t, out.ExecutiveSummary)
	assert.Empty(t, ec.View().DegradedGroups())

	assert.Equal(t, 4, events.count(streaming.EventStageStarted))
	assert.Equal(t, 3, events.count(streaming.EventStageCompleted))
	assert.Equal(t, 1, events.count(streaming.EventSynthesisCompleted))
	assert.Zero(t, events.count(streaming.EventGroupDegraded))
}

func TestStageTimeoutDoesNotHoldBarrier(t *testing.T) {
	slow := &fakeProvider{
		stage:     models.StagePatent,
		payload:   &models.Payload{Available: true, Patents: &models.PatentLandscape{}},
		delay:     2 * time.Second,
		ignoreCtx: true,
	}
	o := newOrchestrator(t, Config{StageTimeout: 50 * time.Millisecond},
		slow,
		okProvider(models.StageMarket, &models.Payload{Market: &models.MarketSnapshot{MarketSizeUSD: 1}}),
	)
	stages := []models.StageID{models.StageMarket, models.StagePatent}

	start := time.Now()
	ec, err := o.Execute(context.Background(), "req-d", onePlan(models.CategoryCompetitiveAnalysis, stages...),
		newIntent(t, models.CategoryCompetitiveAnalysis, stages...))
	elapsed := time.Since(start)
	require.NoError(t, err)

	r, _ := ec.Result(models.StagePatent)
	assert.Equal(t, models.StatusTimeout, r.Status)
	assert.Equal(t, models.ErrorTimeout, r.Error)
	assert.Nil(t, r.Payload)
	assert.Less(t, elapsed, time.Second, "request should take about the stage timeout, not the provider latency")

	m, _ := ec.Result(models.StageMarket)
	assert.Equal(t, models.StatusOK, m.Status)
	_, ok := ec.Synthesis()
	assert.True(t, ok)
}

func TestRequestDeadlineCancelsInFlight(t *testing.T) {
	o := newOrchestrator(t, Config{StageTimeout: 5 * time.Second, RequestTimeout: 60 * time.Millisecond},
		&fakeProvider{stage: models.StageMarket, delay: 5 * time.Second},
		&fakeProvider{stage: models.StageClinicalTrials, delay: 5 * time.Second},
	)
	events := &recorder{}
	o.WithEvents(events)
	stages := []models.StageID{models.StageMarket, models.StageClinicalTrials}

	ec, err := o.Execute(context.Background(), "req-2", onePlan(models.CategoryMarketDiscovery, stages...),
		newIntent(t, models.CategoryMarketDiscovery, stages...))
	require.NoError(t, err)

	for _, s := range stages {
		r, _ := ec.Result(s)
		assert.Equal(t, models.StatusTimeout, r.Status, s)
	}
	assert.Equal(t, []int{0}, ec.View().DegradedGroups())
	assert.Equal(t, 1, events.count(streaming.EventGroupDegraded))

	out, ok := ec.Synthesis()
	require.True(t, ok)
	assert.Equal(t, models.ConfidenceLow, out.ConfidenceLevel)
	assert.Equal(t, models.DecisionConditional, out.Decision)
	assert.Len(t, out.DataGaps, 2)
}

func TestUnregisteredStageIsSkipped(t *testing.T) {
	o := newOrchestrator(t, Config{},
		okProvider(models.StageWebResearch, &models.Payload{Research: &models.ResearchDigest{}}),
	)
	stages := []models.StageID{models.StageWebResearch, models.StageInternalKnowledge}

	ec, err := o.Execute(context.Background(), "req-3", onePlan(models.CategoryStrategicQuestion, stages...),
		newIntent(t, models.CategoryStrategicQuestion, stages...))
	require.NoError(t, err)

	r, ok := ec.Result(models.StageInternalKnowledge)
	require.True(t, ok)
	assert.Equal(t, models.StatusSkipped, r.Status)
	out, _ := ec.Synthesis()
	assert.Equal(t, []string{"internal_knowledge"}, out.DataGaps)
}

func TestGroupsAreSequencedWithPriorResults(t *testing.T) {
	var seen models.View
	market := okProvider(models.StageMarket, &models.Payload{Market: &models.MarketSnapshot{}})
	market.delay = 30 * time.Millisecond
	research := okProvider(models.StageWebResearch, &models.Payload{Research: &models.ResearchDigest{}})
	research.onInvoke = func(q providers.Query) { seen = q.Prior }

	o := newOrchestrator(t, Config{}, market, research)
	plan := models.ExecutionPlan{
		Category: models.CategoryRepurposing,
		Groups: []models.StageGroup{
			{Stages: []models.StageID{models.StageMarket}},
			{Stages: []models.StageID{models.StageWebResearch}},
			{Stages: []models.StageID{models.StageSynthesis}},
		},
	}
	ec, err := o.Execute(context.Background(), "req-4", plan,
		newIntent(t, models.CategoryRepurposing, models.StageMarket, models.StageWebResearch))
	require.NoError(t, err)

	_, ok := seen.Payload(models.StageMarket)
	assert.True(t, ok, "second group should see the first group's payload")
	assert.Equal(t, []models.StageID{models.StageMarket, models.StageWebResearch, models.StageSynthesis}, ec.View().Arrived())
}

func TestStagesRunConcurrently(t *testing.T) {
	stages := []models.StageID{models.StageMarket, models.StageClinicalTrials, models.StagePatent}
	var wg sync.WaitGroup
	wg.Add(len(stages))
	allStarted := make(chan struct{})
	go func() {
		wg.Wait()
		close(allStarted)
	}()

	var ps []providers.Provider
	for _, s := range stages {
		p := &fakeProvider{stage: s, err: errors.New("done")}
		p.onInvoke = func(providers.Query) {
			wg.Done()
			select {
			case <-allStarted:
			case <-time.After(time.Second):
			}
		}
		ps = append(ps, p)
	}
	o := newOrchestrator(t, Config{}, ps...)

	start := time.Now()
	_, err := o.Execute(context.Background(), "req-5", onePlan(models.CategoryCompetitiveAnalysis, stages...),
		newIntent(t, models.CategoryCompetitiveAnalysis, stages...))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestProviderPanicIsContained(t *testing.T) {
	o := newOrchestrator(t, Config{},
		&fakeProvider{stage: models.StageTrade, panicMsg: "nil map"},
		okProvider(models.StageMarket, &models.Payload{Market: &models.MarketSnapshot{}}),
	)
	stages := []models.StageID{models.StageMarket, models.StageTrade}

	ec, err := o.Execute(context.Background(), "req-6", onePlan(models.CategoryMoleculeAnalysis, stages...),
		newIntent(t, models.CategoryMoleculeAnalysis, stages...))
	require.NoError(t, err)

	r, _ := ec.Result(models.StageTrade)
	assert.Equal(t, models.StatusFailed, r.Status)
	assert.Equal(t, models.ErrorUnknown, r.Error)
	assert.Contains(t, r.Message, "nil map")
}

func TestNilPayloadIsFailure(t *testing.T) {
	o := newOrchestrator(t, Config{}, &fakeProvider{stage: models.StageMarket})
	ec, err := o.Execute(context.Background(), "req-7", onePlan(models.CategoryGeneral, models.StageMarket),
		newIntent(t, models.CategoryGeneral, models.StageMarket))
	require.NoError(t, err)
	r, _ := ec.Result(models.StageMarket)
	assert.Equal(t, models.StatusFailed, r.Status)
	assert.Equal(t, models.ErrorUnknown, r.Error)
}

type timeouts map[models.StageID]time.Duration

func (m timeouts) StageTimeout(_ models.Category, s models.StageID) time.Duration { return m[s] }

func TestPerStageTimeoutOverride(t *testing.T) {
	o := newOrchestrator(t, Config{StageTimeout: 5 * time.Second},
		&fakeProvider{stage: models.StageMarket, delay: time.Second},
	)
	o.WithStageTimeouts(timeouts{models.StageMarket: 20 * time.Millisecond})

	ec, err := o.Execute(context.Background(), "req-8", onePlan(models.CategoryGeneral, models.StageMarket),
		newIntent(t, models.CategoryGeneral, models.StageMarket))
	require.NoError(t, err)
	r, _ := ec.Result(models.StageMarket)
	assert.Equal(t, models.StatusTimeout, r.Status)
}

func TestInvalidPlans(t *testing.T) {
	o := newOrchestrator(t, Config{})
	intent := newIntent(t, models.CategoryGeneral, models.StageWebResearch)
	plans := map[string]models.ExecutionPlan{
		"empty":           {},
		"no synthesis":    {Groups: []models.StageGroup{{Stages: []models.StageID{models.StageWebResearch}}}},
		"early synthesis": {Groups: []models.StageGroup{{Stages: []models.StageID{models.StageSynthesis}}, {Stages: []models.StageID{models.StageSynthesis}}}},
	}
	for name, plan := range plans {
		t.Run(name, func(t *testing.T) {
			_, err := o.Execute(context.Background(), "req", plan, intent)
			assert.ErrorIs(t, err, ErrInvalidPlan)
		})
	}
}

type panickingSynth struct{}

func (panickingSynth) Synthesize(context.Context, models.View) models.SynthesisOutput {
	panic("bad synthesis")
}

func TestSynthesisPanicReachesCaller(t *testing.T) {
	reg, err := providers.NewRegistry()
	require.NoError(t, err)
	o := New(Config{}, reg, panickingSynth{}, zaptest.NewLogger(t))
	assert.Panics(t, func() {
		_, _ = o.Execute(context.Background(), "req", onePlan(models.CategoryGeneral, models.StageWebResearch),
			newIntent(t, models.CategoryGeneral, models.StageWebResearch))
	})
}
