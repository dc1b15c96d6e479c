package providers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/haryshwa05/pharmasynapse/internal/cache"
	"github.com/haryshwa05/pharmasynapse/internal/models"
)

type stubProvider struct {
	stage   models.StageID
	calls   atomic.Int32
	payload *models.Payload
	err     error
}

func (s *stubProvider) Stage() models.StageID     { return s.stage }
func (s *stubProvider) Kind() models.ProviderKind { return s.stage.Kind() }

func (s *stubProvider) Invoke(_ context.Context, _ Query) (*models.Payload, error) {
	s.calls.Add(1)
	return s.payload, s.err
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.ErrorKind
	}{
		{"nil", nil, ""},
		{"typed", NewError(models.StagePatent, models.ErrorInvalidInput, "op", nil), models.ErrorInvalidInput},
		{"wrapped typed", fmt.Errorf("outer: %w", NewError(models.StageMarket, models.ErrorUpstreamUnavailable, "", nil)), models.ErrorUpstreamUnavailable},
		{"deadline", context.DeadlineExceeded, models.ErrorTimeout},
		{"canceled", context.Canceled, models.ErrorTimeout},
		{"sentinel", fmt.Errorf("x: %w", ErrUpstreamUnavailable), models.ErrorUpstreamUnavailable},
		{"plain", errors.New("boom"), models.ErrorUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorMatchesSentinel(t *testing.T) {
	err := NewError(models.StageClinicalTrials, models.ErrorTimeout, "studies", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "clinical_trials")
	assert.Contains(t, err.Error(), "studies")
}

func TestRegistry(t *testing.T) {
	market := &stubProvider{stage: models.StageMarket}
	patent := &stubProvider{stage: models.StagePatent}

	r, err := NewRegistry(patent, market)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []models.StageID{models.StageMarket, models.StagePatent}, r.Stages())

	got, ok := r.Get(models.StagePatent)
	require.True(t, ok)
	assert.Same(t, patent, got)
	_, ok = r.Get(models.StageTrade)
	assert.False(t, ok)

	_, err = NewRegistry(market, &stubProvider{stage: models.StageMarket})
	assert.Error(t, err, "duplicate stage")
	_, err = NewRegistry(&stubProvider{stage: models.StageSynthesis})
	assert.Error(t, err, "synthesis has no provider")
	_, err = NewRegistry(&stubProvider{stage: "bogus"})
	assert.Error(t, err)
}

func TestNewQueryFromIntent(t *testing.T) {
	intent, err := models.NewQueryIntent(models.IntentFields{
		Category:      models.CategoryRepurposing,
		PrimaryEntity: " Metformin ",
		SecondaryAttributes: map[string]string{
			models.AttrDiseaseArea: "NAFLD",
			models.AttrGeography:   "India",
			models.AttrYear:        "2024",
		},
		RawQuestion:    "Can metformin be repurposed for NAFLD?",
		RequiredStages: []models.StageID{models.StageClinicalTrials, models.StageSynthesis},
		Confidence:     0.9,
	})
	require.NoError(t, err)

	q := NewQuery("req-1", intent, models.View{})
	assert.Equal(t, "Metformin", q.Molecule)
	assert.Equal(t, "NAFLD", q.Disease)
	assert.Equal(t, "India", q.Geography)
	assert.Equal(t, 2024, q.Year)
	assert.Equal(t, "Metformin", q.Term())
	assert.Equal(t, "Metformin NAFLD", q.Scope())

	assert.Equal(t, "which gaps exist?", Query{Question: "which gaps exist?"}.Term())
	assert.Equal(t, "oncology", Query{Disease: "oncology", Question: "q"}.Scope())
}

func TestWithCacheServesRepeatQueries(t *testing.T) {
	stub := &stubProvider{
		stage:   models.StageMarket,
		payload: &models.Payload{Source: "stub", Summary: "ok", Available: true},
	}
	p := WithCache(stub, cache.NewLocalLRU(16), time.Minute, zaptest.NewLogger(t))
	q := Query{Molecule: "metformin"}

	first, err := p.Invoke(context.Background(), q)
	require.NoError(t, err)
	second, err := p.Invoke(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, int32(1), stub.calls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, models.StageMarket, p.Stage())

	_, err = p.Invoke(context.Background(), Query{Molecule: "aspirin"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), stub.calls.Load(), "different query misses")
}

func TestWithCacheSkipsUnavailableAndErrors(t *testing.T) {
	stub := &stubProvider{stage: models.StagePatent, payload: &models.Payload{Available: false}}
	p := WithCache(stub, cache.NewLocalLRU(16), time.Minute, nil)
	for i := 0; i < 2; i++ {
		_, err := p.Invoke(context.Background(), Query{Molecule: "x"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), stub.calls.Load())

	failing := &stubProvider{stage: models.StageTrade, err: NewError(models.StageTrade, models.ErrorUnknown, "", nil)}
	p = WithCache(failing, cache.NewLocalLRU(16), time.Minute, nil)
	for i := 0; i < 2; i++ {
		_, err := p.Invoke(context.Background(), Query{Molecule: "x"})
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), failing.calls.Load())
}

func TestWithCacheDisabled(t *testing.T) {
	stub := &stubProvider{stage: models.StageMarket}
	assert.Same(t, Provider(stub), WithCache(stub, nil, time.Minute, nil))
	assert.Same(t, Provider(stub), WithCache(stub, cache.NewLocalLRU(1), 0, nil))
}

func TestBuildRegistersEnabledProviders(t *testing.T) {
	r, err := Build(Settings{Disabled: []string{"exim"}}, DefaultDataset(), nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 5, r.Len())
	_, ok := r.Get(models.StageTrade)
	assert.False(t, ok)

	_, err = Build(Settings{Disabled: []string{"nope"}}, DefaultDataset(), nil, nil)
	assert.ErrorIs(t, err, models.ErrUnknownStage)
}
