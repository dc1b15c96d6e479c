package degradation

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		failed, total int
		want          DegradationLevel
	}{
		{0, 4, LevelNone},
		{0, 0, LevelNone},
		{1, 4, LevelMinor},
		{1, 3, LevelModerate},
		{2, 4, LevelModerate},
		{3, 4, LevelSevere},
		{3, 3, LevelSevere},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.failed, tt.total), "%d/%d", tt.failed, tt.total)
	}
}

func view(t *testing.T, results ...models.StageResult) models.View {
	t.Helper()
	intent, err := models.NewQueryIntent(models.IntentFields{
		Category: models.CategoryMoleculeAnalysis,
		RequiredStages: []models.StageID{
			models.StageMarket, models.StageTrade, models.StageClinicalTrials, models.StagePatent, models.StageSynthesis,
		},
		Confidence: 1,
	})
	require.NoError(t, err)
	return models.NewView(intent, results...)
}

func TestAssess(t *testing.T) {
	v := view(t,
		models.StageResult{StageID: models.StageMarket, Status: models.StatusOK, Payload: &models.Payload{}},
		models.StageResult{StageID: models.StageTrade, Status: models.StatusOK, Payload: &models.Payload{}},
		models.StageResult{StageID: models.StageClinicalTrials, Status: models.StatusTimeout},
	)
	r := Assess(v, models.SynthesisOutput{Degraded: true})

	assert.Equal(t, LevelModerate, r.Level)
	assert.Equal(t, 4, r.RequestedStages)
	assert.Equal(t, []string{"clinical_trials", "patent"}, r.FailedStages)
	assert.Equal(t, []string{"clinical_trials"}, r.TimedOutStages)
	assert.True(t, r.SynthesisFallback)
	assert.True(t, r.Partial())
	assert.Contains(t, r.Reason, "generative synthesis unavailable")
	assert.NotEmpty(t, r.RecommendedAction)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"level":"moderate"`)

	var decoded Report
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, LevelModerate, decoded.Level)
	assert.Equal(t, r.FailedStages, decoded.FailedStages)
}

func TestLevelTextRoundTrip(t *testing.T) {
	for _, l := range []DegradationLevel{LevelNone, LevelMinor, LevelModerate, LevelSevere} {
		text, err := l.MarshalText()
		require.NoError(t, err)
		var got DegradationLevel
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, l, got)
	}
	var bad DegradationLevel
	assert.Error(t, bad.UnmarshalText([]byte("catastrophic")))
}

func TestAssessComplete(t *testing.T) {
	var results []models.StageResult
	for _, s := range []models.StageID{models.StageMarket, models.StageTrade, models.StageClinicalTrials, models.StagePatent} {
		results = append(results, models.StageResult{StageID: s, Status: models.StatusOK, Payload: &models.Payload{}})
	}
	r := Assess(view(t, results...), models.SynthesisOutput{})
	assert.Equal(t, LevelNone, r.Level)
	assert.False(t, r.Partial())
	assert.Empty(t, r.Reason)
	assert.Empty(t, r.RecommendedAction)
}

type probe struct{ open atomic.Bool }

func (p *probe) IsCircuitBreakerOpen() bool { return p.open.Load() }

func TestManagerTracksBreakers(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	llm, redis := &probe{}, &probe{}
	m.Register("llm", llm)
	m.Register("redis", redis)
	m.Register("ignored", nil)

	assert.Empty(t, m.OpenDependencies())
	redis.open.Store(true)
	assert.Equal(t, []string{"redis"}, m.OpenDependencies())
	assert.Len(t, m.Dependencies(), 2)

	m.healthCheckInterval = 10 * time.Millisecond
	m.Start(context.Background())
	m.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestManagerRecord(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	r := m.Record(view(t), models.SynthesisOutput{})
	assert.Equal(t, LevelSevere, r.Level)
	assert.False(t, r.Partial())
	assert.Len(t, r.FailedStages, 4)
}
