package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haryshwa05/pharmasynapse/internal/models"
	"github.com/haryshwa05/pharmasynapse/internal/templates"
)

type staticRules map[models.Category]map[models.StageID][]models.StageID

func (r staticRules) Dependencies(c models.Category) map[models.StageID][]models.StageID {
	return r[c]
}

func mustIntent(t *testing.T, c models.Category, stages ...models.StageID) models.QueryIntent {
	t.Helper()
	intent, err := models.NewQueryIntent(models.IntentFields{
		Category:       c,
		RequiredStages: stages,
		Confidence:     0.6,
	})
	require.NoError(t, err)
	return intent
}

func TestPlanGroupsDataStagesBeforeSynthesis(t *testing.T) {
	p := New(nil)
	intent := mustIntent(t, models.CategoryRepurposing,
		models.StageClinicalTrials, models.StagePatent, models.StageMarket, models.StageWebResearch, models.StageSynthesis)

	plan, err := p.Plan(intent)
	require.NoError(t, err)

	require.Len(t, plan.Groups, 2)
	assert.Equal(t, []models.StageID{
		models.StageMarket, models.StageClinicalTrials, models.StagePatent, models.StageWebResearch,
	}, plan.Groups[0].Stages)
	assert.Equal(t, []models.StageID{models.StageSynthesis}, plan.Groups[1].Stages)
	assert.Equal(t, models.CategoryRepurposing, plan.Category)
}

func TestPlanAppendsSynthesisWhenOmitted(t *testing.T) {
	plan, err := New(nil).Plan(mustIntent(t, models.CategoryGeneral, models.StageWebResearch))
	require.NoError(t, err)

	require.Len(t, plan.Groups, 2)
	assert.Equal(t, models.StageSynthesis, plan.Stages()[len(plan.Stages())-1])
}

func TestPlanSynthesisOnly(t *testing.T) {
	plan, err := New(nil).Plan(mustIntent(t, models.CategoryGeneral, models.StageSynthesis))
	require.NoError(t, err)

	require.Len(t, plan.Groups, 1)
	assert.Equal(t, []models.StageID{models.StageSynthesis}, plan.Groups[0].Stages)
}

func TestPlanEveryStageExactlyOnce(t *testing.T) {
	reg, err := templates.NewDefaultRegistry("")
	require.NoError(t, err)
	p := New(reg)
	require.NoError(t, p.Validate())

	for _, c := range models.Categories() {
		stages := reg.StagesFor(c)
		plan, err := p.Plan(mustIntent(t, c, stages...))
		require.NoError(t, err, c)

		seen := map[models.StageID]int{}
		for _, id := range plan.Stages() {
			seen[id]++
		}
		for _, id := range stages {
			assert.Equal(t, 1, seen[id], "%s: stage %s", c, id)
		}
		last := plan.Groups[len(plan.Groups)-1]
		assert.Equal(t, []models.StageID{models.StageSynthesis}, last.Stages, c)
		for _, g := range plan.Groups[:len(plan.Groups)-1] {
			assert.False(t, g.Contains(models.StageSynthesis), c)
		}
	}
}

func TestPlanIsIdempotent(t *testing.T) {
	p := New(nil)
	intent := mustIntent(t, models.CategoryMoleculeAnalysis,
		models.StagePatent, models.StageTrade, models.StageMarket, models.StageClinicalTrials)

	first, err := p.Plan(intent)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := p.Plan(intent)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPlanHonoursDeclaredDependencies(t *testing.T) {
	rules := staticRules{
		models.CategoryCompetitiveAnalysis: {
			models.StagePatent: {models.StageMarket},
		},
	}
	plan, err := New(rules).Plan(mustIntent(t, models.CategoryCompetitiveAnalysis,
		models.StageMarket, models.StageClinicalTrials, models.StagePatent))
	require.NoError(t, err)

	require.Len(t, plan.Groups, 3)
	assert.Equal(t, []models.StageID{models.StageMarket, models.StageClinicalTrials}, plan.Groups[0].Stages)
	assert.Equal(t, []models.StageID{models.StagePatent}, plan.Groups[1].Stages)
	assert.Equal(t, 1, plan.GroupOf(models.StagePatent))
}

func TestPlanIgnoresDependenciesOnAbsentStages(t *testing.T) {
	rules := staticRules{
		models.CategoryRepurposing: {
			models.StagePatent: {models.StageMarket},
		},
	}
	plan, err := New(rules).Plan(mustIntent(t, models.CategoryRepurposing, models.StagePatent))
	require.NoError(t, err)

	require.Len(t, plan.Groups, 2)
	assert.Equal(t, []models.StageID{models.StagePatent}, plan.Groups[0].Stages)
}

func TestPlanRejectsCyclicRules(t *testing.T) {
	rules := staticRules{
		models.CategoryGeneral: {
			models.StageMarket: {models.StagePatent},
			models.StagePatent: {models.StageMarket},
		},
	}
	p := New(rules)

	_, err := p.Plan(mustIntent(t, models.CategoryGeneral, models.StageMarket, models.StagePatent))
	require.ErrorIs(t, err, ErrCyclicRules)
	require.ErrorIs(t, p.Validate(), ErrCyclicRules)
}
