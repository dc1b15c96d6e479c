package models

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStageID(t *testing.T) {
	cases := map[string]StageID{
		"market":           StageMarket,
		" Clinical_Trials": StageClinicalTrials,
		"iqvia":            StageMarket,
		"ip":               StagePatent,
		"exim":             StageTrade,
		"web_intelligence": StageWebResearch,
		"internal_docs":    StageInternalKnowledge,
		"synthesis":        StageSynthesis,
	}
	for in, want := range cases {
		got, err := ParseStageID(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStageID("pricing")
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestStageOrdering(t *testing.T) {
	assert.Equal(t, StageSynthesis, AllStages()[len(AllStages())-1])
	assert.NotContains(t, DataStages(), StageSynthesis)
	assert.Less(t, StageMarket.Rank(), StagePatent.Rank())
	assert.Equal(t, -1, StageID("pricing").Rank())
	assert.False(t, StageID("pricing").Valid())
	assert.Equal(t, KindIP, StagePatent.Kind())
	assert.Equal(t, KindResearch, StageInternalKnowledge.Kind())
	assert.Equal(t, ProviderKind(""), StageSynthesis.Kind())
}

func TestNewQueryIntentValidation(t *testing.T) {
	_, err := NewQueryIntent(IntentFields{Category: CategoryGeneral, Confidence: 0.5})
	assert.ErrorIs(t, err, ErrNoStages)

	_, err = NewQueryIntent(IntentFields{Category: CategoryGeneral, RequiredStages: []StageID{StageMarket}, Confidence: 1.2})
	assert.ErrorIs(t, err, ErrConfidenceRange)

	_, err = NewQueryIntent(IntentFields{Category: CategoryGeneral, RequiredStages: []StageID{"pricing"}})
	assert.ErrorIs(t, err, ErrUnknownStage)

	_, err = NewQueryIntent(IntentFields{RequiredStages: []StageID{StageMarket}})
	assert.ErrorIs(t, err, ErrCategoryRequired)
}

func TestQueryIntentIsImmutable(t *testing.T) {
	attrs := map[string]string{AttrDiseaseArea: "diabetes", AttrGeography: ""}
	stages := []StageID{StageMarket, StagePatent, StageMarket}
	intent, err := NewQueryIntent(IntentFields{
		Category:            CategoryMoleculeAnalysis,
		PrimaryEntity:       "metformin",
		SecondaryAttributes: attrs,
		RequiredStages:      stages,
		Confidence:          0.6,
		ResolvedBy:          PathRules,
	})
	require.NoError(t, err)

	attrs[AttrDiseaseArea] = "oncology"
	stages[0] = StageTrade
	got := intent.RequiredStages()
	got[0] = StageTrade
	intent.SecondaryAttributes()[AttrDiseaseArea] = "cns"

	assert.Equal(t, []StageID{StageMarket, StagePatent}, intent.RequiredStages())
	assert.Equal(t, "diabetes", intent.Attribute(AttrDiseaseArea))
	assert.Equal(t, []string{AttrDiseaseArea}, intent.AttributeKeys(), "empty attributes are dropped")
	assert.True(t, intent.Requires(StagePatent))
	assert.False(t, intent.Requires(StageTrade))

	rebuilt, err := NewQueryIntent(intent.Fields())
	require.NoError(t, err)
	assert.Equal(t, intent, rebuilt)
}

func TestQueryIntentJSON(t *testing.T) {
	intent, err := NewQueryIntent(IntentFields{
		Category:          CategoryMoleculeAnalysis,
		PrimaryEntity:     "metformin",
		RequiredStages:    []StageID{StageMarket, StageSynthesis},
		Confidence:        1,
		IsStructuredInput: true,
		ResolvedBy:        PathStructured,
	})
	require.NoError(t, err)

	data, err := json.Marshal(intent)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"category": "molecule_analysis",
		"primaryEntity": "metformin",
		"secondaryAttributes": {},
		"requiredStages": ["market", "synthesis"],
		"confidence": 1,
		"isStructuredInput": true,
		"resolvedBy": "structured"
	}`, string(data))

	var decoded QueryIntent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, intent.Fields(), decoded.Fields())

	assert.ErrorIs(t, json.Unmarshal([]byte(`{"category":"general","requiredStages":[],"confidence":0.5}`), &decoded), ErrNoStages)
}

func TestConfidenceLower(t *testing.T) {
	assert.Equal(t, ConfidenceMedium, ConfidenceHigh.Lower())
	assert.Equal(t, ConfidenceLow, ConfidenceMedium.Lower())
	assert.Equal(t, ConfidenceLow, ConfidenceLow.Lower())
}

func TestExecutionContextFirstWriteWins(t *testing.T) {
	ec := NewExecutionContext("req-1", QueryIntent{})

	assert.True(t, ec.Record(StageResult{StageID: StageMarket, Status: StatusOK, Payload: &Payload{Source: "a"}}))
	assert.False(t, ec.Record(StageResult{StageID: StageMarket, Status: StatusTimeout}))

	r, ok := ec.Result(StageMarket)
	require.True(t, ok)
	assert.Equal(t, StatusOK, r.Status)
}

func TestExecutionContextConcurrentRecord(t *testing.T) {
	ec := NewExecutionContext("req-2", QueryIntent{})
	var wg sync.WaitGroup
	for _, id := range DataStages() {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id StageID, i int) {
				defer wg.Done()
				ec.Record(StageResult{StageID: id, Status: StatusOK, Message: fmt.Sprint(i)})
			}(id, i)
		}
	}
	wg.Wait()

	assert.Len(t, ec.View().Results(), len(DataStages()))
}

func TestViewSnapshot(t *testing.T) {
	ec := NewExecutionContext("req-3", QueryIntent{})
	ec.Record(StageResult{StageID: StagePatent, Status: StatusFailed, Error: ErrorUpstreamUnavailable})
	ec.Record(StageResult{StageID: StageMarket, Status: StatusOK, Payload: &Payload{Source: "iqvia"}})
	ec.MarkGroupDegraded(0)

	view := ec.View()
	ec.Record(StageResult{StageID: StageTrade, Status: StatusOK, Payload: &Payload{}})

	results := view.Results()
	require.Len(t, results, 2)
	assert.Equal(t, StageMarket, results[0].StageID, "results come back in canonical order")
	assert.Equal(t, []StageID{StagePatent, StageMarket}, view.Arrived())

	_, ok := view.Payload(StagePatent)
	assert.False(t, ok)
	p, ok := view.Payload(StageMarket)
	require.True(t, ok)
	assert.Equal(t, "iqvia", p.Source)
	assert.Len(t, view.Successful(), 1)
	assert.Equal(t, []int{0}, view.DegradedGroups())
}

func TestExecutionContextSynthesis(t *testing.T) {
	ec := NewExecutionContext("req-4", QueryIntent{})
	_, ok := ec.Synthesis()
	assert.False(t, ok)

	ec.SetSynthesis(SynthesisOutput{ExecutiveSummary: "summary", Decision: DecisionGo})
	out, ok := ec.Synthesis()
	require.True(t, ok)
	assert.Equal(t, DecisionGo, out.Decision)
}

func TestNewViewDropsDuplicates(t *testing.T) {
	v := NewView(QueryIntent{},
		StageResult{StageID: StageMarket, Status: StatusOK, Payload: &Payload{Source: "first"}},
		StageResult{StageID: StageMarket, Status: StatusFailed},
	)
	p, ok := v.Payload(StageMarket)
	require.True(t, ok)
	assert.Equal(t, "first", p.Source)
}

func TestExecutionPlanHelpers(t *testing.T) {
	plan := ExecutionPlan{Groups: []StageGroup{
		{Stages: []StageID{StageMarket, StagePatent}},
		{Stages: []StageID{StageSynthesis}},
	}}
	assert.Equal(t, []StageID{StageMarket, StagePatent, StageSynthesis}, plan.Stages())
	assert.Equal(t, []StageID{StageMarket, StagePatent}, plan.DataStages())
	assert.Equal(t, 1, plan.GroupOf(StageSynthesis))
	assert.Equal(t, -1, plan.GroupOf(StageTrade))
}
