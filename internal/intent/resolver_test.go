package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/haryshwa05/pharmasynapse/internal/llm"
	"github.com/haryshwa05/pharmasynapse/internal/models"
	"github.com/haryshwa05/pharmasynapse/internal/templates"
)

type fakeClient struct {
	reply string
	err   error
	delay time.Duration
	calls int
}

func (f *fakeClient) Complete(ctx context.Context, _ llm.PromptSpec, schema *jsonschema.Schema) (json.RawMessage, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", llm.ErrBackend, ctx.Err())
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	raw := json.RawMessage(f.reply)
	if schema != nil {
		if err := llm.Validate(raw, schema); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func newResolver(t *testing.T, client llm.Client) *Resolver {
	t.Helper()
	reg, err := templates.NewDefaultRegistry("")
	require.NoError(t, err)
	r, err := NewResolver(reg, DefaultLexicon(), client, Options{ModelTimeout: 200 * time.Millisecond}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func TestRuleResolution(t *testing.T) {
	tests := []struct {
		question  string
		category  models.Category
		molecule  string
		disease   string
		geography string
	}{
		{"Which respiratory diseases show low competition in India?", models.CategoryMarketDiscovery, "", "Respiratory", "India"},
		{"Is metformin suitable for NAFLD repurposing?", models.CategoryRepurposing, "Metformin", "NAFLD", ""},
		{"Analyze metformin for diabetes in US market", models.CategoryMoleculeAnalysis, "Metformin", "Diabetes", "US"},
		{"What are the unmet needs in oncology?", models.CategoryMarketDiscovery, "", "Oncology", ""},
		{"Who are the key players in statins?", models.CategoryCompetitiveAnalysis, "", "", ""},
		{"Omeprazole pricing outlook", models.CategoryStrategicQuestion, "Omeprazole", "", ""},
		{"How should we prioritise our pipeline?", models.CategoryStrategicQuestion, "", "", ""},
	}
	r := newResolver(t, nil)
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), RawQuery{Question: tt.question})
			require.NoError(t, err)
			assert.Equal(t, tt.category, got.Category())
			assert.Equal(t, tt.molecule, got.PrimaryEntity())
			assert.Equal(t, tt.disease, got.Attribute(models.AttrDiseaseArea))
			assert.Equal(t, tt.geography, got.Attribute(models.AttrGeography))
			assert.Equal(t, models.PathRules, got.ResolvedBy())
			assert.Equal(t, DefaultRuleConfidence, got.Confidence())
			assert.Equal(t, tt.question, got.RawQuestion())
		})
	}
}

func TestRulesAvoidPartialWordMatches(t *testing.T) {
	r := newResolver(t, nil)
	got, err := r.Resolve(context.Background(), RawQuery{Question: "Focus the houseplant business"})
	require.NoError(t, err)
	assert.Empty(t, got.Attribute(models.AttrGeography))
}

func TestRepurposingSetsIndication(t *testing.T) {
	r := newResolver(t, nil)
	got, err := r.Resolve(context.Background(), RawQuery{Question: "Could metformin be repurposed for fatty liver in 2024?"})
	require.NoError(t, err)
	assert.Equal(t, models.CategoryRepurposing, got.Category())
	assert.Equal(t, "NAFLD", got.Attribute(models.AttrIndication))
	assert.Equal(t, "2024", got.Attribute(models.AttrYear))
	assert.Equal(t, []models.StageID{
		models.StageClinicalTrials, models.StagePatent, models.StageMarket, models.StageWebResearch, models.StageSynthesis,
	}, got.RequiredStages())
}

func TestStructuredInputSkipsModel(t *testing.T) {
	client := &fakeClient{reply: `{"category":"general","confidence":0.9}`}
	r := newResolver(t, client)

	got, err := r.Resolve(context.Background(), RawQuery{Molecule: " metformin ", Disease: "diabetic", Region: "India"})
	require.NoError(t, err)
	assert.Zero(t, client.calls)
	assert.Equal(t, models.CategoryMoleculeAnalysis, got.Category())
	assert.Equal(t, "metformin", got.PrimaryEntity())
	assert.Equal(t, "Diabetes", got.Attribute(models.AttrDiseaseArea))
	assert.Equal(t, "India", got.Attribute(models.AttrGeography))
	assert.Equal(t, 1.0, got.Confidence())
	assert.True(t, got.IsStructuredInput())
	assert.Equal(t, models.PathStructured, got.ResolvedBy())
	assert.Equal(t, "Analyze metformin", got.RawQuestion())
	assert.Equal(t, models.StageSynthesis, got.RequiredStages()[len(got.RequiredStages())-1])
}

func TestModelResolutionMergesRuleEntities(t *testing.T) {
	client := &fakeClient{reply: `{"category":"repurposing","diseaseArea":"non-alcoholic fatty liver disease","confidence":0.92}`}
	r := newResolver(t, client)

	got, err := r.Resolve(context.Background(), RawQuery{Question: "Is metformin worth exploring for fatty liver in Japan?"})
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, models.PathModel, got.ResolvedBy())
	assert.Equal(t, models.CategoryRepurposing, got.Category())
	assert.InDelta(t, 0.92, got.Confidence(), 1e-9)
	assert.Equal(t, "Metformin", got.PrimaryEntity(), "filled from rules")
	assert.Equal(t, "NAFLD", got.Attribute(models.AttrDiseaseArea))
	assert.Equal(t, "NAFLD", got.Attribute(models.AttrIndication))
	assert.Equal(t, "Japan", got.Attribute(models.AttrGeography))
}

func TestModelFailuresFallBackToRules(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"backend error", &fakeClient{err: fmt.Errorf("%w: HTTP 503", llm.ErrBackend)}},
		{"malformed", &fakeClient{err: fmt.Errorf("%w: invalid JSON", llm.ErrMalformed)}},
		{"schema violation", &fakeClient{reply: `{"category":"astrology","confidence":0.9}`}},
		{"confidence out of range", &fakeClient{reply: `{"category":"general","confidence":7}`}},
		{"less sure than rules", &fakeClient{reply: `{"category":"general","confidence":0.3}`}},
		{"as sure as rules", &fakeClient{reply: `{"category":"general","confidence":0.6}`}},
		{"timeout", &fakeClient{delay: time.Second, reply: `{"category":"general","confidence":0.9}`}},
		{"unexpected", &fakeClient{err: errors.New("boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, tt.client)
			got, err := r.Resolve(context.Background(), RawQuery{Question: "Is metformin suitable for NAFLD repurposing?"})
			require.NoError(t, err)
			assert.Equal(t, models.PathRules, got.ResolvedBy())
			assert.Equal(t, models.CategoryRepurposing, got.Category())
			assert.Equal(t, DefaultRuleConfidence, got.Confidence())
		})
	}
}

func TestResolveIsTotal(t *testing.T) {
	r := newResolver(t, nil)
	for _, q := range []RawQuery{{}, {Question: "   "}, {Question: "???"}, {Question: "日本の市場"}} {
		got, err := r.Resolve(context.Background(), q)
		require.NoError(t, err)
		assert.True(t, got.Category().Known())
		stages := got.RequiredStages()
		require.NotEmpty(t, stages)
		assert.Equal(t, models.StageSynthesis, stages[len(stages)-1])
	}
}

func TestNewResolverValidation(t *testing.T) {
	_, err := NewResolver(nil, nil, nil, Options{}, nil)
	assert.Error(t, err)

	reg, err := templates.NewDefaultRegistry("")
	require.NoError(t, err)
	r, err := NewResolver(reg, nil, nil, Options{RuleConfidence: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRuleConfidence, r.opts.RuleConfidence)
}

func TestModelSchemaRestrictsCategories(t *testing.T) {
	s, err := modelSchema()
	require.NoError(t, err)
	assert.Len(t, s.Properties["category"].Enum, len(models.Categories()))
	assert.NoError(t, llm.Validate(json.RawMessage(`{"category":"general","confidence":0.5}`), s))
	assert.ErrorIs(t, llm.Validate(json.RawMessage(`{"category":"general","confidence":1.5}`), s), llm.ErrSchema)
	assert.ErrorIs(t, llm.Validate(json.RawMessage(`{"confidence":0.5}`), s), llm.ErrSchema)
}
