// Package synthesis turns an execution context into a scored opportunity
// assessment, with a deterministic fallback when the generative backend is
// unavailable.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/llm"
	"github.com/haryshwa05/pharmasynapse/internal/metrics"
	"github.com/haryshwa05/pharmasynapse/internal/models"
	"github.com/haryshwa05/pharmasynapse/internal/tracing"
)

const defaultTimeout = 20 * time.Second

// Synthesizer produces the terminal SynthesisOutput. It is safe for
// concurrent use.
type Synthesizer struct {
	client  llm.Client
	params  Params
	schema  *jsonschema.Schema
	timeout time.Duration
	logger  *zap.Logger
}

// New validates params and builds a synthesizer. A nil client selects
// deterministic mode for every request.
func New(client llm.Client, params Params, timeout time.Duration, logger *zap.Logger) (*Synthesizer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	schema, err := generativeSchema()
	if err != nil {
		return nil, fmt.Errorf("build synthesis schema: %w", err)
	}
	return &Synthesizer{client: client, params: params, schema: schema, timeout: timeout, logger: logger}, nil
}

// Params returns the scoring parameters in use.
func (s *Synthesizer) Params() Params { return s.params }

// Synthesize never fails. Generative errors of any kind switch to the
// deterministic path and mark the output degraded.
func (s *Synthesizer) Synthesize(ctx context.Context, v models.View) models.SynthesisOutput {
	ctx, span := tracing.StartSpan(ctx, "synthesis.synthesize")
	defer span.End()

	base := s.params.Deterministic(v)
	out := base
	if s.client != nil {
		gen, err := s.generate(ctx, v, base)
		if err == nil {
			out = gen
		} else {
			s.logger.Warn("Generative synthesis failed, using deterministic fallback",
				zap.String("category", string(v.Intent().Category())),
				zap.Error(err))
			out.Degraded = true
			out.ConfidenceLevel = s.params.Confidence(v, true)
		}
	}
	metrics.RecordSynthesisMetrics(string(out.Mode), out.FeasibilityScore)
	return out
}

// generativeOutput is the contract the backend must satisfy. The score and
// data gaps are computed locally and never taken from the model.
type generativeOutput struct {
	ExecutiveSummary string                  `json:"executiveSummary" jsonschema:"two to four sentence summary for an executive reader"`
	Insights         []string                `json:"insights" jsonschema:"ordered key findings grounded in the evidence"`
	Recommendations  []models.Recommendation `json:"recommendations" jsonschema:"ordered recommendations, most important first"`
	Decision         string                  `json:"decision" jsonschema:"one of go, no-go, conditional"`
	ConfidenceLevel  string                  `json:"confidenceLevel" jsonschema:"one of low, medium, high"`
}

func generativeSchema() (*jsonschema.Schema, error) {
	s, err := llm.SchemaFor[generativeOutput]()
	if err != nil {
		return nil, err
	}
	llm.Enum(s, "decision", string(models.DecisionGo), string(models.DecisionNoGo), string(models.DecisionConditional))
	llm.Enum(s, "confidenceLevel", string(models.ConfidenceLow), string(models.ConfidenceMedium), string(models.ConfidenceHigh))
	if p, ok := s.Properties["executiveSummary"]; ok {
		minLen := 1
		p.MinLength = &minLen
	}
	if p, ok := s.Properties["recommendations"]; ok && p.Items != nil {
		llm.Enum(p.Items, "priority", string(models.PriorityHigh), string(models.PriorityMedium), string(models.PriorityLow))
	}
	return s, nil
}

const systemPrompt = `You are a pharmaceutical strategy analyst. Using only the evidence provided, write an executive assessment of the opportunity.
The feasibility score has already been computed from the evidence; explain it rather than recompute it.
Do not invent data for sources listed as missing. Reply with JSON only.`

type evidence struct {
	Stage   models.StageID  `json:"stage"`
	Payload *models.Payload `json:"payload"`
}

type promptInput struct {
	Intent           models.QueryIntent `json:"intent"`
	Evidence         []evidence         `json:"evidence"`
	FeasibilityScore *float64           `json:"feasibilityScore,omitempty"`
	SuggestedCall    models.Decision    `json:"suggestedDecision"`
	MissingSources   []string           `json:"missingSources"`
}

func (s *Synthesizer) generate(ctx context.Context, v models.View, base models.SynthesisOutput) (models.SynthesisOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	in := promptInput{
		Intent:           v.Intent(),
		Evidence:         []evidence{},
		FeasibilityScore: base.FeasibilityScore,
		SuggestedCall:    base.Decision,
		MissingSources:   base.DataGaps,
	}
	for _, r := range v.Successful() {
		if r.StageID.IsSynthesis() {
			continue
		}
		in.Evidence = append(in.Evidence, evidence{Stage: r.StageID, Payload: r.Payload})
	}
	user, err := json.Marshal(in)
	if err != nil {
		return models.SynthesisOutput{}, fmt.Errorf("encode prompt: %w", err)
	}

	raw, err := s.client.Complete(ctx, llm.PromptSpec{
		Purpose:     "synthesis",
		System:      systemPrompt,
		User:        string(user),
		Temperature: 0.3,
		MaxTokens:   2048,
	}, s.schema)
	if err != nil {
		return models.SynthesisOutput{}, err
	}
	var g generativeOutput
	if err := json.Unmarshal(raw, &g); err != nil {
		return models.SynthesisOutput{}, fmt.Errorf("%w: %v", llm.ErrMalformed, err)
	}
	if strings.TrimSpace(g.ExecutiveSummary) == "" {
		return models.SynthesisOutput{}, fmt.Errorf("%w: empty executive summary", llm.ErrSchema)
	}
	decision, err := parseDecision(g.Decision)
	if err != nil {
		return models.SynthesisOutput{}, err
	}
	confidence, err := parseConfidence(g.ConfidenceLevel)
	if err != nil {
		return models.SynthesisOutput{}, err
	}
	// The model may be more cautious than the evidence, never less.
	if rank(confidence) > rank(base.ConfidenceLevel) {
		confidence = base.ConfidenceLevel
	}
	insights := g.Insights
	if len(insights) == 0 {
		insights = base.Insights
	}
	recs := g.Recommendations
	if len(recs) == 0 {
		recs = base.Recommendations
	}
	return models.SynthesisOutput{
		ExecutiveSummary: strings.TrimSpace(g.ExecutiveSummary),
		Insights:         insights,
		Recommendations:  recs,
		FeasibilityScore: base.FeasibilityScore,
		Decision:         decision,
		ConfidenceLevel:  confidence,
		DataGaps:         base.DataGaps,
		Mode:             models.ModeGenerative,
	}, nil
}

func parseDecision(s string) (models.Decision, error) {
	switch d := models.Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case models.DecisionGo, models.DecisionNoGo, models.DecisionConditional:
		return d, nil
	default:
		return "", fmt.Errorf("%w: decision %q", llm.ErrSchema, s)
	}
}

func parseConfidence(s string) (models.ConfidenceLevel, error) {
	switch c := models.ConfidenceLevel(strings.ToLower(strings.TrimSpace(s))); c {
	case models.ConfidenceLow, models.ConfidenceMedium, models.ConfidenceHigh:
		return c, nil
	default:
		return "", fmt.Errorf("%w: confidence %q", llm.ErrSchema, s)
	}
}

func rank(c models.ConfidenceLevel) int {
	switch c {
	case models.ConfidenceHigh:
		return 2
	case models.ConfidenceMedium:
		return 1
	default:
		return 0
	}
}
