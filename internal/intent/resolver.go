// Package intent turns a caller's question into a QueryIntent.
package intent

import (
	"context"
	"encoding/json"
	"errors"
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

const (
	DefaultRuleConfidence = 0.6
	defaultModelTimeout   = 8 * time.Second
)

// errLowConfidence rejects a model answer that is no surer than the rules.
var errLowConfidence = errors.New("model confidence not above rule confidence")

// RawQuery is the request as received: a free-text question, a structured
// molecule selection, or both.
type RawQuery struct {
	Question string `json:"query,omitempty"`
	Molecule string `json:"molecule,omitempty"`
	Disease  string `json:"disease,omitempty"`
	Region   string `json:"region,omitempty"`
}

// StageSource supplies the stage list for a category.
type StageSource interface {
	StagesFor(c models.Category) []models.StageID
}

// Options tunes resolution.
type Options struct {
	// RuleConfidence is the confidence assigned to rule-based intents.
	RuleConfidence float64
	// ModelTimeout bounds the generative call.
	ModelTimeout time.Duration
}

// Resolver classifies questions. It is safe for concurrent use.
type Resolver struct {
	stages StageSource
	lex    *Lexicon
	client llm.Client
	schema *jsonschema.Schema
	opts   Options
	logger *zap.Logger
}

// NewResolver builds a resolver. A nil client disables the model path.
func NewResolver(stages StageSource, lex *Lexicon, client llm.Client, opts Options, logger *zap.Logger) (*Resolver, error) {
	if stages == nil {
		return nil, errors.New("intent resolver requires a stage source")
	}
	if lex == nil {
		lex = DefaultLexicon()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RuleConfidence <= 0 || opts.RuleConfidence > 1 {
		opts.RuleConfidence = DefaultRuleConfidence
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = defaultModelTimeout
	}
	schema, err := modelSchema()
	if err != nil {
		return nil, fmt.Errorf("build intent schema: %w", err)
	}
	return &Resolver{stages: stages, lex: lex, client: client, schema: schema, opts: opts, logger: logger}, nil
}

// Resolve never fails on content: every question maps to some category.
// Structured input wins, then the model when configured, then the rules.
func (r *Resolver) Resolve(ctx context.Context, q RawQuery) (models.QueryIntent, error) {
	ctx, span := tracing.StartSpan(ctx, "intent.resolve")
	defer span.End()

	var (
		f   models.IntentFields
		err error
	)
	switch {
	case strings.TrimSpace(q.Molecule) != "":
		f = r.structured(q)
	case r.client != nil && strings.TrimSpace(q.Question) != "":
		f, err = r.model(ctx, q)
		if err != nil {
			reason := fallbackReason(ctx, err)
			metrics.IntentModelFallbacks.WithLabelValues(reason).Inc()
			r.logger.Warn("Model intent resolution failed, using rules",
				zap.String("reason", reason),
				zap.Error(err))
			f = r.rules(q)
		}
	default:
		f = r.rules(q)
	}

	f.RequiredStages = r.stages.StagesFor(f.Category)
	intent, err := models.NewQueryIntent(f)
	if err != nil {
		return models.QueryIntent{}, fmt.Errorf("build intent: %w", err)
	}
	metrics.IntentResolutions.WithLabelValues(string(intent.ResolvedBy()), string(intent.Category())).Inc()
	r.logger.Debug("Intent resolved",
		zap.String("category", string(intent.Category())),
		zap.String("path", string(intent.ResolvedBy())),
		zap.Float64("confidence", intent.Confidence()))
	return intent, nil
}

func (r *Resolver) structured(q RawQuery) models.IntentFields {
	molecule := strings.TrimSpace(q.Molecule)
	question := q.Question
	if strings.TrimSpace(question) == "" {
		question = "Analyze " + molecule
	}
	return models.IntentFields{
		Category:      models.CategoryMoleculeAnalysis,
		PrimaryEntity: molecule,
		SecondaryAttributes: map[string]string{
			models.AttrDiseaseArea: r.diseaseLabel(q.Disease),
			models.AttrGeography:   strings.TrimSpace(q.Region),
			models.AttrYear:        Year(q.Question),
		},
		RawQuestion:       question,
		Confidence:        1.0,
		IsStructuredInput: true,
		ResolvedBy:        models.PathStructured,
	}
}

func (r *Resolver) diseaseLabel(label string) string {
	if strings.TrimSpace(label) == "" {
		return ""
	}
	return r.lex.CanonicalDisease(label)
}

func (r *Resolver) rules(q RawQuery) models.IntentFields {
	question := q.Question
	category := r.lex.Classify(question)
	disease := r.lex.Disease(question)
	if disease == "" {
		disease = r.diseaseLabel(q.Disease)
	}
	geography := r.lex.Geography(question)
	if geography == "" {
		geography = strings.TrimSpace(q.Region)
	}
	attrs := map[string]string{
		models.AttrDiseaseArea: disease,
		models.AttrGeography:   geography,
		models.AttrYear:        Year(question),
	}
	if category == models.CategoryRepurposing {
		attrs[models.AttrIndication] = disease
	}
	return models.IntentFields{
		Category:            category,
		PrimaryEntity:       r.lex.Molecule(question),
		SecondaryAttributes: attrs,
		RawQuestion:         question,
		Confidence:          r.opts.RuleConfidence,
		ResolvedBy:          models.PathRules,
	}
}

// modelIntent is the contract the generative backend must satisfy.
type modelIntent struct {
	Category      string  `json:"category" jsonschema:"one of the listed categories"`
	PrimaryEntity string  `json:"primaryEntity,omitempty" jsonschema:"molecule or drug name, empty when none is mentioned"`
	DiseaseArea   string  `json:"diseaseArea,omitempty" jsonschema:"therapeutic area such as oncology or diabetes"`
	Indication    string  `json:"indication,omitempty" jsonschema:"target indication for repurposing questions"`
	Geography     string  `json:"geography,omitempty" jsonschema:"country or region"`
	Confidence    float64 `json:"confidence" jsonschema:"classification confidence between 0 and 1"`
}

func modelSchema() (*jsonschema.Schema, error) {
	s, err := llm.SchemaFor[modelIntent]()
	if err != nil {
		return nil, err
	}
	cats := make([]string, 0, len(models.Categories()))
	for _, c := range models.Categories() {
		cats = append(cats, string(c))
	}
	llm.Enum(s, "category", cats...)
	if p, ok := s.Properties["confidence"]; ok {
		lo, hi := 0.0, 1.0
		p.Minimum, p.Maximum = &lo, &hi
	}
	return s, nil
}

const systemPrompt = `You are a pharmaceutical intelligence assistant. Classify the user's strategic question and extract entities.
Categories:
- molecule_analysis: analyzing a specific drug or molecule
- market_discovery: finding market opportunities or unmet needs
- repurposing: exploring new indications for an existing molecule
- competitive_analysis: analyzing competition in a space
- strategic_question: general strategic insight
- general: anything else
Reply with JSON only.`

func (r *Resolver) model(ctx context.Context, q RawQuery) (models.IntentFields, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ModelTimeout)
	defer cancel()

	raw, err := r.client.Complete(ctx, llm.PromptSpec{
		Purpose:     "intent",
		System:      systemPrompt,
		User:        q.Question,
		Temperature: 0.1,
		MaxTokens:   256,
	}, r.schema)
	if err != nil {
		return models.IntentFields{}, err
	}
	var mi modelIntent
	if err := json.Unmarshal(raw, &mi); err != nil {
		return models.IntentFields{}, fmt.Errorf("%w: %v", llm.ErrMalformed, err)
	}
	category := models.Category(mi.Category)
	if !category.Known() {
		return models.IntentFields{}, fmt.Errorf("%w: category %q", llm.ErrSchema, mi.Category)
	}
	if mi.Confidence < 0 || mi.Confidence > 1 {
		return models.IntentFields{}, fmt.Errorf("%w: confidence %v", llm.ErrSchema, mi.Confidence)
	}
	if mi.Confidence <= r.opts.RuleConfidence {
		return models.IntentFields{}, fmt.Errorf("%w: %v <= %v", errLowConfidence, mi.Confidence, r.opts.RuleConfidence)
	}

	// Fill whatever the model left out from the rules.
	fallback := r.rules(q)
	pick := func(modelValue, key string) string {
		if v := strings.TrimSpace(modelValue); v != "" {
			return v
		}
		return fallback.SecondaryAttributes[key]
	}
	molecule := strings.TrimSpace(mi.PrimaryEntity)
	if molecule == "" {
		molecule = fallback.PrimaryEntity
	}
	disease := pick(mi.DiseaseArea, models.AttrDiseaseArea)
	if strings.TrimSpace(mi.DiseaseArea) != "" {
		disease = r.lex.CanonicalDisease(mi.DiseaseArea)
	}
	attrs := map[string]string{
		models.AttrDiseaseArea: disease,
		models.AttrGeography:   pick(mi.Geography, models.AttrGeography),
		models.AttrYear:        fallback.SecondaryAttributes[models.AttrYear],
		models.AttrIndication:  strings.TrimSpace(mi.Indication),
	}
	if attrs[models.AttrIndication] == "" && category == models.CategoryRepurposing {
		attrs[models.AttrIndication] = disease
	}
	return models.IntentFields{
		Category:            category,
		PrimaryEntity:       molecule,
		SecondaryAttributes: attrs,
		RawQuestion:         q.Question,
		Confidence:          mi.Confidence,
		ResolvedBy:          models.PathModel,
	}, nil
}

func fallbackReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, errLowConfidence):
		return "low_confidence"
	case errors.Is(err, llm.ErrSchema):
		return "schema"
	case errors.Is(err, llm.ErrMalformed):
		return "malformed"
	default:
		return "backend"
	}
}
