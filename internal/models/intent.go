package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Category is the normalized classification of what a caller is asking.
type Category string

const (
	CategoryMoleculeAnalysis    Category = "molecule_analysis"
	CategoryMarketDiscovery     Category = "market_discovery"
	CategoryRepurposing         Category = "repurposing"
	CategoryStrategicQuestion   Category = "strategic_question"
	CategoryCompetitiveAnalysis Category = "competitive_analysis"

	// CategoryGeneral is the catch-all used for anything unrecognized.
	CategoryGeneral Category = "general"
)

// Categories lists the recognized categories, catch-all last.
func Categories() []Category {
	return []Category{
		CategoryMoleculeAnalysis,
		CategoryMarketDiscovery,
		CategoryRepurposing,
		CategoryStrategicQuestion,
		CategoryCompetitiveAnalysis,
		CategoryGeneral,
	}
}

// Known reports whether c is one of the recognized categories.
func (c Category) Known() bool {
	for _, k := range Categories() {
		if k == c {
			return true
		}
	}
	return false
}

// ResolutionPath records which resolver path produced an intent.
type ResolutionPath string

const (
	PathStructured ResolutionPath = "structured"
	PathModel      ResolutionPath = "model"
	PathRules      ResolutionPath = "rules"
)

// Secondary attribute keys populated by the resolver.
const (
	AttrDiseaseArea = "disease_area"
	AttrGeography   = "geography"
	AttrIndication  = "indication"
	AttrYear        = "year"
)

var (
	ErrNoStages         = errors.New("intent requires at least one stage")
	ErrConfidenceRange  = errors.New("intent confidence must be within [0,1]")
	ErrUnknownStage     = errors.New("intent references an unknown stage")
	ErrCategoryRequired = errors.New("intent category is required")
)

// IntentFields carries the values used to build a QueryIntent.
type IntentFields struct {
	Category            Category
	PrimaryEntity       string
	SecondaryAttributes map[string]string
	RawQuestion         string
	RequiredStages      []StageID
	Confidence          float64
	IsStructuredInput   bool
	ResolvedBy          ResolutionPath
}

// QueryIntent is built once per request and never mutated. Accessors hand
// out copies so callers cannot alter shared state.
type QueryIntent struct {
	category      Category
	primaryEntity string
	attributes    map[string]string
	rawQuestion   string
	stages        []StageID
	confidence    float64
	structured    bool
	resolvedBy    ResolutionPath
}

// NewQueryIntent validates f and freezes it into a QueryIntent.
func NewQueryIntent(f IntentFields) (QueryIntent, error) {
	if f.Category == "" {
		return QueryIntent{}, ErrCategoryRequired
	}
	if len(f.RequiredStages) == 0 {
		return QueryIntent{}, ErrNoStages
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return QueryIntent{}, fmt.Errorf("%w: %v", ErrConfidenceRange, f.Confidence)
	}
	stages := make([]StageID, 0, len(f.RequiredStages))
	seen := make(map[StageID]bool, len(f.RequiredStages))
	for _, s := range f.RequiredStages {
		if !s.Valid() {
			return QueryIntent{}, fmt.Errorf("%w: %q", ErrUnknownStage, s)
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		stages = append(stages, s)
	}
	attrs := make(map[string]string, len(f.SecondaryAttributes))
	for k, v := range f.SecondaryAttributes {
		if v != "" {
			attrs[k] = v
		}
	}
	return QueryIntent{
		category:      f.Category,
		primaryEntity: f.PrimaryEntity,
		attributes:    attrs,
		rawQuestion:   f.RawQuestion,
		stages:        stages,
		confidence:    f.Confidence,
		structured:    f.IsStructuredInput,
		resolvedBy:    f.ResolvedBy,
	}, nil
}

func (q QueryIntent) Category() Category          { return q.category }
func (q QueryIntent) PrimaryEntity() string       { return q.primaryEntity }
func (q QueryIntent) RawQuestion() string         { return q.rawQuestion }
func (q QueryIntent) Confidence() float64         { return q.confidence }
func (q QueryIntent) IsStructuredInput() bool     { return q.structured }
func (q QueryIntent) ResolvedBy() ResolutionPath  { return q.resolvedBy }
func (q QueryIntent) Attribute(key string) string { return q.attributes[key] }

// SecondaryAttributes returns a copy of the extracted attributes.
func (q QueryIntent) SecondaryAttributes() map[string]string {
	out := make(map[string]string, len(q.attributes))
	for k, v := range q.attributes {
		out[k] = v
	}
	return out
}

// RequiredStages returns a copy of the ordered stage list.
func (q QueryIntent) RequiredStages() []StageID {
	out := make([]StageID, len(q.stages))
	copy(out, q.stages)
	return out
}

// Requires reports whether stage s was requested.
func (q QueryIntent) Requires(s StageID) bool {
	for _, id := range q.stages {
		if id == s {
			return true
		}
	}
	return false
}

// Fields returns a mutable copy of the intent's values.
func (q QueryIntent) Fields() IntentFields {
	return IntentFields{
		Category:            q.category,
		PrimaryEntity:       q.primaryEntity,
		SecondaryAttributes: q.SecondaryAttributes(),
		RawQuestion:         q.rawQuestion,
		RequiredStages:      q.RequiredStages(),
		Confidence:          q.confidence,
		IsStructuredInput:   q.structured,
		ResolvedBy:          q.resolvedBy,
	}
}

type intentJSON struct {
	Category            Category          `json:"category"`
	PrimaryEntity       string            `json:"primaryEntity,omitempty"`
	SecondaryAttributes map[string]string `json:"secondaryAttributes"`
	RawQuestion         string            `json:"rawQuestion,omitempty"`
	RequiredStages      []StageID         `json:"requiredStages"`
	Confidence          float64           `json:"confidence"`
	IsStructuredInput   bool              `json:"isStructuredInput"`
	ResolvedBy          ResolutionPath    `json:"resolvedBy,omitempty"`
}

// MarshalJSON implements json.Marshaler. Attribute keys are emitted sorted
// by encoding/json, keeping output stable.
func (q QueryIntent) MarshalJSON() ([]byte, error) {
	return json.Marshal(intentJSON{
		Category:            q.category,
		PrimaryEntity:       q.primaryEntity,
		SecondaryAttributes: q.SecondaryAttributes(),
		RawQuestion:         q.rawQuestion,
		RequiredStages:      q.RequiredStages(),
		Confidence:          q.confidence,
		IsStructuredInput:   q.structured,
		ResolvedBy:          q.resolvedBy,
	})
}

// UnmarshalJSON rebuilds an intent through NewQueryIntent, so decoded
// intents obey the same invariants as constructed ones.
func (q *QueryIntent) UnmarshalJSON(data []byte) error {
	var in intentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out, err := NewQueryIntent(IntentFields(in))
	if err != nil {
		return err
	}
	*q = out
	return nil
}

// AttributeKeys returns the attribute keys in sorted order.
func (q QueryIntent) AttributeKeys() []string {
	keys := make([]string, 0, len(q.attributes))
	for k := range q.attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
