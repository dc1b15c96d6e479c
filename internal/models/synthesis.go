package models

// Decision is the go/no-go call on an opportunity.
type Decision string

const (
	DecisionGo          Decision = "go"
	DecisionNoGo        Decision = "no-go"
	DecisionConditional Decision = "conditional"
)

// ConfidenceLevel grades how much of the requested evidence was available.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// Lower returns the next level down; low stays low.
func (c ConfidenceLevel) Lower() ConfidenceLevel {
	switch c {
	case ConfidenceHigh:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// SynthesisMode records which synthesizer path produced an output.
type SynthesisMode string

const (
	ModeGenerative    SynthesisMode = "generative"
	ModeDeterministic SynthesisMode = "deterministic"
)

// Priority ranks a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Recommendation is one actionable next step.
type Recommendation struct {
	Priority  Priority `json:"priority" jsonschema:"one of high, medium, low"`
	Action    string   `json:"action" jsonschema:"the concrete next step"`
	Rationale string   `json:"rationale" jsonschema:"why this step follows from the evidence"`
}

// SynthesisOutput is the terminal result of one analysis.
type SynthesisOutput struct {
	ExecutiveSummary string           `json:"executiveSummary" jsonschema:"two to four sentence summary for an executive reader"`
	Insights         []string         `json:"insights" jsonschema:"ordered key findings"`
	Recommendations  []Recommendation `json:"recommendations" jsonschema:"ordered recommendations"`
	FeasibilityScore *float64         `json:"feasibilityScore,omitempty" jsonschema:"weighted feasibility score in [0,1]"`
	Decision         Decision         `json:"decision" jsonschema:"one of go, no-go, conditional"`
	ConfidenceLevel  ConfidenceLevel  `json:"confidenceLevel" jsonschema:"one of low, medium, high"`
	DataGaps         []string         `json:"dataGaps" jsonschema:"stage ids whose data was unavailable"`
	Mode             SynthesisMode    `json:"mode,omitempty" jsonschema:"synthesis path, set by the server"`
	Degraded         bool             `json:"degraded,omitempty" jsonschema:"true when the generative path was unavailable"`
}
