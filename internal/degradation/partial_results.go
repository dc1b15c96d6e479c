package degradation

import (
	"strings"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

// Report describes how far one analysis fell short of complete.
type Report struct {
	Level             DegradationLevel `json:"level"`
	FailedStages      []string         `json:"failedStages,omitempty"`
	TimedOutStages    []string         `json:"timedOutStages,omitempty"`
	RequestedStages   int              `json:"requestedStages"`
	DegradedGroups    []int            `json:"degradedGroups,omitempty"`
	SynthesisFallback bool             `json:"synthesisFallback"`
	Reason            string           `json:"reason,omitempty"`
	RecommendedAction string           `json:"recommendedAction,omitempty"`
}

// Partial reports whether some but not all evidence was gathered.
func (r Report) Partial() bool {
	return r.Level != LevelNone && len(r.FailedStages) < r.RequestedStages
}

// Assess builds the report for a finished execution.
func Assess(v models.View, out models.SynthesisOutput) Report {
	r := Report{
		DegradedGroups:    v.DegradedGroups(),
		SynthesisFallback: out.Degraded,
	}
	for _, s := range v.Intent().RequiredStages() {
		if s.IsSynthesis() {
			continue
		}
		r.RequestedStages++
		res, ok := v.Result(s)
		if ok && res.OK() {
			continue
		}
		r.FailedStages = append(r.FailedStages, string(s))
		if ok && res.Status == models.StatusTimeout {
			r.TimedOutStages = append(r.TimedOutStages, string(s))
		}
	}
	r.Level = Classify(len(r.FailedStages), r.RequestedStages)

	var reasons []string
	if len(r.FailedStages) > 0 {
		reasons = append(reasons, "unavailable: "+strings.Join(r.FailedStages, ", "))
	}
	if r.SynthesisFallback {
		reasons = append(reasons, "generative synthesis unavailable")
	}
	r.Reason = strings.Join(reasons, "; ")
	r.RecommendedAction = recommendedAction(r.Level, r.SynthesisFallback)
	return r
}

func recommendedAction(level DegradationLevel, fallback bool) string {
	switch level {
	case LevelMinor:
		return "Results are largely complete; confirm the missing source before acting"
	case LevelModerate:
		return "Treat conclusions as provisional and retry the failed sources"
	case LevelSevere:
		return "Insufficient evidence; retry later before relying on this analysis"
	}
	if fallback {
		return "Narrative was produced by rules; review it before sharing"
	}
	return ""
}
