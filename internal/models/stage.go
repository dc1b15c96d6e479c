package models

import (
	"fmt"
	"strings"
)

// StageID identifies one unit of work in an analysis pipeline. The set is
// closed: adding a stage requires a new provider and a redeploy.
type StageID string

const (
	StageMarket            StageID = "market"
	StageClinicalTrials    StageID = "clinical_trials"
	StagePatent            StageID = "patent"
	StageTrade             StageID = "trade"
	StageWebResearch       StageID = "web_research"
	StageInternalKnowledge StageID = "internal_knowledge"
	StageSynthesis         StageID = "synthesis"
)

// canonicalOrder fixes the position of every stage so plans are stable
// regardless of how a template lists its stages.
var canonicalOrder = []StageID{
	StageMarket,
	StageClinicalTrials,
	StagePatent,
	StageTrade,
	StageWebResearch,
	StageInternalKnowledge,
	StageSynthesis,
}

// stageAliases maps names used by upstream vendors and older clients.
var stageAliases = map[string]StageID{
	"iqvia":                 StageMarket,
	"market_data":           StageMarket,
	"trials":                StageClinicalTrials,
	"clinical":              StageClinicalTrials,
	"patents":               StagePatent,
	"ip":                    StagePatent,
	"exim":                  StageTrade,
	"web_intelligence":      StageWebResearch,
	"research":              StageWebResearch,
	"internal":              StageInternalKnowledge,
	"internal_docs":         StageInternalKnowledge,
	"strategic_opportunity": StageSynthesis,
}

// AllStages returns every known stage in canonical order.
func AllStages() []StageID {
	out := make([]StageID, len(canonicalOrder))
	copy(out, canonicalOrder)
	return out
}

// DataStages returns every stage backed by a provider.
func DataStages() []StageID {
	return AllStages()[:len(canonicalOrder)-1]
}

// ParseStageID accepts canonical names and known aliases.
func ParseStageID(s string) (StageID, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, id := range canonicalOrder {
		if string(id) == key {
			return id, nil
		}
	}
	if id, ok := stageAliases[key]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStage, s)
}

// Valid reports whether s is one of the enumerated stages.
func (s StageID) Valid() bool {
	return s.Rank() >= 0
}

// IsSynthesis reports whether s is the terminal synthesis stage.
func (s StageID) IsSynthesis() bool { return s == StageSynthesis }

// Rank is the canonical position of s, or -1 when unknown.
func (s StageID) Rank() int {
	for i, id := range canonicalOrder {
		if id == s {
			return i
		}
	}
	return -1
}

// Kind returns the provider kind serving s. Synthesis has no provider kind.
func (s StageID) Kind() ProviderKind {
	switch s {
	case StageMarket:
		return KindMarket
	case StageClinicalTrials:
		return KindTrial
	case StagePatent:
		return KindIP
	case StageTrade:
		return KindTrade
	case StageWebResearch, StageInternalKnowledge:
		return KindResearch
	default:
		return ""
	}
}

// ProviderKind enumerates the provider families sharing the invoke contract.
type ProviderKind string

const (
	KindMarket   ProviderKind = "market"
	KindTrial    ProviderKind = "trial"
	KindIP       ProviderKind = "ip"
	KindTrade    ProviderKind = "trade"
	KindResearch ProviderKind = "research"
)

// StageStatus is the terminal state of one stage invocation.
type StageStatus string

const (
	StatusOK      StageStatus = "ok"
	StatusFailed  StageStatus = "failed"
	StatusSkipped StageStatus = "skipped"
	StatusTimeout StageStatus = "timeout"
)

// ErrorKind classifies why a stage did not return data.
type ErrorKind string

const (
	ErrorTimeout             ErrorKind = "timeout"
	ErrorUpstreamUnavailable ErrorKind = "upstream_unavailable"
	ErrorInvalidInput        ErrorKind = "invalid_input"
	ErrorUnknown             ErrorKind = "unknown"
)
