package synthesis

import (
	"fmt"
	"strings"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

// Signal is one graded input to the feasibility score.
type Signal struct {
	Level          string
	Score          float64
	Interpretation string
}

// MarketAssessment grades a market snapshot.
type MarketAssessment struct {
	Signal
	Size   string
	Growth string
}

// Signals are the graded inputs present in a view. Absent inputs are nil.
type Signals struct {
	Trial  *Signal
	FTO    *Signal
	Market *MarketAssessment

	TrialCount    int
	ActivePatents int
}

func availablePayload(v models.View, s models.StageID) (*models.Payload, bool) {
	p, ok := v.Payload(s)
	if !ok || !p.Available {
		return nil, false
	}
	return p, true
}

// ExtractSignals grades the trial, patent and market payloads in v.
func (p Params) ExtractSignals(v models.View) Signals {
	var s Signals
	if pl, ok := availablePayload(v, models.StageClinicalTrials); ok && pl.Trials != nil {
		s.TrialCount = pl.Trials.Total
		l := lookup(p.TrialLevels, pl.Trials.Total)
		s.Trial = &Signal{
			Level:          l.Label,
			Score:          l.Score,
			Interpretation: capitalize(l.Label) + " clinical interest in this indication",
		}
	}
	if pl, ok := availablePayload(v, models.StagePatent); ok && pl.Patents != nil {
		s.ActivePatents = pl.Patents.Active
		l := lookup(p.FTOLevels, pl.Patents.Active)
		s.FTO = &Signal{
			Level:          l.Label,
			Score:          l.Score,
			Interpretation: fmt.Sprintf("Freedom-to-operate: %s (%d active patents)", l.Label, pl.Patents.Active),
		}
	}
	if pl, ok := availablePayload(v, models.StageMarket); ok && pl.Market != nil {
		m := p.AssessMarket(*pl.Market)
		s.Market = &m
	}
	return s
}

// AssessMarket grades size and growth. Attractiveness is high when the
// market is neither small nor slow-growing, low when it is both, and
// moderate otherwise.
func (p Params) AssessMarket(m models.MarketSnapshot) MarketAssessment {
	t := p.Market
	size := "small"
	switch {
	case m.MarketSizeUSD > t.LargeSizeUSD:
		size = "large"
	case m.MarketSizeUSD > t.MediumSizeUSD:
		size = "medium"
	}
	growth := "low"
	switch {
	case m.GrowthPct > t.HighGrowthPct:
		growth = "high"
	case m.GrowthPct > t.ModerateGrowthPct:
		growth = "moderate"
	}
	level, score := "moderate", t.ModerateScore
	switch {
	case size != "small" && growth != "low":
		level, score = "high", t.HighScore
	case size == "small" && growth == "low":
		level, score = "low", t.LowScore
	}
	return MarketAssessment{
		Signal: Signal{
			Level:          level,
			Score:          score,
			Interpretation: fmt.Sprintf("%s market with %s growth", capitalize(size), growth),
		},
		Size:   size,
		Growth: growth,
	}
}

// Score is the weighted mean of the present signals, with weights
// renormalized over them. It is nil when no signal is present.
func (p Params) Score(s Signals) *float64 {
	var sum, weight float64
	if s.Trial != nil {
		sum += p.Weights.Trial * s.Trial.Score
		weight += p.Weights.Trial
	}
	if s.FTO != nil {
		sum += p.Weights.FTO * s.FTO.Score
		weight += p.Weights.FTO
	}
	if s.Market != nil {
		sum += p.Weights.Market * s.Market.Score
		weight += p.Weights.Market
	}
	if weight == 0 {
		return nil
	}
	score := sum / weight
	return &score
}

// Decide maps a score to a decision. A nil score is conditional.
func (p Params) Decide(score *float64) models.Decision {
	switch {
	case score == nil:
		return models.DecisionConditional
	case *score >= p.GoThreshold:
		return models.DecisionGo
	case *score >= p.ConditionalThreshold:
		return models.DecisionConditional
	default:
		return models.DecisionNoGo
	}
}

// Confidence grades the share of requested data stages that returned
// available data. A degraded synthesis drops one level.
func (p Params) Confidence(v models.View, degraded bool) models.ConfidenceLevel {
	requested := requestedDataStages(v.Intent())
	level := models.ConfidenceLow
	if len(requested) > 0 {
		ok := 0
		for _, s := range requested {
			if _, found := availablePayload(v, s); found {
				ok++
			}
		}
		frac := float64(ok) / float64(len(requested))
		switch {
		case frac >= p.HighConfidence:
			level = models.ConfidenceHigh
		case frac >= p.MediumConfidence:
			level = models.ConfidenceMedium
		}
	}
	if degraded {
		level = level.Lower()
	}
	return level
}

// DataGaps lists requested data stages that did not return available data,
// in request order.
func DataGaps(v models.View) []string {
	gaps := []string{}
	for _, s := range requestedDataStages(v.Intent()) {
		if _, ok := availablePayload(v, s); ok {
			continue
		}
		gaps = append(gaps, string(s))
	}
	return gaps
}

func requestedDataStages(intent models.QueryIntent) []models.StageID {
	var out []models.StageID
	for _, s := range intent.RequiredStages() {
		if !s.IsSynthesis() {
			out = append(out, s)
		}
	}
	return out
}

// CompetitionLevel grades competition by the number of top products.
func CompetitionLevel(products int) string {
	switch {
	case products == 0:
		return "none"
	case products < 3:
		return "low"
	case products < 10:
		return "moderate"
	default:
		return "high"
	}
}

var diseaseNeeds = []struct {
	key   string
	needs []string
}{
	{"nafld", []string{
		"No FDA-approved therapies for NAFLD/NASH",
		"Growing patient population due to obesity epidemic",
		"Need for non-invasive treatment options",
	}},
	{"diabetes", []string{
		"Need for therapies addressing cardiovascular outcomes",
		"Better tolerability profiles required",
	}},
	{"oncology", []string{
		"Need for targeted therapies with fewer side effects",
		"Resistance to current standard of care",
	}},
}

var genericNeeds = []string{
	"Efficacy gaps in current treatment options",
	"Safety and tolerability concerns with existing therapies",
	"Patient convenience and adherence challenges",
}

// UnmetNeeds derives unmet needs from trial activity, market growth and
// the disease area.
func UnmetNeeds(indication string, s Signals, growthPct *float64) []string {
	var needs []string
	area := indication
	if area == "" {
		area = "this area"
	}
	if s.Trial != nil && s.TrialCount < 10 {
		needs = append(needs, "Limited therapeutic development activity in "+area)
	}
	if growthPct != nil && *growthPct > 15 {
		needs = append(needs, "High market growth indicates significant unmet patient needs")
	}
	lower := strings.ToLower(indication)
	for _, d := range diseaseNeeds {
		if lower != "" && strings.Contains(lower, d.key) {
			needs = append(needs, d.needs...)
			break
		}
	}
	if len(needs) == 0 {
		return append([]string(nil), genericNeeds...)
	}
	return needs
}

// Recommendations derives next steps from the score and FTO level.
func (p Params) Recommendations(score *float64, s Signals, area string) []models.Recommendation {
	if area == "" {
		area = "the target indication"
	}
	var recs []models.Recommendation
	if score != nil {
		switch {
		case *score > p.GoThreshold:
			recs = append(recs, models.Recommendation{
				Priority:  models.PriorityHigh,
				Action:    "Advance to preclinical validation",
				Rationale: fmt.Sprintf("Feasibility score %.2f marks a strong candidate", *score),
			})
		case *score > 0.5:
			recs = append(recs, models.Recommendation{
				Priority:  models.PriorityMedium,
				Action:    "Conduct deeper mechanism-of-action studies",
				Rationale: fmt.Sprintf("Feasibility score %.2f shows moderate potential", *score),
			})
		default:
			recs = append(recs, models.Recommendation{
				Priority:  models.PriorityHigh,
				Action:    "Consider alternative molecules or indications",
				Rationale: fmt.Sprintf("Feasibility score %.2f is low", *score),
			})
		}
	}
	if s.FTO != nil && s.FTO.Level == lastLevel(p.FTOLevels).Label {
		recs = append(recs, models.Recommendation{
			Priority:  models.PriorityHigh,
			Action:    "Conduct detailed FTO analysis and consider differentiated formulations",
			Rationale: s.FTO.Interpretation,
		})
	}
	recs = append(recs,
		models.Recommendation{
			Priority:  models.PriorityMedium,
			Action:    "Initiate market research and KOL engagement in " + area,
			Rationale: "Validate demand and clinical practice assumptions with practitioners",
		},
		models.Recommendation{
			Priority:  models.PriorityMedium,
			Action:    "Design a proof-of-concept study with biomarkers aligned to mechanism",
			Rationale: "Generate early evidence before committing development budget",
		},
	)
	return recs
}

func lastLevel(levels []Level) Level {
	if len(levels) == 0 {
		return Level{}
	}
	return levels[len(levels)-1]
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
