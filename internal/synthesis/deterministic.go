package synthesis

import (
	"fmt"
	"strings"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

// Deterministic builds the rule-based synthesis for v. It reads nothing but
// v and p, so identical inputs always produce identical output.
func (p Params) Deterministic(v models.View) models.SynthesisOutput {
	intent := v.Intent()
	signals := p.ExtractSignals(v)
	score := p.Score(signals)
	decision := p.Decide(score)

	out := models.SynthesisOutput{
		Insights:         p.insights(v, signals),
		Recommendations:  p.Recommendations(score, signals, target(intent)),
		FeasibilityScore: score,
		Decision:         decision,
		ConfidenceLevel:  p.Confidence(v, false),
		DataGaps:         DataGaps(v),
		Mode:             models.ModeDeterministic,
	}
	out.ExecutiveSummary = summarize(v, score, decision, out.DataGaps)
	return out
}

func (p Params) insights(v models.View, s Signals) []string {
	intent := v.Intent()
	var out []string
	if s.Trial != nil {
		out = append(out, s.Trial.Interpretation)
	}
	if s.FTO != nil {
		out = append(out, s.FTO.Interpretation)
	}
	if s.Market != nil {
		out = append(out, s.Market.Interpretation)
	}

	var growth *float64
	if pl, ok := availablePayload(v, models.StageMarket); ok && pl.Market != nil {
		g := pl.Market.GrowthPct
		growth = &g
		if intent.Category() == models.CategoryCompetitiveAnalysis || intent.Category() == models.CategoryMarketDiscovery {
			n := len(pl.Market.TopProducts)
			out = append(out, fmt.Sprintf("Competitive intensity: %s (%d top products)", CompetitionLevel(n), n))
		}
	}
	if pl, ok := availablePayload(v, models.StagePatent); ok && pl.Patents != nil && pl.Patents.EarliestActiveExpiry != "" {
		out = append(out, "Earliest active patent expiry: "+pl.Patents.EarliestActiveExpiry)
	}
	for _, stage := range []models.StageID{models.StageTrade, models.StageWebResearch, models.StageInternalKnowledge} {
		if pl, ok := availablePayload(v, stage); ok && pl.Summary != "" {
			out = append(out, pl.Summary)
		}
	}
	if pl, ok := availablePayload(v, models.StageInternalKnowledge); ok && pl.Internal != nil {
		for i, t := range pl.Internal.KeyTakeaways {
			if i == 2 {
				break
			}
			out = append(out, "Internal takeaway: "+t)
		}
	}

	switch intent.Category() {
	case models.CategoryMarketDiscovery, models.CategoryRepurposing:
		for _, need := range UnmetNeeds(disease(intent), s, growth) {
			out = append(out, "Unmet need: "+need)
		}
	}
	if len(out) == 0 {
		out = append(out, "No requested data source returned usable results")
	}
	return out
}

func summarize(v models.View, score *float64, decision models.Decision, gaps []string) string {
	intent := v.Intent()
	subj := subject(intent)
	requested := len(requestedDataStages(intent))
	ok := requested - len(gaps)

	var b strings.Builder
	switch {
	case ok == 0:
		fmt.Fprintf(&b, "Insufficient data to assess %s: none of the %d requested data sources returned results. ", subj, requested)
		b.WriteString("The decision defaults to conditional until the missing evidence is gathered.")
	case score == nil:
		fmt.Fprintf(&b, "%s analysis for %s drew on %d of %d requested data sources. ", categoryLabel(intent.Category()), subj, ok, requested)
		b.WriteString("No scored signals were available, so the decision is conditional.")
	default:
		fmt.Fprintf(&b, "%s analysis for %s yields a feasibility score of %.2f, supporting a %s decision. ", categoryLabel(intent.Category()), subj, *score, decision)
		fmt.Fprintf(&b, "Evidence came from %d of %d requested data sources.", ok, requested)
	}
	if ok > 0 && len(gaps) > 0 {
		fmt.Fprintf(&b, " Missing: %s.", strings.Join(gaps, ", "))
	}
	return b.String()
}

func subject(intent models.QueryIntent) string {
	entity := intent.PrimaryEntity()
	area := intent.Attribute(models.AttrIndication)
	if area == "" {
		area = intent.Attribute(models.AttrDiseaseArea)
	}
	switch {
	case entity != "" && area != "":
		return entity + " in " + area
	case entity != "":
		return entity
	case area != "":
		return area
	case intent.RawQuestion() != "":
		return fmt.Sprintf("%q", intent.RawQuestion())
	default:
		return "this query"
	}
}

func disease(intent models.QueryIntent) string {
	if d := intent.Attribute(models.AttrIndication); d != "" {
		return d
	}
	return intent.Attribute(models.AttrDiseaseArea)
}

func target(intent models.QueryIntent) string {
	if d := disease(intent); d != "" {
		return d
	}
	return intent.PrimaryEntity()
}

func categoryLabel(c models.Category) string {
	return capitalize(strings.ReplaceAll(string(c), "_", " "))
}
