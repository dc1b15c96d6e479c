// Package formatting renders analysis results as Markdown reports.
package formatting

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/haryshwa05/pharmasynapse/internal/models"
	"github.com/haryshwa05/pharmasynapse/internal/util"
)

// Report is everything the renderer reads. It never mutates its input.
type Report struct {
	RequestID string
	Intent    models.QueryIntent
	View      models.View
	Synthesis models.SynthesisOutput
}

var categoryTitles = map[models.Category]string{
	models.CategoryMoleculeAnalysis:    "Molecule Analysis",
	models.CategoryMarketDiscovery:     "Market Discovery",
	models.CategoryRepurposing:         "Repurposing Assessment",
	models.CategoryStrategicQuestion:   "Strategic Question",
	models.CategoryCompetitiveAnalysis: "Competitive Analysis",
	models.CategoryGeneral:             "General Research",
}

// Markdown renders r as a standalone Markdown document.
func Markdown(r Report) string {
	var b strings.Builder
	out := r.Synthesis

	title := categoryTitles[r.Intent.Category()]
	if title == "" {
		title = "Analysis"
	}
	if subj := subject(r.Intent); subj != "" {
		title += ": " + subj
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if r.RequestID != "" {
		fmt.Fprintf(&b, "_Request %s, intent resolved by %s (confidence %.2f)_\n\n",
			r.RequestID, r.Intent.ResolvedBy(), r.Intent.Confidence())
	}

	b.WriteString("## Executive Summary\n\n")
	b.WriteString(strings.TrimSpace(out.ExecutiveSummary))
	b.WriteString("\n\n")

	b.WriteString("## Decision\n\n")
	b.WriteString("| Feasibility score | Decision | Confidence | Synthesis |\n")
	b.WriteString("|---|---|---|---|\n")
	mode := string(out.Mode)
	if out.Degraded {
		mode += " (fallback)"
	}
	fmt.Fprintf(&b, "| %s | %s | %s | %s |\n\n", score(out.FeasibilityScore), strings.ToUpper(string(out.Decision)), out.ConfidenceLevel, mode)

	if len(out.Insights) > 0 {
		b.WriteString("## Key Insights\n\n")
		for _, in := range out.Insights {
			fmt.Fprintf(&b, "- %s\n", escapeLine(in))
		}
		b.WriteString("\n")
	}

	if len(out.Recommendations) > 0 {
		b.WriteString("## Recommendations\n\n")
		for i, rec := range out.Recommendations {
			fmt.Fprintf(&b, "%d. **[%s]** %s", i+1, strings.ToUpper(string(rec.Priority)), escapeLine(rec.Action))
			if rec.Rationale != "" {
				fmt.Fprintf(&b, ": %s", escapeLine(rec.Rationale))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	writeEvidence(&b, r.View)

	if len(out.DataGaps) > 0 {
		b.WriteString("## Data Gaps\n\n")
		for _, g := range out.DataGaps {
			fmt.Fprintf(&b, "- %s\n", g)
		}
		b.WriteString("\n")
	}

	writeSources(&b, r.View)
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeEvidence(b *strings.Builder, v models.View) {
	var rows []models.StageResult
	for _, res := range v.Results() {
		if !res.StageID.IsSynthesis() {
			rows = append(rows, res)
		}
	}
	if len(rows) == 0 {
		return
	}
	b.WriteString("## Evidence\n\n")
	b.WriteString("| Stage | Status | Source | Duration | Notes |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, res := range rows {
		source, notes := "", res.Message
		if res.Payload != nil {
			source = res.Payload.Source
			if res.OK() {
				notes = res.Payload.Summary
			}
		}
		fmt.Fprintf(b, "| %s | %s | %s | %d ms | %s |\n",
			res.StageID, res.Status, cell(source), res.DurationMs, cell(util.TruncateString(notes, 160, true)))
	}
	b.WriteString("\n")
}

// writeSources numbers every distinct source behind the evidence: each
// provider's dataset or endpoint, then research links deduplicated by URL.
func writeSources(b *strings.Builder, v models.View) {
	var lines []string
	seen := map[string]bool{}
	add := func(key, line string) {
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		lines = append(lines, line)
	}
	for _, res := range v.Successful() {
		p := res.Payload
		line := p.Source
		if p.AsOf != "" {
			line += " (as of " + p.AsOf + ")"
		}
		add("source:"+p.Source, fmt.Sprintf("%s: %s", res.StageID, line))
		if p.Research == nil {
			continue
		}
		for _, group := range [][]models.Link{p.Research.Guidelines, p.Research.RealWorldEvidence, p.Research.News} {
			for _, l := range group {
				add(l.URL, fmt.Sprintf("[%s](%s)", cell(l.Title), l.URL))
			}
		}
	}
	if len(lines) == 0 {
		return
	}
	b.WriteString("## Sources\n\n")
	for i, l := range lines {
		fmt.Fprintf(b, "[%d] %s\n", i+1, l)
	}
}

// RenderTerminal styles Markdown for an ANSI terminal of the given width.
func RenderTerminal(md string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}

func subject(q models.QueryIntent) string {
	parts := []string{}
	if e := q.PrimaryEntity(); e != "" {
		parts = append(parts, e)
	}
	if d := q.Attribute(models.AttrIndication); d != "" {
		parts = append(parts, d)
	} else if d := q.Attribute(models.AttrDiseaseArea); d != "" {
		parts = append(parts, d)
	}
	if g := q.Attribute(models.AttrGeography); g != "" {
		parts = append(parts, g)
	}
	return strings.Join(parts, " / ")
}

func score(s *float64) string {
	if s == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *s)
}

// cell makes s safe inside a table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return escapeLine(s)
}

func escapeLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

