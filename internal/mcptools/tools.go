package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/formatting"
	"github.com/haryshwa05/pharmasynapse/internal/intent"
	"github.com/haryshwa05/pharmasynapse/internal/models"
	"github.com/haryshwa05/pharmasynapse/internal/server"
	"github.com/haryshwa05/pharmasynapse/internal/templates"
)

// Analyzer is the subset of the analysis service the tools call.
type Analyzer interface {
	Analyze(ctx context.Context, q intent.RawQuery) (*server.AnalysisResponse, error)
	Pipelines() []templates.TemplateSummary
}

// AnalyzeQueryInput is the input of the analyze_query tool.
type AnalyzeQueryInput struct {
	Query    string `json:"query,omitempty" jsonschema:"free-text question, e.g. market size of metformin in India"`
	Molecule string `json:"molecule,omitempty" jsonschema:"molecule name for a structured analysis"`
	Disease  string `json:"disease,omitempty" jsonschema:"disease or indication for a structured analysis"`
	Region   string `json:"region,omitempty" jsonschema:"geography to scope market and trade data"`
	Format   string `json:"format,omitempty" jsonschema:"json (default) or markdown; markdown also fills the report field"`
}

// AnalyzeQueryOutput is the result of the analyze_query tool.
type AnalyzeQueryOutput struct {
	RequestID        string                  `json:"requestId"`
	Category         string                  `json:"category"`
	ResolvedBy       string                  `json:"resolvedBy"`
	Decision         string                  `json:"decision"`
	ConfidenceLevel  string                  `json:"confidenceLevel"`
	FeasibilityScore *float64                `json:"feasibilityScore,omitempty"`
	ExecutiveSummary string                  `json:"executiveSummary"`
	Insights         []string                `json:"insights"`
	Recommendations  []models.Recommendation `json:"recommendations"`
	DataGaps         []string                `json:"dataGaps"`
	SynthesisMode    string                  `json:"synthesisMode"`
	StagesPlanned    int                     `json:"stagesPlanned"`
	StagesSucceeded  int                     `json:"stagesSucceeded"`
	Report           string                  `json:"report,omitempty" jsonschema:"Markdown report, present when format is markdown"`
}

// ListPipelinesInput takes no arguments.
type ListPipelinesInput struct{}

// Pipeline describes one registered stage pipeline.
type Pipeline struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Stages      []string `json:"stages"`
}

// ListPipelinesOutput is the result of the list_pipelines tool.
type ListPipelinesOutput struct {
	Pipelines []Pipeline `json:"pipelines"`
}

// ToolService holds the handlers behind the MCP tools.
type ToolService struct {
	svc    Analyzer
	logger *zap.Logger
}

func NewToolService(svc Analyzer, logger *zap.Logger) *ToolService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolService{svc: svc, logger: logger}
}

// AnalyzeQuery runs one analysis and returns its synthesis.
func (s *ToolService) AnalyzeQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AnalyzeQueryInput,
) (*mcp.CallToolResult, AnalyzeQueryOutput, error) {
	format := strings.ToLower(strings.TrimSpace(input.Format))
	if format != "" && format != "json" && format != "markdown" {
		return nil, AnalyzeQueryOutput{}, fmt.Errorf("format must be json or markdown, got %q", input.Format)
	}

	resp, err := s.svc.Analyze(ctx, intent.RawQuery{
		Question: input.Query,
		Molecule: input.Molecule,
		Disease:  input.Disease,
		Region:   input.Region,
	})
	if err != nil {
		if !errors.Is(err, server.ErrInvalidRequest) {
			s.logger.Error("MCP analysis failed", zap.Error(err))
		}
		return nil, AnalyzeQueryOutput{}, err
	}

	out := toOutput(resp)
	if format == "markdown" {
		out.Report = formatting.Markdown(resp.Report())
	}
	return nil, out, nil
}

// ListPipelines returns every registered pipeline.
func (s *ToolService) ListPipelines(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ListPipelinesInput,
) (*mcp.CallToolResult, ListPipelinesOutput, error) {
	summaries := s.svc.Pipelines()
	out := ListPipelinesOutput{Pipelines: make([]Pipeline, 0, len(summaries))}
	for _, ts := range summaries {
		p := Pipeline{
			Name:        ts.Name,
			Category:    string(ts.Category),
			Description: ts.Description,
			Stages:      make([]string, 0, len(ts.Stages)),
		}
		for _, st := range ts.Stages {
			p.Stages = append(p.Stages, string(st))
		}
		out.Pipelines = append(out.Pipelines, p)
	}
	return nil, out, nil
}

func toOutput(resp *server.AnalysisResponse) AnalyzeQueryOutput {
	syn := resp.Synthesis
	out := AnalyzeQueryOutput{
		RequestID:        resp.RequestID,
		Category:         string(resp.Intent.Category()),
		ResolvedBy:       string(resp.Intent.ResolvedBy()),
		Decision:         string(syn.Decision),
		ConfidenceLevel:  string(syn.ConfidenceLevel),
		FeasibilityScore: syn.FeasibilityScore,
		ExecutiveSummary: syn.ExecutiveSummary,
		Insights:         syn.Insights,
		Recommendations:  syn.Recommendations,
		DataGaps:         syn.DataGaps,
		SynthesisMode:    string(syn.Mode),
		StagesPlanned:    resp.Metadata.StagesPlanned,
		StagesSucceeded:  resp.Metadata.StagesSucceeded,
	}
	if out.Insights == nil {
		out.Insights = []string{}
	}
	if out.Recommendations == nil {
		out.Recommendations = []models.Recommendation{}
	}
	if out.DataGaps == nil {
		out.DataGaps = []string{}
	}
	return out
}
