package server

import (
	"time"

	"github.com/haryshwa05/pharmasynapse/internal/degradation"
	"github.com/haryshwa05/pharmasynapse/internal/formatting"
	"github.com/haryshwa05/pharmasynapse/internal/models"
)

// AnalysisResponse is the API result of one analysis.
type AnalysisResponse struct {
	RequestID   string                   `json:"requestId"`
	Intent      models.QueryIntent       `json:"intent"`
	Plan        models.ExecutionPlan     `json:"plan"`
	Context     *models.ExecutionContext `json:"context"`
	Synthesis   models.SynthesisOutput   `json:"synthesis"`
	Degradation degradation.Report       `json:"degradation"`
	Metadata    ResponseMetadata         `json:"metadata"`
	StageErrors []StageError             `json:"stageErrors,omitempty"`
	Timestamp   string                   `json:"timestamp"`
}

// StageError is a single stage failure surfaced to clients.
type StageError struct {
	Stage   models.StageID     `json:"stage"`
	Status  models.StageStatus `json:"status"`
	Kind    models.ErrorKind   `json:"kind,omitempty"`
	Message string             `json:"message,omitempty"`
}

// ResponseMetadata contains execution metadata
type ResponseMetadata struct {
	Category         models.Category       `json:"category"`
	ResolvedBy       models.ResolutionPath `json:"resolvedBy"`
	IntentConfidence float64               `json:"intentConfidence"`
	StagesPlanned    int                   `json:"stagesPlanned"`
	StagesSucceeded  int                   `json:"stagesSucceeded"`
	SynthesisMode    models.SynthesisMode  `json:"synthesisMode"`
	ExecutionTimeMs  int64                 `json:"executionTimeMs"`
}

// Report returns the renderer input for r.
func (r *AnalysisResponse) Report() formatting.Report {
	return formatting.Report{
		RequestID: r.RequestID,
		Intent:    r.Intent,
		View:      r.Context.View(),
		Synthesis: r.Synthesis,
	}
}

func buildResponse(requestID string, qi models.QueryIntent, plan models.ExecutionPlan, ec *models.ExecutionContext, out models.SynthesisOutput, report degradation.Report, started time.Time) *AnalysisResponse {
	v := ec.View()
	return &AnalysisResponse{
		RequestID:   requestID,
		Intent:      qi,
		Plan:        plan,
		Context:     ec,
		Synthesis:   out,
		Degradation: report,
		Metadata:    extractMetadata(qi, plan, v, out, time.Since(started)),
		StageErrors: extractStageErrors(v),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

func extractMetadata(qi models.QueryIntent, plan models.ExecutionPlan, v models.View, out models.SynthesisOutput, elapsed time.Duration) ResponseMetadata {
	meta := ResponseMetadata{
		Category:         qi.Category(),
		ResolvedBy:       qi.ResolvedBy(),
		IntentConfidence: qi.Confidence(),
		StagesPlanned:    len(plan.DataStages()),
		SynthesisMode:    out.Mode,
		ExecutionTimeMs:  elapsed.Milliseconds(),
	}
	for _, r := range v.Successful() {
		if !r.StageID.IsSynthesis() {
			meta.StagesSucceeded++
		}
	}
	return meta
}

// extractStageErrors lists data stages that did not return data, in
// canonical stage order.
func extractStageErrors(v models.View) []StageError {
	var out []StageError
	for _, r := range v.Results() {
		if r.OK() || r.StageID.IsSynthesis() {
			continue
		}
		out = append(out, StageError{
			Stage:   r.StageID,
			Status:  r.Status,
			Kind:    r.Error,
			Message: truncateError(r.Message),
		})
	}
	return out
}

// truncateError limits error messages to 500 characters to prevent response bloat
func truncateError(msg string) string {
	const maxLen = 500
	if len(msg) <= maxLen {
		return msg
	}
	return msg[:maxLen] + "... (truncated)"
}
