// Package httpapi exposes analyses over HTTP, WebSocket and SSE.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/formatting"
	"github.com/haryshwa05/pharmasynapse/internal/intent"
	"github.com/haryshwa05/pharmasynapse/internal/server"
	"github.com/haryshwa05/pharmasynapse/internal/streaming"
	"github.com/haryshwa05/pharmasynapse/internal/templates"
)

// RequestIDHeader lets a caller pick the request id, so it can follow the
// analysis on the SSE endpoint while the POST is in flight.
const RequestIDHeader = "X-Request-ID"

const maxBodyBytes = 1 << 20

// Analyzer is the analysis service.
type Analyzer interface {
	AnalyzeWithID(ctx context.Context, requestID string, q intent.RawQuery) (*server.AnalysisResponse, error)
	Stream(ctx context.Context, q intent.RawQuery, send func(streaming.Event) error) (*server.AnalysisResponse, error)
	Pipelines() []templates.TemplateSummary
}

// AnalysisHandler serves the analysis API.
type AnalysisHandler struct {
	svc    Analyzer
	logger *zap.Logger
}

func NewAnalysisHandler(svc Analyzer, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers analysis routes on the provided mux.
func (h *AnalysisHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/analyze", h.handleAnalyze)
	mux.HandleFunc("GET /api/v1/analyze/stream", h.handleWS)
	mux.HandleFunc("GET /api/v1/pipelines", h.handlePipelines)
}

// analyzeRequest is the body of POST /api/v1/analyze and the first
// WebSocket message.
type analyzeRequest struct {
	intent.RawQuery
	Format string `json:"format,omitempty"`
}

func (h *AnalysisHandler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if q := r.URL.Query().Get("format"); q != "" {
		format = strings.ToLower(q)
	}
	if format != "" && format != "json" && format != "markdown" {
		sendError(w, http.StatusBadRequest, "format must be json or markdown")
		return
	}

	requestID := r.Header.Get(RequestIDHeader)
	if requestID != "" {
		if _, err := uuid.Parse(requestID); err != nil {
			sendError(w, http.StatusBadRequest, RequestIDHeader+" must be a UUID")
			return
		}
	}

	resp, err := h.svc.AnalyzeWithID(r.Context(), requestID, req.RawQuery)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Analysis failed", zap.String("request_id", requestID), zap.Error(err))
		}
		sendError(w, status, err.Error())
		return
	}

	w.Header().Set(RequestIDHeader, resp.RequestID)
	if format == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(formatting.Markdown(resp.Report())))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AnalysisHandler) handlePipelines(w http.ResponseWriter, _ *http.Request) {
	pipelines := h.svc.Pipelines()
	if pipelines == nil {
		pipelines = []templates.TemplateSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pipelines": pipelines})
}
