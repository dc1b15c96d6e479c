package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/streaming"
)

// StreamingHandler serves SSE progress for analyses started elsewhere,
// typically a POST carrying X-Request-ID.
type StreamingHandler struct {
	mgr    *streaming.Manager
	logger *zap.Logger
}

func NewStreamingHandler(mgr *streaming.Manager, logger *zap.Logger) *StreamingHandler {
	return &StreamingHandler{mgr: mgr, logger: logger}
}

// RegisterRoutes registers SSE routes on the provided mux.
func (h *StreamingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analyze/events", h.handleSSE)
}

// handleSSE streams events for one request via Server-Sent Events.
// GET /api/v1/analyze/events?request_id=<id>
func (h *StreamingHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("request_id")
	if id == "" {
		sendError(w, http.StatusBadRequest, "request_id required")
		return
	}
	// Optional: type filter (comma-separated)
	typeFilter := map[streaming.EventType]struct{}{}
	if s := r.URL.Query().Get("types"); s != "" {
		for _, t := range strings.Split(s, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				typeFilter[streaming.EventType(t)] = struct{}{}
			}
		}
	}
	// Optional: Last-Event-ID header or query param to replay from
	var lastID uint64
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		if n, err := strconv.ParseUint(lei, 10, 64); err == nil {
			lastID = n
		}
	}
	if q := r.URL.Query().Get("last_event_id"); q != "" && lastID == 0 {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			lastID = n
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch := h.mgr.Subscribe(id, 256)
	defer h.mgr.Unsubscribe(id, ch)

	fmt.Fprintf(w, ": connected to request %s\n\n", id)
	flusher.Flush()

	write := func(evt streaming.Event) {
		if len(typeFilter) > 0 {
			if _, ok := typeFilter[evt.Type]; !ok {
				return
			}
		}
		if evt.Seq > 0 {
			fmt.Fprintf(w, "id: %d\n", evt.Seq)
		}
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", evt.Marshal())
	}

	// Replay backlog since lastID (best-effort)
	for _, evt := range h.mgr.ReplaySince(id, lastID) {
		write(evt)
		lastID = evt.Seq
	}
	flusher.Flush()

	hb := time.NewTicker(15 * time.Second)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("request_id", id))
			return
		case evt, open := <-ch:
			if !open {
				fmt.Fprint(w, "event: end\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			if evt.Seq <= lastID {
				continue
			}
			write(evt)
			flusher.Flush()
		case <-hb.C:
			// Heartbeat to keep connections alive through proxies
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
