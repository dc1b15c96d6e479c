package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/server"
	"github.com/haryshwa05/pharmasynapse/internal/streaming"
)

const (
	wsPongWait     = 60 * time.Second
	wsPingInterval = 20 * time.Second
	wsFirstMessage = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Dev-friendly, secure via proxy in prod
}

// Frame types sent to WebSocket clients.
const (
	FrameEvent  = "event"
	FrameResult = "result"
	FrameError  = "error"
)

type wsFrame struct {
	Type   string                   `json:"type"`
	Event  *streaming.Event         `json:"event,omitempty"`
	Result *server.AnalysisResponse `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

// handleWS runs one analysis per connection. The client sends the request
// body as its first message, then receives progress events followed by a
// single result or error frame.
func (h *AnalysisHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsFirstMessage))
	var req analyzeRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(wsFrame{Type: FrameError, Error: "invalid request message"})
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader pump: handles control frames and notices a departed client.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Heartbeat ping; WriteControl is safe alongside the data writer.
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	resp, err := h.svc.Stream(ctx, req.RawQuery, func(evt streaming.Event) error {
		return conn.WriteJSON(wsFrame{Type: FrameEvent, Event: &evt})
	})
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
			h.logger.Error("Streamed analysis failed", zap.Error(err))
		}
		_ = conn.WriteJSON(wsFrame{Type: FrameError, Error: sanitizeErr(err.Error())})
	} else {
		_ = conn.WriteJSON(wsFrame{Type: FrameResult, Result: resp})
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
