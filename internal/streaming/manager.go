package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/metrics"
)

// EventType names a progress event.
type EventType string

const (
	EventStageStarted       EventType = "stage_started"
	EventStageCompleted     EventType = "stage_completed"
	EventGroupDegraded      EventType = "group_degraded"
	EventSynthesisCompleted EventType = "synthesis_completed"
)

// Event is one progress notification for a request.
type Event struct {
	RequestID  string    `json:"request_id"`
	Type       EventType `json:"type"`
	Stage      string    `json:"stage,omitempty"`
	Group      int       `json:"group"`
	Status     string    `json:"status,omitempty"`
	Message    string    `json:"message,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Seq        uint64    `json:"seq"`
}

const DefaultCapacity = 256

// Manager provides in-memory pub/sub for request progress events.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	// per-request ring buffer for replay to late subscribers
	history  map[string]*ring
	capacity int
	logger   *zap.Logger
}

// NewManager returns a manager keeping up to capacity events per request.
func NewManager(capacity int, logger *zap.Logger) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
		logger:      logger,
	}
}

// Subscribe adds a subscriber channel for requestID; caller must drain and call Unsubscribe.
func (m *Manager) Subscribe(requestID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[requestID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[requestID] = subs
	}
	subs[ch] = struct{}{}
	metrics.StreamSubscribers.Inc()
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(requestID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[requestID]; ok {
		if _, found := subs[ch]; !found {
			return
		}
		delete(subs, ch)
		close(ch)
		metrics.StreamSubscribers.Dec()
		if len(subs) == 0 {
			delete(m.subscribers, requestID)
		}
	}
}

// Publish sends an event to all subscribers of requestID (non-blocking).
func (m *Manager) Publish(requestID string, evt Event) {
	evt.RequestID = requestID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	m.mu.Lock()
	rg := m.history[requestID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[requestID] = rg
	}
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	rg.push(evt)
	// Send under the lock so Unsubscribe cannot close a channel mid-send.
	for ch := range m.subscribers[requestID] {
		select {
		case ch <- evt:
		default:
			m.logger.Debug("Dropping event for slow subscriber",
				zap.String("request_id", requestID),
				zap.String("type", string(evt.Type)))
		}
	}
	m.mu.Unlock()
}

// ReplaySince returns events with Seq > since (best-effort within ring capacity).
func (m *Manager) ReplaySince(requestID string, since uint64) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.history[requestID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Close drops the history of a finished request and closes its subscribers.
func (m *Manager) Close(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, requestID)
	for ch := range m.subscribers[requestID] {
		close(ch)
		metrics.StreamSubscribers.Dec()
	}
	delete(m.subscribers, requestID)
}

// Marshal returns JSON for event payloads in WebSocket frames or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// ring is a fixed-capacity ring buffer of events
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
