package models

import (
	"encoding/json"
	"sync"
	"time"
)

// StageResult is the outcome of one stage invocation.
type StageResult struct {
	StageID    StageID     `json:"stageId"`
	Status     StageStatus `json:"status"`
	Payload    *Payload    `json:"payload,omitempty"`
	Error      ErrorKind   `json:"error,omitempty"`
	Message    string      `json:"message,omitempty"`
	DurationMs int64       `json:"durationMs"`
}

// OK reports whether the stage produced data.
func (r StageResult) OK() bool { return r.Status == StatusOK }

// ExecutionContext accumulates the results of one request. Stage goroutines
// never touch it directly: the orchestrator merges each result through
// Record, which is the only writer.
type ExecutionContext struct {
	requestID string
	intent    QueryIntent
	startedAt time.Time

	mu             sync.RWMutex
	results        map[StageID]StageResult
	order          []StageID
	degradedGroups []int
	synthesis      *SynthesisOutput
}

// NewExecutionContext creates an empty context for one request.
func NewExecutionContext(requestID string, intent QueryIntent) *ExecutionContext {
	return &ExecutionContext{
		requestID: requestID,
		intent:    intent,
		startedAt: time.Now(),
		results:   make(map[StageID]StageResult),
	}
}

func (c *ExecutionContext) RequestID() string    { return c.requestID }
func (c *ExecutionContext) Intent() QueryIntent  { return c.intent }
func (c *ExecutionContext) StartedAt() time.Time { return c.startedAt }

// Record merges r. The first result for a stage wins; later writes for the
// same stage are ignored and reported as false.
func (c *ExecutionContext) Record(r StageResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.results[r.StageID]; exists {
		return false
	}
	c.results[r.StageID] = r
	c.order = append(c.order, r.StageID)
	return true
}

// MarkGroupDegraded notes that every stage in group idx failed.
func (c *ExecutionContext) MarkGroupDegraded(idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.degradedGroups = append(c.degradedGroups, idx)
}

// SetSynthesis stores the terminal synthesis output.
func (c *ExecutionContext) SetSynthesis(out SynthesisOutput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synthesis = &out
}

// Synthesis returns the stored output, if any.
func (c *ExecutionContext) Synthesis() (SynthesisOutput, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.synthesis == nil {
		return SynthesisOutput{}, false
	}
	return *c.synthesis, true
}

// Result returns the recorded result for s.
func (c *ExecutionContext) Result(s StageID) (StageResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[s]
	return r, ok
}

// View returns an immutable snapshot of the results recorded so far.
func (c *ExecutionContext) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	results := make(map[StageID]StageResult, len(c.results))
	for k, v := range c.results {
		results[k] = v
	}
	order := make([]StageID, len(c.order))
	copy(order, c.order)
	groups := make([]int, len(c.degradedGroups))
	copy(groups, c.degradedGroups)
	return View{intent: c.intent, results: results, order: order, degradedGroups: groups}
}

// MarshalJSON renders the context for audit output.
func (c *ExecutionContext) MarshalJSON() ([]byte, error) {
	v := c.View()
	return json.Marshal(struct {
		RequestID      string        `json:"requestId"`
		Intent         QueryIntent   `json:"intent"`
		Results        []StageResult `json:"results"`
		DegradedGroups []int         `json:"degradedGroups,omitempty"`
	}{
		RequestID:      c.requestID,
		Intent:         c.intent,
		Results:        v.Results(),
		DegradedGroups: v.degradedGroups,
	})
}

// View is a read-only snapshot of an ExecutionContext handed to stages.
type View struct {
	intent         QueryIntent
	results        map[StageID]StageResult
	order          []StageID
	degradedGroups []int
}

// NewView builds a snapshot directly; used when replaying recorded results.
func NewView(intent QueryIntent, results ...StageResult) View {
	v := View{intent: intent, results: make(map[StageID]StageResult, len(results))}
	for _, r := range results {
		if _, dup := v.results[r.StageID]; dup {
			continue
		}
		v.results[r.StageID] = r
		v.order = append(v.order, r.StageID)
	}
	return v
}

func (v View) Intent() QueryIntent { return v.intent }

// Result returns the result for s if recorded.
func (v View) Result(s StageID) (StageResult, bool) {
	r, ok := v.results[s]
	return r, ok
}

// Payload returns the payload for s when the stage succeeded.
func (v View) Payload(s StageID) (*Payload, bool) {
	r, ok := v.results[s]
	if !ok || !r.OK() || r.Payload == nil {
		return nil, false
	}
	return r.Payload, true
}

// Results lists recorded results in canonical stage order.
func (v View) Results() []StageResult {
	out := make([]StageResult, 0, len(v.results))
	for _, id := range AllStages() {
		if r, ok := v.results[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Successful lists the results that carry data, in canonical order.
func (v View) Successful() []StageResult {
	var out []StageResult
	for _, r := range v.Results() {
		if r.OK() && r.Payload != nil {
			out = append(out, r)
		}
	}
	return out
}

// Arrived lists stage IDs in the order their results were recorded.
func (v View) Arrived() []StageID {
	out := make([]StageID, len(v.order))
	copy(out, v.order)
	return out
}

// DegradedGroups returns the indexes of groups where every stage failed.
func (v View) DegradedGroups() []int {
	out := make([]int, len(v.degradedGroups))
	copy(out, v.degradedGroups)
	return out
}
