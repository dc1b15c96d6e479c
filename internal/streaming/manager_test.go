package streaming

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRingReplaySince(t *testing.T) {
	r := newRing(3)
	// Push 4 events, which will overwrite the first
	for i := 0; i < 4; i++ {
		r.push(Event{Seq: uint64(i + 1)})
	}
	evs := r.since(0)
	require.Len(t, evs, 3)
	assert.Equal(t, uint64(2), evs[0].Seq)
	assert.Equal(t, uint64(4), evs[2].Seq)

	evs = r.since(2)
	require.Len(t, evs, 2)
	assert.Equal(t, uint64(3), evs[0].Seq)
}

func TestPublishSubscribe(t *testing.T) {
	m := NewManager(8, zaptest.NewLogger(t))
	ch := m.Subscribe("req-1", 4)
	other := m.Subscribe("req-2", 4)

	m.Publish("req-1", Event{Type: EventStageStarted, Stage: "market"})
	m.Publish("req-1", Event{Type: EventStageCompleted, Stage: "market", Status: "ok"})

	select {
	case e := <-ch:
		assert.Equal(t, EventStageStarted, e.Type)
		assert.Equal(t, "req-1", e.RequestID)
		assert.Equal(t, uint64(1), e.Seq)
		assert.False(t, e.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for first event")
	}
	e := <-ch
	assert.Equal(t, EventStageCompleted, e.Type)
	assert.Equal(t, uint64(2), e.Seq)

	select {
	case e := <-other:
		t.Fatalf("unexpected event on other request: %+v", e)
	default:
	}

	m.Unsubscribe("req-1", ch)
	_, open := <-ch
	assert.False(t, open)
	// Double unsubscribe is harmless.
	m.Unsubscribe("req-1", ch)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewManager(8, zaptest.NewLogger(t))
	ch := m.Subscribe("req", 1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			m.Publish("req", Event{Type: EventStageStarted})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, 1)
	assert.Len(t, m.ReplaySince("req", 0), 5)
}

func TestCloseDropsHistory(t *testing.T) {
	m := NewManager(4, zaptest.NewLogger(t))
	ch := m.Subscribe("req", 4)
	m.Publish("req", Event{Type: EventSynthesisCompleted})
	m.Close("req")

	assert.Nil(t, m.ReplaySince("req", 0))
	<-ch
	_, open := <-ch
	assert.False(t, open)
	m.Unsubscribe("req", ch)
}

func TestConcurrentPublish(t *testing.T) {
	m := NewManager(64, zaptest.NewLogger(t))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				m.Publish("req", Event{Type: EventStageCompleted})
			}
		}()
	}
	wg.Wait()

	evs := m.ReplaySince("req", 0)
	require.Len(t, evs, 32)
	seen := map[uint64]bool{}
	for _, e := range evs {
		seen[e.Seq] = true
	}
	assert.Len(t, seen, 32)
}
