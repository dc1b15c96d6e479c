package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func testHTTPConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
		SuccessThreshold: 1,
	}
}

func TestHTTPWrapperReturns5xxResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hw := NewHTTPWrapper(srv.Client(), "test-5xx", "test", testHTTPConfig(), zaptest.NewLogger(t))

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := hw.Do(req)
		if err != nil {
			t.Fatalf("Expected 5xx to be returned without error, got %v", err)
		}
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("Expected 502, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	if !hw.IsCircuitBreakerOpen() {
		t.Fatal("Expected breaker to open after repeated 5xx responses")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	if _, err := hw.Do(req); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("Expected open breaker to reject, got %v", err)
	}
}

func TestHTTPWrapper4xxDoesNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	hw := NewHTTPWrapper(srv.Client(), "test-4xx", "test", testHTTPConfig(), zaptest.NewLogger(t))
	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := hw.Do(req)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		resp.Body.Close()
	}
	if hw.State() != StateClosed {
		t.Errorf("Expected breaker to stay closed on 4xx, got %s", hw.State())
	}
}

func TestHTTPWrapperCancellationDoesNotTrip(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	hw := NewHTTPWrapper(srv.Client(), "test-cancel", "test", testHTTPConfig(), zaptest.NewLogger(t))
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		if _, err := hw.Do(req); !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
	}
	if hw.State() != StateClosed {
		t.Errorf("Expected caller cancellation to leave the breaker closed, got %s", hw.State())
	}
}
