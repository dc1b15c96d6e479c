// Package degradation grades how complete each analysis was and tracks the
// health of the dependencies whose failure causes it.
package degradation

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haryshwa05/pharmasynapse/internal/models"
)

// BreakerProbe reports whether a dependency's circuit breaker is open.
type BreakerProbe interface {
	IsCircuitBreakerOpen() bool
}

// Manager records per-request degradation and polls dependency breakers.
type Manager struct {
	logger *zap.Logger

	mu      sync.RWMutex
	probes  map[string]BreakerProbe
	started bool

	// Background monitoring
	healthCheckInterval time.Duration
	stopCh              chan struct{}
	wg                  sync.WaitGroup
}

// NewManager creates a new degradation manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:              logger,
		probes:              make(map[string]BreakerProbe),
		healthCheckInterval: 30 * time.Second,
		stopCh:              make(chan struct{}),
	}
}

// Register adds a dependency whose breaker state is exported as health.
func (m *Manager) Register(name string, probe BreakerProbe) {
	if probe == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = probe
}

// Start begins background health monitoring
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.wg.Add(1)
	go m.healthMonitorLoop(ctx)
	m.logger.Info("Degradation manager started",
		zap.Duration("health_check_interval", m.healthCheckInterval))
}

// Stop halts monitoring and waits for the loop to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()
	m.wg.Wait()
	m.logger.Info("Degradation manager stopped")
}

func (m *Manager) healthMonitorLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.healthCheckInterval)
	defer ticker.Stop()

	m.updateHealthMetrics()
	for {
		select {
		case <-ticker.C:
			m.updateHealthMetrics()
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) updateHealthMetrics() {
	for name, open := range m.Dependencies() {
		RecordCircuitBreakerHealth(name, open)
		if open {
			m.logger.Warn("Dependency circuit breaker open", zap.String("dependency", name))
		}
	}
}

// Dependencies returns the current open state of every registered breaker.
func (m *Manager) Dependencies() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.probes))
	for name, p := range m.probes {
		out[name] = p.IsCircuitBreakerOpen()
	}
	return out
}

// OpenDependencies lists dependencies with open breakers, sorted.
func (m *Manager) OpenDependencies() []string {
	var out []string
	for name, open := range m.Dependencies() {
		if open {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Record assesses a finished execution and updates metrics.
func (m *Manager) Record(v models.View, out models.SynthesisOutput) Report {
	r := Assess(v, out)
	category := string(v.Intent().Category())
	lastDegradationLevel.Set(float64(r.Level))
	if r.Level != LevelNone {
		degradationEventsTotal.WithLabelValues(r.Level.String(), category).Inc()
	}
	if r.Partial() {
		RecordPartialResults(category, r.Level.String())
	}
	if r.SynthesisFallback {
		RecordModeDowngrade(string(models.ModeGenerative), string(models.ModeDeterministic), category)
	}
	if r.Level != LevelNone || r.SynthesisFallback {
		m.logger.Info("Analysis degraded",
			zap.String("category", category),
			zap.String("level", r.Level.String()),
			zap.Strings("failed_stages", r.FailedStages),
			zap.Bool("synthesis_fallback", r.SynthesisFallback),
			zap.Strings("open_breakers", m.OpenDependencies()))
	}
	return r
}
