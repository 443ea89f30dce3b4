package application

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/deskbridge/internal/logger"
	"github.com/bnema/deskbridge/internal/ports"
)

const (
	ComponentSurface = "surface"
	ComponentInput   = "input"

	defaultHealthInterval = 30 * time.Second
)

type ComponentHealth struct {
	Healthy             bool
	LastCheck           time.Time
	ConsecutiveFailures int
}

type HealthReport struct {
	Healthy    bool
	Components map[string]ComponentHealth
	CheckedAt  time.Time
}

// HealthChangeFunc is notified when a component flips between healthy and
// unhealthy.
type HealthChangeFunc func(component string, healthy bool, state ComponentHealth)

// HealthMonitor tracks reachability of the chat surface and its input,
// counting consecutive failures and notifying on state changes. Recovery
// of the target application itself is out of scope; the monitor only
// observes.
type HealthMonitor struct {
	engine   *ExtractionEngine
	clock    ports.Clock
	interval time.Duration

	mu         sync.Mutex
	components map[string]ComponentHealth
	onChange   []HealthChangeFunc
}

func NewHealthMonitor(engine *ExtractionEngine, clock ports.Clock, interval time.Duration) *HealthMonitor {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	return &HealthMonitor{
		engine:     engine,
		clock:      clock,
		interval:   interval,
		components: make(map[string]ComponentHealth),
	}
}

// OnChange registers a callback for component health flips.
func (m *HealthMonitor) OnChange(fn HealthChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// RunOnce checks every component immediately and returns the report.
func (m *HealthMonitor) RunOnce(ctx context.Context) HealthReport {
	surfaceOK, err := m.engine.SurfaceReady(ctx)
	if err != nil {
		surfaceOK = false
	}
	m.record(ComponentSurface, surfaceOK)

	inputOK, err := m.engine.InputAvailable(ctx)
	if err != nil {
		inputOK = false
	}
	m.record(ComponentInput, inputOK)

	return m.Report()
}

// Watch re-checks on a fixed interval until ctx is cancelled.
func (m *HealthMonitor) Watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(m.interval):
			m.RunOnce(ctx)
		}
	}
}

// Report returns the current component states without probing.
func (m *HealthMonitor) Report() HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := HealthReport{
		Healthy:    len(m.components) > 0,
		Components: make(map[string]ComponentHealth, len(m.components)),
		CheckedAt:  m.clock.Now(),
	}
	for name, state := range m.components {
		report.Components[name] = state
		if !state.Healthy {
			report.Healthy = false
		}
	}

	return report
}

func (m *HealthMonitor) record(component string, healthy bool) {
	m.mu.Lock()
	state, known := m.components[component]
	previous := state.Healthy
	state.LastCheck = m.clock.Now()
	if healthy {
		state.Healthy = true
		state.ConsecutiveFailures = 0
	} else {
		state.Healthy = false
		state.ConsecutiveFailures++
	}
	m.components[component] = state
	callbacks := make([]HealthChangeFunc, len(m.onChange))
	copy(callbacks, m.onChange)
	m.mu.Unlock()

	if known && previous != healthy {
		if healthy {
			logger.Info("%s recovered", component)
		} else {
			logger.Warn("%s became unhealthy", component)
		}
		for _, fn := range callbacks {
			fn(component, healthy, state)
		}
	}
}
