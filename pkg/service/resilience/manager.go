// Package resilience tracks primary classifier health and arbitrates which
// classification tier handles a request. The design goal is that primary-path
// unavailability never blocks or drops a patient event.
package resilience

import (
	"sync"
	"time"

	"github.com/m-mizutani/triagent/pkg/model"
)

type State string

const (
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
)

// Manager is a two-state machine over the primary classifier. Healthy turns
// Degraded on any reported failure; Degraded turns Healthy after the
// cool-down elapses without further failures, or on one successful probe.
type Manager struct {
	mu          sync.Mutex
	state       State
	cooldown    time.Duration
	lastFailure time.Time
	clock       func() time.Time
}

type Option func(*Manager)

// WithClock overrides the time source, for tests
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// New creates a Manager in the Healthy state
func New(cooldown time.Duration, opts ...Option) *Manager {
	m := &Manager{
		state:    StateHealthy,
		cooldown: cooldown,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State reports the current state, applying cool-down recovery first
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDegraded && m.clock().Sub(m.lastFailure) >= m.cooldown {
		m.state = StateHealthy
	}
	return m.state
}

// Route returns the classifier kind that should handle the next request
func (m *Manager) Route() model.ClassifierKind {
	if m.State() == StateHealthy {
		return model.ClassifierPrimary
	}
	return model.ClassifierFallback
}

// ReportFailure records a primary timeout, error, or rate-limit response
func (m *Manager) ReportFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateDegraded
	m.lastFailure = m.clock()
}

// ReportSuccess records a successful primary call; one success is enough to
// recover from Degraded
func (m *Manager) ReportSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateHealthy
}
