package clock

import (
	"sync"
	"time"
)

// TimeProvider supplies wall time for step budgets and sampler swap pacing.
type TimeProvider interface {
	Now() time.Time
}

// MonotonicTimeProvider reads the system clock.
type MonotonicTimeProvider struct{}

// NewMonotonicTimeProvider creates a provider backed by time.Now.
func NewMonotonicTimeProvider() MonotonicTimeProvider { return MonotonicTimeProvider{} }

// Now returns time.Now, which carries a monotonic reading.
func (MonotonicTimeProvider) Now() time.Time { return time.Now() }

// MockTimeProvider is a manually advanced clock for tests.
type MockTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTimeProvider starts the mock at start.
func NewMockTimeProvider(start time.Time) *MockTimeProvider {
	return &MockTimeProvider{now: start}
}

// Now returns the mock time.
func (m *MockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock forward by d.
func (m *MockTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
