package balldevice

import (
	"sort"
	"sync"
	"time"

	"github.com/ehrlich-b/go-balldevice/internal/interfaces"
)

// MockSwitchController is a minimal SwitchController for unit tests that
// don't need real debounce timing (see switchsim for that). State
// transitions are applied synchronously rather than via a real timer, but
// SetState still fires matching handlers in ascending-ms order (ties
// broken by registration order) so a zero-delay latch always observes a
// raw transition before a debounced handler recomputes from it, matching
// the relative ordering switchsim produces under real timing.
type MockSwitchController struct {
	mu       sync.Mutex
	states   map[string]bool
	handlers map[int]mockSwitchHandler
	nextKey  int
	nextSeq  int

	AddCalls    int
	RemoveCalls int
}

type mockSwitchHandler struct {
	name        string
	activeState bool
	ms          time.Duration
	seq         int
	callback    func()
}

// NewMockSwitchController creates an empty mock switch controller; all
// switches default to inactive.
func NewMockSwitchController() *MockSwitchController {
	return &MockSwitchController{
		states:   make(map[string]bool),
		handlers: make(map[int]mockSwitchHandler),
	}
}

func (m *MockSwitchController) AddSwitchHandler(name string, activeState bool, ms time.Duration, callback func()) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddCalls++
	m.nextKey++
	key := m.nextKey
	m.nextSeq++
	m.handlers[key] = mockSwitchHandler{name: name, activeState: activeState, ms: ms, seq: m.nextSeq, callback: callback}
	return key
}

func (m *MockSwitchController) RemoveSwitchHandler(key int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveCalls++
	delete(m.handlers, key)
}

func (m *MockSwitchController) IsActive(name string, ms time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[name]
}

func (m *MockSwitchController) IsInactive(name string, ms time.Duration) bool {
	return !m.IsActive(name, ms)
}

// SetState sets switch name's state and fires any matching handlers in
// ascending-ms order.
func (m *MockSwitchController) SetState(name string, active bool) {
	m.mu.Lock()
	m.states[name] = active
	var matched []mockSwitchHandler
	for _, h := range m.handlers {
		if h.name == name && h.activeState == active {
			matched = append(matched, h)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ms != matched[j].ms {
			return matched[i].ms < matched[j].ms
		}
		return matched[i].seq < matched[j].seq
	})
	m.mu.Unlock()
	for _, h := range matched {
		h.callback()
	}
}

// MockDriver tracks Pulse/Enable/Disable calls for test assertions.
type MockDriver struct {
	mu          sync.Mutex
	PulseCalls  int
	EnableCalls int
	DisableCalls int
	enabled     bool
}

func NewMockDriver() *MockDriver {
	return &MockDriver{}
}

func (d *MockDriver) Pulse() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PulseCalls++
	return nil
}

func (d *MockDriver) Enable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.EnableCalls++
	d.enabled = true
	return nil
}

func (d *MockDriver) Disable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DisableCalls++
	d.enabled = false
	return nil
}

// IsEnabled reports the driver's last commanded state.
func (d *MockDriver) IsEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// MockClock is a manually-advanced Clock for deterministic delay tests.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a clock fixed at the given time.
func NewMockClock(now time.Time) *MockClock {
	return &MockClock{now: now}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Compile-time interface checks
var (
	_ interfaces.SwitchController = (*MockSwitchController)(nil)
	_ interfaces.Driver           = (*MockDriver)(nil)
	_ interfaces.Clock            = (*MockClock)(nil)
)
