// Package switchsim provides an in-memory stand-in for real switch
// matrix and coil hardware: a SwitchController that tracks each named
// switch's state and the timestamp of its last transition (so
// debounce-delay evaluation is meaningful, unlike a bare boolean map),
// and a Driver that records pulse/enable/disable calls for assertions.
// This is the demo and integration-test substitute for GPIO; real
// hardware access is out of scope for the core.
package switchsim

import (
	"sync"
	"time"

	"github.com/ehrlich-b/go-balldevice/internal/interfaces"
)

type switchState struct {
	active     bool
	changedAt  time.Time
}

type handler struct {
	key         int
	name        string
	activeState bool
	ms          time.Duration
	callback    func()
	fired       bool
}

// Panel is a simulated switch matrix. All switches start inactive. A
// real deployment's debounce firmware is approximated here by deferring
// a handler's callback until ms has elapsed since the transition,
// scheduled via time.AfterFunc against the matrix's own clock source.
type Panel struct {
	clock interfaces.Clock

	mu       sync.Mutex
	states   map[string]*switchState
	handlers map[int]*handler
	nextKey  int
}

// NewPanel creates an empty panel. clock supplies the transition
// timestamps that IsActive, IsInactive and the debounce settle check
// compare against; the debounce callbacks themselves are still scheduled
// on real time via time.AfterFunc. Pass nil to use real wall time.
func NewPanel(clock interfaces.Clock) *Panel {
	if clock == nil {
		clock = systemClock{}
	}
	return &Panel{
		clock:    clock,
		states:   make(map[string]*switchState),
		handlers: make(map[int]*handler),
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (p *Panel) stateFor(name string) *switchState {
	s, ok := p.states[name]
	if !ok {
		s = &switchState{changedAt: p.clock.Now()}
		p.states[name] = s
	}
	return s
}

// AddSwitchHandler implements interfaces.SwitchController.
func (p *Panel) AddSwitchHandler(name string, activeState bool, ms time.Duration, callback func()) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextKey++
	key := p.nextKey
	p.handlers[key] = &handler{key: key, name: name, activeState: activeState, ms: ms, callback: callback}
	return key
}

// RemoveSwitchHandler implements interfaces.SwitchController.
func (p *Panel) RemoveSwitchHandler(key int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, key)
}

// IsActive implements interfaces.SwitchController: true iff the switch
// is active and has held that state for at least ms.
func (p *Panel) IsActive(name string, ms time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[name]
	if !ok || !s.active {
		return false
	}
	return p.clock.Now().Sub(s.changedAt) >= ms
}

// IsInactive implements interfaces.SwitchController: true iff the
// switch is inactive and has held that state for at least ms.
func (p *Panel) IsInactive(name string, ms time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[name]
	if !ok {
		return true
	}
	if s.active {
		return false
	}
	return p.clock.Now().Sub(s.changedAt) >= ms
}

// SetActive drives switch name to active/inactive as of now, scheduling
// every matching handler to fire once ms has elapsed (immediately for
// ms==0). A transition to the state it already holds is a no-op, so
// repeated drain-calls from a demo loop don't refire handlers.
func (p *Panel) SetActive(name string, active bool) {
	p.mu.Lock()
	s := p.stateFor(name)
	if s.active == active {
		p.mu.Unlock()
		return
	}
	s.active = active
	s.changedAt = p.clock.Now()

	var toFire []*handler
	for _, h := range p.handlers {
		if h.name == name && h.activeState == active {
			toFire = append(toFire, h)
		}
	}
	p.mu.Unlock()

	for _, h := range toFire {
		if h.ms == 0 {
			h.callback()
			continue
		}
		time.AfterFunc(h.ms, func() {
			p.mu.Lock()
			cur, ok := p.states[name]
			stillSettled := ok && cur.active == active && p.clock.Now().Sub(cur.changedAt) >= h.ms
			p.mu.Unlock()
			if stillSettled {
				h.callback()
			}
		})
	}
}

var _ interfaces.SwitchController = (*Panel)(nil)

// Coil is a simulated eject/hold coil: it records every Pulse/Enable/
// Disable call for assertions and tracks whether it is currently
// energized (meaningful for hold coils).
type Coil struct {
	mu          sync.Mutex
	PulseCount  int
	EnableCount int
	DisableCount int
	energized   bool
}

// NewCoil creates a de-energized coil.
func NewCoil() *Coil { return &Coil{} }

// Pulse implements interfaces.Driver.
func (c *Coil) Pulse() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PulseCount++
	return nil
}

// Enable implements interfaces.Driver.
func (c *Coil) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EnableCount++
	c.energized = true
	return nil
}

// Disable implements interfaces.Driver.
func (c *Coil) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DisableCount++
	c.energized = false
	return nil
}

// Energized reports whether the coil is currently commanded on.
func (c *Coil) Energized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.energized
}

var _ interfaces.Driver = (*Coil)(nil)
