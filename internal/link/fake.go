package link

import (
	"log"
	"sync"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
)

// DutyCall records one SetDutyCycle call.
type DutyCall struct {
	Port string
	Cool uint8
	Heat uint8
}

// FakeActuator is a test double that records duty calls.
type FakeActuator struct {
	mu     sync.Mutex
	calls  []DutyCall
	duty   map[string]DutyCall
	closed bool

	// Err, if set, is returned by SetDutyCycle after recording the call.
	Err error
}

// NewFakeActuator creates an empty FakeActuator.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{duty: make(map[string]DutyCall)}
}

// SetDutyCycle records the call.
func (f *FakeActuator) SetDutyCycle(port logic.Port, cool, heat uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := DutyCall{Port: port.Name, Cool: cool, Heat: heat}
	f.calls = append(f.calls, c)
	f.duty[port.Name] = c
	return f.Err
}

// Close marks the actuator closed.
func (f *FakeActuator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Calls returns a copy of every recorded call.
func (f *FakeActuator) Calls() []DutyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]DutyCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// Duty returns the last duty written to the named port.
func (f *FakeActuator) Duty(port string) (cool, heat uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.duty[port]
	return c.Cool, c.Heat
}

// Closed reports whether Close was called.
func (f *FakeActuator) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// LogActuator logs duty changes instead of driving hardware. Used when no
// PWM controller port is configured.
type LogActuator struct{}

// SetDutyCycle logs the requested duty.
func (LogActuator) SetDutyCycle(port logic.Port, cool, heat uint8) error {
	log.Printf("link: %s cool[%d]=%d heat[%d]=%d", port.Name, port.CoolChannel, cool, port.HeatChannel, heat)
	return nil
}

// Close does nothing.
func (LogActuator) Close() error { return nil }
