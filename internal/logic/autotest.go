package logic

import (
	"fmt"
	"time"
)

// AutoPhase is the position of the auto-test within one port's cycle.
type AutoPhase uint8

const (
	AutoFirstSeq AutoPhase = iota
	AutoTransition
	AutoSecondSeq
	AutoPortEnd
	AutoPause // wait between ports; Stop stays responsive here
)

func (p AutoPhase) String() string {
	switch p {
	case AutoFirstSeq:
		return "FIRST_SEQ"
	case AutoTransition:
		return "TRANSITION"
	case AutoSecondSeq:
		return "SECOND_SEQ"
	case AutoPortEnd:
		return "PORT_END"
	case AutoPause:
		return "PAUSE"
	}
	return fmt.Sprintf("AutoPhase(%d)", uint8(p))
}

// AutoTest drives every port, one at a time, through its first stimulus,
// a bridge, the opposite stimulus and a final bridge.
type AutoTest struct {
	bank  *Bank
	pause time.Duration

	active   bool
	port     PortID
	phase    AutoPhase
	deadline time.Time
}

// NewAutoTest creates an inactive auto-test. pause separates consecutive ports.
func NewAutoTest(bank *Bank, pause time.Duration) *AutoTest {
	return &AutoTest{bank: bank, pause: pause}
}

// Active reports whether the auto-test is running.
func (a *AutoTest) Active() bool {
	return a.active
}

// Position returns the port being driven and the current phase.
func (a *AutoTest) Position() (PortID, AutoPhase) {
	return a.port, a.phase
}

// Start begins the cycle on port 0. The caller checks preconditions.
func (a *AutoTest) Start(now time.Time) []Event {
	a.active = true
	return a.beginPort(0, now)
}

// Clear deactivates the auto-test and forgets its context.
func (a *AutoTest) Clear() {
	a.active = false
	a.port = 0
	a.phase = AutoFirstSeq
	a.deadline = time.Time{}
}

// Step advances the cycle once the driven port has returned to Idle, or once
// the inter-port pause has elapsed. It must run after the Bank has ticked.
func (a *AutoTest) Step(now time.Time) []Event {
	if !a.active {
		return nil
	}

	if a.phase == AutoPause {
		if now.Before(a.deadline) {
			return nil
		}
		return a.beginPort(a.port+1, now)
	}

	if !a.bank.Idle(a.port) {
		return nil
	}

	first := a.bank.Port(a.port).FirstStimulus()
	switch a.phase {
	case AutoFirstSeq:
		a.phase = AutoTransition
		return []Event{a.bank.ForceEnd(a.port, first, now)}

	case AutoTransition:
		a.phase = AutoSecondSeq
		ev, ok := a.bank.Start(a.port, first.Opposite(), now)
		if !ok {
			return nil
		}
		return []Event{ev}

	case AutoSecondSeq:
		a.phase = AutoPortEnd
		return []Event{a.bank.ForceEnd(a.port, first.Opposite(), now)}

	case AutoPortEnd:
		events := []Event{{Timestamp: now, Type: EventStepDone, Port: int(a.port), Mode: ModeAutoTest, Step: int(a.port)}}
		if int(a.port) == a.bank.Len()-1 {
			a.Clear()
			return append(events, Event{Timestamp: now, Type: EventRunFinished, Port: -1, Mode: ModeAutoTest})
		}
		if a.pause <= 0 {
			return append(events, a.beginPort(a.port+1, now)...)
		}
		a.phase = AutoPause
		a.deadline = now.Add(a.pause)
		return events
	}
	return nil
}

func (a *AutoTest) beginPort(id PortID, now time.Time) []Event {
	a.port = id
	a.phase = AutoFirstSeq
	a.deadline = time.Time{}
	k := a.bank.Port(id).FirstStimulus()
	ev, ok := a.bank.Start(id, k, now)
	if !ok {
		return nil
	}
	return []Event{ev}
}
