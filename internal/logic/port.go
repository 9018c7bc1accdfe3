package logic

import (
	"errors"
	"fmt"
	"time"
)

// Duty levels (0-255) applied by each phase.
const (
	HeatStartPWM = 240
	HeatPWM      = 40
	HeatEndPWM   = 240 // applied on the cool channel
	CoolStartPWM = 240
	CoolPWM      = 240
	CoolEndPWM   = 240 // applied on the heat channel
)

// Phase durations. Not configurable at runtime.
const (
	StartDuration  = 1000 * time.Millisecond
	StimulusLength = 3000 * time.Millisecond
	EndDuration    = 1000 * time.Millisecond
)

// Channel selects which side of a port a phase drives.
type Channel uint8

const (
	ChannelNone Channel = iota
	ChannelCool
	ChannelHeat
)

// Timing describes one non-Idle phase: the duty it applies, how long it
// lasts, and where the port goes once the duration has elapsed.
type Timing struct {
	Level    uint8
	Channel  Channel
	Duration time.Duration
	Next     PortState
}

// Duty returns the (cool, heat) pair this phase drives.
// At most one of the two is nonzero.
func (t Timing) Duty() (cool, heat uint8) {
	switch t.Channel {
	case ChannelCool:
		return t.Level, 0
	case ChannelHeat:
		return 0, t.Level
	}
	return 0, 0
}

// timings is the transition table, indexed by state.
// The End bridges drive the opposite channel to neutralise the previous stimulus.
var timings = [numPortStates]Timing{
	StateIdle:      {},
	StateHeatStart: {Level: HeatStartPWM, Channel: ChannelHeat, Duration: StartDuration, Next: StateHeat},
	StateHeat:      {Level: HeatPWM, Channel: ChannelHeat, Duration: StimulusLength, Next: StateIdle},
	StateHeatEnd:   {Level: HeatEndPWM, Channel: ChannelCool, Duration: EndDuration, Next: StateIdle},
	StateCoolStart: {Level: CoolStartPWM, Channel: ChannelCool, Duration: StartDuration, Next: StateCool},
	StateCool:      {Level: CoolPWM, Channel: ChannelCool, Duration: StimulusLength, Next: StateIdle},
	StateCoolEnd:   {Level: CoolEndPWM, Channel: ChannelHeat, Duration: EndDuration, Next: StateIdle},
}

// TimingFor returns the timing table entry for s.
func TimingFor(s PortState) Timing {
	if s >= numPortStates {
		return Timing{}
	}
	return timings[s]
}

// startState is the entry state of a stimulus.
func startState(k Stimulus) PortState {
	if k == StimulusHeat {
		return StateHeatStart
	}
	return StateCoolStart
}

// endState is the bridge state that follows a stimulus.
func endState(k Stimulus) PortState {
	if k == StimulusHeat {
		return StateHeatEnd
	}
	return StateCoolEnd
}

// PortID is a port index that has been validated against a Bank.
type PortID int

// PortRuntime is the mutable part of one port.
type PortRuntime struct {
	State     PortState
	EnteredAt time.Time
}

// Bank owns the static port table and the runtime of every port.
// It is not safe for concurrent use; the tick loop is its only owner.
type Bank struct {
	ports []Port
	rt    []PortRuntime
}

// NewBank validates the port table and creates a Bank with every port Idle.
func NewBank(ports []Port) (*Bank, error) {
	if len(ports) == 0 {
		return nil, errors.New("no ports configured")
	}
	names := make(map[string]bool, len(ports))
	for i, p := range ports {
		if p.Name == "" {
			return nil, fmt.Errorf("port %d: empty name", i)
		}
		if names[p.Name] {
			return nil, fmt.Errorf("port %d: duplicate name %q", i, p.Name)
		}
		names[p.Name] = true
	}
	b := &Bank{
		ports: append([]Port(nil), ports...),
		rt:    make([]PortRuntime, len(ports)),
	}
	return b, nil
}

// Len returns the number of ports.
func (b *Bank) Len() int {
	return len(b.ports)
}

// Lookup validates a raw port index.
func (b *Bank) Lookup(index int) (PortID, bool) {
	if index < 0 || index >= len(b.ports) {
		return 0, false
	}
	return PortID(index), true
}

// Port returns the static configuration of id.
func (b *Bank) Port(id PortID) Port {
	return b.ports[id]
}

// State returns the current state of id.
func (b *Bank) State(id PortID) PortState {
	return b.rt[id].State
}

// Runtime returns a copy of the runtime record of id.
func (b *Bank) Runtime(id PortID) PortRuntime {
	return b.rt[id]
}

// Idle reports whether id is Idle.
func (b *Bank) Idle(id PortID) bool {
	return b.rt[id].State == StateIdle
}

// AllIdle reports whether every port is Idle.
func (b *Bank) AllIdle() bool {
	for i := range b.rt {
		if b.rt[i].State != StateIdle {
			return false
		}
	}
	return true
}

// Start begins a stimulus on an Idle port. It is a no-op returning false
// when the port is in any other state.
func (b *Bank) Start(id PortID, k Stimulus, now time.Time) (Event, bool) {
	if !k.Valid() || b.rt[id].State != StateIdle {
		return Event{}, false
	}
	return b.enter(id, startState(k), now), true
}

// StartHeat begins a heat stimulus on an Idle port.
func (b *Bank) StartHeat(id PortID, now time.Time) (Event, bool) {
	return b.Start(id, StimulusHeat, now)
}

// StartCool begins a cool stimulus on an Idle port.
func (b *Bank) StartCool(id PortID, now time.Time) (Event, bool) {
	return b.Start(id, StimulusCool, now)
}

// ForceEnd puts id into the End bridge that follows stimulus k, with a fresh
// entry timestamp, regardless of its current state. Sequencers call this only
// after they have observed the port Idle.
func (b *Bank) ForceEnd(id PortID, k Stimulus, now time.Time) Event {
	return b.enter(id, endState(k), now)
}

// Tick advances every port whose phase duration has elapsed.
// Each port makes at most one transition per call.
func (b *Bank) Tick(now time.Time) []Event {
	var events []Event
	for i := range b.rt {
		rt := &b.rt[i]
		if rt.State == StateIdle {
			continue
		}
		t := timings[rt.State]
		if now.Sub(rt.EnteredAt) < t.Duration {
			continue
		}
		events = append(events, b.enter(PortID(i), t.Next, now))
	}
	return events
}

// Reset forces every port to Idle and reports zero duty for all of them,
// including ports that were already Idle.
func (b *Bank) Reset(now time.Time) []Event {
	events := make([]Event, 0, len(b.rt))
	for i := range b.rt {
		events = append(events, b.enter(PortID(i), StateIdle, now))
	}
	return events
}

func (b *Bank) enter(id PortID, s PortState, now time.Time) Event {
	b.rt[id] = PortRuntime{State: s, EnteredAt: now}
	cool, heat := timings[s].Duty()
	return Event{
		Timestamp: now,
		Type:      EventState,
		Port:      int(id),
		State:     s,
		Cool:      cool,
		Heat:      heat,
		Stimulus:  stimulusOf(s),
	}
}

func stimulusOf(s PortState) Stimulus {
	switch s {
	case StateHeatStart, StateHeat, StateHeatEnd:
		return StimulusHeat
	case StateCoolStart, StateCool, StateCoolEnd:
		return StimulusCool
	}
	return 0
}
