// Package logic contains the stimulus sequencing engine: the per-port
// heat/cool state machine, the auto-test and experiment sequencers, and
// telemetry derivation.
// This package has NO external dependencies (no GPIO, MQTT, serial, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"strings"
	"time"
)

// PortState is the stimulus phase of a single port.
type PortState uint8

const (
	StateIdle PortState = iota
	StateHeatStart
	StateHeat
	StateHeatEnd
	StateCoolStart
	StateCool
	StateCoolEnd

	numPortStates
)

var portStateNames = [numPortStates]string{
	StateIdle:      "IDLE",
	StateHeatStart: "HEAT_START",
	StateHeat:      "HEAT",
	StateHeatEnd:   "HEAT_END",
	StateCoolStart: "COOL_START",
	StateCool:      "COOL",
	StateCoolEnd:   "COOL_END",
}

func (s PortState) String() string {
	if s < numPortStates {
		return portStateNames[s]
	}
	return fmt.Sprintf("PortState(%d)", uint8(s))
}

// Stimulus is the direction of a thermal stimulus.
type Stimulus uint8

const (
	StimulusCool Stimulus = iota + 1
	StimulusHeat
)

func (k Stimulus) String() string {
	switch k {
	case StimulusCool:
		return "COOL"
	case StimulusHeat:
		return "HEAT"
	}
	return fmt.Sprintf("Stimulus(%d)", uint8(k))
}

// Opposite returns the other stimulus direction.
func (k Stimulus) Opposite() Stimulus {
	if k == StimulusCool {
		return StimulusHeat
	}
	return StimulusCool
}

// Valid reports whether k is Cool or Heat.
func (k Stimulus) Valid() bool {
	return k == StimulusCool || k == StimulusHeat
}

// ParseStimulus accepts "cool" or "heat" in any case.
func ParseStimulus(s string) (Stimulus, error) {
	switch strings.ToLower(s) {
	case "cool":
		return StimulusCool, nil
	case "heat":
		return StimulusHeat, nil
	}
	return 0, fmt.Errorf("unknown stimulus %q", s)
}

// Port is the static configuration of one heat/cool actuator pair.
type Port struct {
	Name           string // role name reported as telemetry position
	CoolChannel    int
	HeatChannel    int
	StartsWithCool bool // auto-test runs Cool first on this port
}

// FirstStimulus is the stimulus the auto-test applies first on this port.
func (p Port) FirstStimulus() Stimulus {
	if p.StartsWithCool {
		return StimulusCool
	}
	return StimulusHeat
}

// Trial is one scripted unit of the experiment.
type Trial struct {
	Port     int
	Stimulus Stimulus
	Interval time.Duration // wait after this trial's end phase
}

// Mode reports which sequencer, if any, is driving the ports.
type Mode string

const (
	ModeIdle       Mode = "IDLE"
	ModeAutoTest   Mode = "AUTO_TEST"
	ModeExperiment Mode = "EXPERIMENT"
)

// CommandType identifies a command from the input surface.
type CommandType string

const (
	CommandStartAutoTest   CommandType = "START_AUTO_TEST"
	CommandStartExperiment CommandType = "START_EXPERIMENT"
	CommandStop            CommandType = "STOP"
	CommandStartHeat       CommandType = "START_HEAT"
	CommandStartCool       CommandType = "START_COOL"
)

// Command is a single request from the input surface.
// Port is only used by CommandStartHeat and CommandStartCool.
type Command struct {
	Type CommandType
	Port int
}

func (c Command) String() string {
	switch c.Type {
	case CommandStartHeat, CommandStartCool:
		return fmt.Sprintf("%s(port=%d)", c.Type, c.Port)
	}
	return string(c.Type)
}

// Input is one tick's worth of input to the Controller.
type Input struct {
	Time    time.Time
	Command *Command // at most one pending command per tick
}

// EventType identifies what a Controller event describes.
type EventType string

const (
	// EventState is a port state transition; Cool and Heat carry the new duty.
	EventState EventType = "STATE"
	// EventTelemetry is a changed (position, strength) pair.
	EventTelemetry EventType = "TELEMETRY"
	// EventRunStarted marks the start of an auto-test or experiment.
	EventRunStarted EventType = "RUN_STARTED"
	// EventStepDone marks a finished auto-test port or experiment trial.
	EventStepDone EventType = "STEP_DONE"
	// EventRunFinished marks a sequencer that ran to completion.
	EventRunFinished EventType = "RUN_FINISHED"
	// EventStopped marks a Stop command being applied.
	EventStopped EventType = "STOPPED"
	// EventIgnored marks a command whose precondition did not hold.
	EventIgnored EventType = "IGNORED"
)

// Event is an output of the Controller to be applied by the caller.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Port      int // -1 when not port specific
	State     PortState
	Cool      uint8
	Heat      uint8
	Telemetry Telemetry
	Mode      Mode
	Step      int // auto-test port index or experiment trial index
	Stimulus  Stimulus
	Command   Command
}

// Counts tracks sequencer activity since startup.
type Counts struct {
	AutoTests   int
	Experiments int
	Completed   int
	Stopped     int
	Stimuli     int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
