package logic

import (
	"fmt"
	"time"
)

// Config is the static configuration of a Controller.
type Config struct {
	Ports     []Port
	Trials    []Trial
	PortPause time.Duration // wait between auto-test ports
}

// Controller owns the port bank, both sequencers and the telemetry emitter.
// Process is the only mutator and must not be called concurrently.
type Controller struct {
	bank *Bank
	auto *AutoTest
	exp  *Experiment
	tel  *Emitter

	startTime     time.Time
	lastHeartbeat time.Time
	counts        Counts
}

// NewController validates cfg and creates a Controller with every port Idle.
// Configuration errors are fatal to the caller; nothing is checked at runtime.
func NewController(cfg Config, startTime time.Time) (*Controller, error) {
	bank, err := NewBank(cfg.Ports)
	if err != nil {
		return nil, err
	}
	if err := ValidateTrials(cfg.Trials, bank.Len()); err != nil {
		return nil, err
	}
	if cfg.PortPause < 0 {
		return nil, fmt.Errorf("negative port pause %v", cfg.PortPause)
	}
	return &Controller{
		bank:          bank,
		auto:          NewAutoTest(bank, cfg.PortPause),
		exp:           NewExperiment(bank, cfg.Trials),
		tel:           NewEmitter(),
		startTime:     startTime,
		lastHeartbeat: startTime,
	}, nil
}

// Process runs one tick: ports first, then the active sequencer, then the
// pending command. A telemetry event is appended when the derived pair changed.
func (c *Controller) Process(input Input) []Event {
	now := input.Time
	mode := c.Mode()

	events := c.bank.Tick(now)
	switch mode {
	case ModeAutoTest:
		events = append(events, c.auto.Step(now)...)
	case ModeExperiment:
		events = append(events, c.exp.Step(now)...)
	}

	if input.Command != nil {
		events = append(events, c.handle(*input.Command, now)...)
	}

	if t := DeriveTelemetry(c.bank); c.tel.Observe(t) {
		events = append(events, Event{Timestamp: now, Type: EventTelemetry, Port: -1, Telemetry: t})
	}

	c.count(events)
	return events
}

func (c *Controller) handle(cmd Command, now time.Time) []Event {
	ignored := []Event{{Timestamp: now, Type: EventIgnored, Port: -1, Command: cmd, Mode: c.Mode()}}

	switch cmd.Type {
	case CommandStop:
		events := c.bank.Reset(now)
		c.auto.Clear()
		c.exp.Clear()
		c.tel.Reset()
		return append(events, Event{Timestamp: now, Type: EventStopped, Port: -1, Command: cmd})

	case CommandStartAutoTest, CommandStartExperiment:
		if c.Mode() != ModeIdle || !c.bank.AllIdle() {
			return ignored
		}
		if cmd.Type == CommandStartAutoTest {
			started := Event{Timestamp: now, Type: EventRunStarted, Port: -1, Mode: ModeAutoTest, Command: cmd}
			return append([]Event{started}, c.auto.Start(now)...)
		}
		started := Event{Timestamp: now, Type: EventRunStarted, Port: -1, Mode: ModeExperiment, Command: cmd}
		return append([]Event{started}, c.exp.Start(now)...)

	case CommandStartHeat, CommandStartCool:
		id, ok := c.bank.Lookup(cmd.Port)
		if !ok || c.Mode() != ModeIdle {
			return ignored
		}
		k := StimulusHeat
		if cmd.Type == CommandStartCool {
			k = StimulusCool
		}
		ev, ok := c.bank.Start(id, k, now)
		if !ok {
			return ignored
		}
		return []Event{ev}
	}
	return ignored
}

func (c *Controller) count(events []Event) {
	for _, e := range events {
		switch e.Type {
		case EventRunStarted:
			if e.Mode == ModeAutoTest {
				c.counts.AutoTests++
			} else {
				c.counts.Experiments++
			}
		case EventRunFinished:
			c.counts.Completed++
		case EventStopped:
			c.counts.Stopped++
		case EventState:
			if e.State == StateHeatStart || e.State == StateCoolStart {
				c.counts.Stimuli++
			}
		}
	}
}

// Mode reports the active sequencer.
func (c *Controller) Mode() Mode {
	switch {
	case c.auto.Active():
		return ModeAutoTest
	case c.exp.Active():
		return ModeExperiment
	}
	return ModeIdle
}

// Bank exposes the port bank for read-only inspection.
func (c *Controller) Bank() *Bank {
	return c.bank
}

// Counts returns a copy of the activity counters.
func (c *Controller) Counts() Counts {
	return c.counts
}

// PortView is a read-only view of one port.
type PortView struct {
	Name  string
	State PortState
	Cool  uint8
	Heat  uint8
	Since time.Time
}

// View is a read-only snapshot of the controller for status consumers.
type View struct {
	Mode      Mode
	Ports     []PortView
	AutoPort  int
	AutoPhase AutoPhase
	Trial     int
	ExpPhase  ExpPhase
	Telemetry Telemetry
	Counts    Counts
}

// View captures the controller state.
func (c *Controller) View() View {
	v := View{
		Mode:   c.Mode(),
		Ports:  make([]PortView, c.bank.Len()),
		Counts: c.counts,
	}
	for i := range v.Ports {
		rt := c.bank.Runtime(PortID(i))
		cool, heat := timings[rt.State].Duty()
		v.Ports[i] = PortView{
			Name:  c.bank.Port(PortID(i)).Name,
			State: rt.State,
			Cool:  cool,
			Heat:  heat,
			Since: rt.EnteredAt,
		}
	}
	port, phase := c.auto.Position()
	v.AutoPort, v.AutoPhase = int(port), phase
	v.Trial, v.ExpPhase = c.exp.Position()
	v.Telemetry, _ = c.tel.Last()
	return v
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if interval is <= 0 (disabled).
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}
	c.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Counts:    c.counts,
	}
}
