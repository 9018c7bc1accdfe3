package logic

import (
	"fmt"
	"time"
)

// TrialCount is the fixed length of the experiment script.
const TrialCount = 20

// DefaultTrials is the pre-authored experiment script. It is part of the
// experimental protocol and must not be generated at runtime.
var DefaultTrials = [TrialCount]Trial{
	{Port: 1, Stimulus: StimulusCool, Interval: 1200 * time.Millisecond},
	{Port: 2, Stimulus: StimulusHeat, Interval: 1800 * time.Millisecond},
	{Port: 0, Stimulus: StimulusCool, Interval: 1500 * time.Millisecond},
	{Port: 0, Stimulus: StimulusCool, Interval: 1100 * time.Millisecond},
	{Port: 1, Stimulus: StimulusHeat, Interval: 1900 * time.Millisecond},
	{Port: 2, Stimulus: StimulusCool, Interval: 1300 * time.Millisecond},
	{Port: 0, Stimulus: StimulusHeat, Interval: 1600 * time.Millisecond},
	{Port: 1, Stimulus: StimulusCool, Interval: 1000 * time.Millisecond},
	{Port: 2, Stimulus: StimulusHeat, Interval: 1400 * time.Millisecond},
	{Port: 0, Stimulus: StimulusHeat, Interval: 2000 * time.Millisecond},
	{Port: 2, Stimulus: StimulusCool, Interval: 1700 * time.Millisecond},
	{Port: 1, Stimulus: StimulusHeat, Interval: 1250 * time.Millisecond},
	{Port: 0, Stimulus: StimulusCool, Interval: 1850 * time.Millisecond},
	{Port: 2, Stimulus: StimulusHeat, Interval: 1150 * time.Millisecond},
	{Port: 1, Stimulus: StimulusCool, Interval: 1650 * time.Millisecond},
	{Port: 0, Stimulus: StimulusHeat, Interval: 1350 * time.Millisecond},
	{Port: 2, Stimulus: StimulusCool, Interval: 1950 * time.Millisecond},
	{Port: 1, Stimulus: StimulusHeat, Interval: 1050 * time.Millisecond},
	{Port: 2, Stimulus: StimulusHeat, Interval: 1550 * time.Millisecond},
	{Port: 0, Stimulus: StimulusHeat, Interval: 1450 * time.Millisecond},
}

// ValidateTrials checks a trial script against a port count.
func ValidateTrials(trials []Trial, ports int) error {
	if len(trials) != TrialCount {
		return fmt.Errorf("trial table has %d entries, want %d", len(trials), TrialCount)
	}
	for i, tr := range trials {
		if tr.Port < 0 || tr.Port >= ports {
			return fmt.Errorf("trial %d: port %d out of range [0,%d)", i, tr.Port, ports)
		}
		if !tr.Stimulus.Valid() {
			return fmt.Errorf("trial %d: invalid stimulus %v", i, tr.Stimulus)
		}
		if tr.Interval <= 0 {
			return fmt.Errorf("trial %d: non-positive interval %v", i, tr.Interval)
		}
	}
	return nil
}

// ExpPhase is the position of the experiment within one trial.
type ExpPhase uint8

const (
	ExpStimulus ExpPhase = iota
	ExpEndPhase
	ExpInterval
)

func (p ExpPhase) String() string {
	switch p {
	case ExpStimulus:
		return "STIMULUS"
	case ExpEndPhase:
		return "END_PHASE"
	case ExpInterval:
		return "INTERVAL"
	}
	return fmt.Sprintf("ExpPhase(%d)", uint8(p))
}

// Experiment replays the trial script in index order.
type Experiment struct {
	bank   *Bank
	trials []Trial

	active         bool
	trial          int
	phase          ExpPhase
	phaseStartedAt time.Time
}

// NewExperiment creates an inactive experiment. The trials must already have
// passed ValidateTrials for bank.
func NewExperiment(bank *Bank, trials []Trial) *Experiment {
	return &Experiment{
		bank:   bank,
		trials: append([]Trial(nil), trials...),
	}
}

// Active reports whether the experiment is running.
func (e *Experiment) Active() bool {
	return e.active
}

// Position returns the current trial index and phase.
func (e *Experiment) Position() (int, ExpPhase) {
	return e.trial, e.phase
}

// Trials returns a copy of the script.
func (e *Experiment) Trials() []Trial {
	return append([]Trial(nil), e.trials...)
}

// Start begins trial 0. The caller checks preconditions.
func (e *Experiment) Start(now time.Time) []Event {
	e.active = true
	return e.beginTrial(0, now)
}

// Clear deactivates the experiment and forgets its context.
func (e *Experiment) Clear() {
	e.active = false
	e.trial = 0
	e.phase = ExpStimulus
	e.phaseStartedAt = time.Time{}
}

// Step advances the experiment. It must run after the Bank has ticked.
func (e *Experiment) Step(now time.Time) []Event {
	if !e.active {
		return nil
	}

	switch e.phase {
	case ExpStimulus:
		id := PortID(e.trials[e.trial].Port)
		if !e.bank.Idle(id) {
			return nil
		}
		e.phase = ExpEndPhase
		e.phaseStartedAt = now
		return []Event{e.bank.ForceEnd(id, e.trials[e.trial].Stimulus, now)}

	case ExpEndPhase:
		id := PortID(e.trials[e.trial].Port)
		if !e.bank.Idle(id) {
			return nil
		}
		events := []Event{{Timestamp: now, Type: EventStepDone, Port: int(id), Mode: ModeExperiment, Step: e.trial, Stimulus: e.trials[e.trial].Stimulus}}
		e.trial++
		if e.trial >= len(e.trials) {
			e.Clear()
			return append(events, Event{Timestamp: now, Type: EventRunFinished, Port: -1, Mode: ModeExperiment})
		}
		e.phase = ExpInterval
		e.phaseStartedAt = now
		return events

	case ExpInterval:
		if now.Sub(e.phaseStartedAt) < e.trials[e.trial-1].Interval {
			return nil
		}
		return e.beginTrial(e.trial, now)
	}
	return nil
}

func (e *Experiment) beginTrial(i int, now time.Time) []Event {
	e.trial = i
	e.phase = ExpStimulus
	e.phaseStartedAt = now
	tr := e.trials[i]
	ev, ok := e.bank.Start(PortID(tr.Port), tr.Stimulus, now)
	if !ok {
		return nil
	}
	ev.Step = i
	return []Event{ev}
}
