package journal

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
)

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Recorder turns controller events into journal rows. It is owned by the
// tick loop and is not safe for concurrent use.
type Recorder struct {
	store Store
	newID func() string

	run  string // active run, "" when none
	last string // most recent run
	seq  int
}

// NewRecorder records into store. A nil store records nothing.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, newID: NewRunID}
}

// RunID returns the active run, or the most recent one when idle.
func (r *Recorder) RunID() string {
	if r.run != "" {
		return r.run
	}
	return r.last
}

// Record stores one tick's events. Recording continues past a failed write;
// the first error is returned.
func (r *Recorder) Record(ctx context.Context, events []logic.Event) error {
	if r.store == nil {
		return nil
	}
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	for _, e := range events {
		switch e.Type {
		case logic.EventRunStarted:
			if r.run != "" {
				keep(r.finish(ctx, e, OutcomeStopped))
			}
			id := r.newID()
			if err := r.store.StartRun(ctx, Run{ID: id, Mode: e.Mode, StartedAt: e.Timestamp, Outcome: OutcomeRunning}); err != nil {
				keep(fmt.Errorf("start run: %w", err))
				continue
			}
			r.run, r.last, r.seq = id, id, 0

		case logic.EventRunFinished:
			keep(r.finish(ctx, e, OutcomeCompleted))

		case logic.EventStopped:
			keep(r.finish(ctx, e, OutcomeStopped))

		case logic.EventState, logic.EventStepDone, logic.EventTelemetry:
			if r.run == "" {
				continue
			}
			keep(r.append(ctx, e))
		}
	}
	return first
}

func (r *Recorder) append(ctx context.Context, e logic.Event) error {
	entry := Entry{
		RunID:     r.run,
		Seq:       r.seq,
		Timestamp: e.Timestamp,
		Kind:      e.Type,
		Port:      e.Port,
		Step:      e.Step,
	}
	switch e.Type {
	case logic.EventState:
		entry.State = e.State.String()
	case logic.EventTelemetry:
		entry.Telemetry = e.Telemetry.Line()
	}
	r.seq++
	if err := r.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (r *Recorder) finish(ctx context.Context, e logic.Event, outcome Outcome) error {
	if r.run == "" {
		return nil
	}
	id := r.run
	r.run = ""
	if err := r.store.FinishRun(ctx, id, e.Timestamp, outcome); err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}
