// Package journal keeps an experimental record of every auto-test and
// experiment run: when it started, each stimulus transition and telemetry
// change, and how it ended.
package journal

import (
	"context"
	"time"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeCompleted Outcome = "completed"
	OutcomeStopped   Outcome = "stopped"
)

// Run is one auto-test or experiment.
type Run struct {
	ID        string
	Mode      logic.Mode
	StartedAt time.Time
	EndedAt   time.Time // zero while running
	Outcome   Outcome
}

// Entry is one recorded controller event within a run.
type Entry struct {
	RunID     string
	Seq       int
	Timestamp time.Time
	Kind      logic.EventType
	Port      int // -1 when not port specific
	State     string
	Step      int
	Telemetry string
}

// Store persists runs and their entries.
type Store interface {
	Init(ctx context.Context) error
	StartRun(ctx context.Context, run Run) error
	Append(ctx context.Context, entry Entry) error
	FinishRun(ctx context.Context, id string, endedAt time.Time, outcome Outcome) error
	GetRun(ctx context.Context, id string) (Run, bool, error)
	Entries(ctx context.Context, runID string) ([]Entry, error)
	// ListRuns returns up to limit runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
