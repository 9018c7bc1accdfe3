package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the journal in a SQLite file.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping journal: %w", err)
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("create journal tables: %w", err)
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) StartRun(ctx context.Context, run Run) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, started_at, ended_at, outcome)
		VALUES (?, ?, ?, '', ?)
	`, run.ID, string(run.Mode), formatTime(run.StartedAt), string(run.Outcome))
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO entries (run_id, seq, ts, kind, port, state, step, telemetry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.RunID, e.Seq, formatTime(e.Timestamp), string(e.Kind), e.Port, e.State, e.Step, e.Telemetry)
	return err
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id string, endedAt time.Time, outcome Outcome) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE runs SET ended_at = ?, outcome = ? WHERE id = ?
	`, formatTime(endedAt), string(outcome), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("unknown run %s", id)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Run{}, false, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, mode, started_at, ended_at, outcome FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}
	return run, true, nil
}

func (s *SQLiteStore) Entries(ctx context.Context, runID string) ([]Entry, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT run_id, seq, ts, kind, port, state, step, telemetry
		FROM entries WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			ts, kind string
		)
		if err := rows.Scan(&e.RunID, &e.Seq, &ts, &kind, &e.Port, &e.State, &e.Step, &e.Telemetry); err != nil {
			return nil, err
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("decode entry %s/%d: %w", runID, e.Seq, err)
		}
		e.Kind = logic.EventType(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, mode, started_at, ended_at, outcome
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run                           Run
		mode, started, ended, outcome string
	)
	if err := sc.Scan(&run.ID, &mode, &started, &ended, &outcome); err != nil {
		return Run{}, err
	}
	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, fmt.Errorf("decode run %s: %w", run.ID, err)
	}
	if ended != "" {
		if run.EndedAt, err = parseTime(ended); err != nil {
			return Run{}, fmt.Errorf("decode run %s: %w", run.ID, err)
		}
	}
	run.Mode = logic.Mode(mode)
	run.Outcome = Outcome(outcome)
	return run, nil
}

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			outcome TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS entries (
			run_id TEXT NOT NULL REFERENCES runs(id),
			seq INTEGER NOT NULL,
			ts TEXT NOT NULL,
			kind TEXT NOT NULL,
			port INTEGER NOT NULL,
			state TEXT NOT NULL,
			step INTEGER NOT NULL,
			telemetry TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);
	`)
	return err
}
