// Package web provides the HTTP status page and command surface for the
// peltier-stim daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/Kzm-Igrsh/EX-peltier/internal/input"
	"github.com/Kzm-Igrsh/EX-peltier/internal/journal"
	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
	"github.com/Kzm-Igrsh/EX-peltier/internal/status"
)

// Commander accepts commands for the tick loop.
type Commander interface {
	Submit(cmd logic.Command) error
}

// Server serves the status page and accepts commands over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	commands   Commander
	runs       journal.Store // nil when the journal is disabled
}

// New creates a Server that reads state from tracker and forwards commands.
func New(addr string, tracker *status.Tracker, commands Commander, runs journal.Store) *Server {
	s := &Server{tracker: tracker, commands: commands, runs: runs}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /runs.json", s.handleRuns)
	mux.HandleFunc("POST /command/{name}", s.handleCommand)
	mux.HandleFunc("POST /touch", s.handleTouch)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// RunJSON is the JSON representation of a journal run.
type RunJSON struct {
	ID        string `json:"id"`
	Mode      string `json:"mode"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
	Outcome   string `json:"outcome"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		log.Printf("web: list runs: %v", err)
		http.Error(w, "journal error", http.StatusInternalServerError)
		return
	}
	out := make([]RunJSON, len(runs))
	for i, run := range runs {
		out[i] = RunJSON{
			ID:        run.ID,
			Mode:      string(run.Mode),
			StartedAt: run.StartedAt.UTC().Format(timeFormat),
			Outcome:   string(run.Outcome),
		}
		if !run.EndedAt.IsZero() {
			out[i].EndedAt = run.EndedAt.UTC().Format(timeFormat)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// commandNames maps the URL segment to the command it queues.
var commandNames = map[string]logic.CommandType{
	"autotest":   logic.CommandStartAutoTest,
	"experiment": logic.CommandStartExperiment,
	"stop":       logic.CommandStop,
	"heat":       logic.CommandStartHeat,
	"cool":       logic.CommandStartCool,
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	typ, ok := commandNames[r.PathValue("name")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	cmd := logic.Command{Type: typ}
	if typ == logic.CommandStartHeat || typ == logic.CommandStartCool {
		port, err := strconv.Atoi(r.URL.Query().Get("port"))
		if err != nil {
			http.Error(w, "port must be an integer", http.StatusBadRequest)
			return
		}
		cmd.Port = port
	}
	s.submit(w, cmd)
}

func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, errX := strconv.Atoi(q.Get("x"))
	y, errY := strconv.Atoi(q.Get("y"))
	if errX != nil || errY != nil {
		http.Error(w, "x and y must be integers", http.StatusBadRequest)
		return
	}
	cmd, ok := input.Decode(x, y)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.submit(w, cmd)
}

func (s *Server) submit(w http.ResponseWriter, cmd logic.Command) {
	if err := s.commands.Submit(cmd); err != nil {
		if errors.Is(err, input.ErrQueueFull) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("web: %s queued", cmd)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"queued": cmd.String()})
}
