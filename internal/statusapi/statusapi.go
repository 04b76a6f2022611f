// Package statusapi exposes the controller's status objects over HTTP as
// JSON (spec.md §6 "Status object (returned to HTTP/JSON consumers)"), and
// accepts the same print-control commands cmd/printctl issues. net/http's
// ServeMux is used directly (stdlib, justified in DESIGN.md): no corpus
// repo carries an HTTP router dependency proportionate to a handful of
// read-only status routes plus four control actions.
package statusapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rohitsakala/printcore/internal/printstats"
	"github.com/rohitsakala/printcore/internal/vsd"
)

// ExecutorStatus is the subset of *vsd.Executor this package reads.
type ExecutorStatus interface {
	Status() vsd.Status
}

// PauseStatus is the subset of *pauseresume.Controller this package reads.
type PauseStatus interface {
	IsPaused() bool
}

// PrintStatsProvider is the subset of *printstats.Stats this package reads.
type PrintStatsProvider interface {
	GetStatus(eventtime float64) printstats.Status
}

// Clock supplies the eventtime GetStatus needs, matching printstats.Clock.
type Clock interface {
	Monotonic() float64
}

// CommandRunner dispatches a line of G-code, standing in for the local
// webhook/transport surface a remote printctl invocation arrives through.
type CommandRunner interface {
	Run(line string) error
}

// Combined is the three-status-object payload returned by GET /printer/status.
type Combined struct {
	Executor   vsd.Status        `json:"virtual_sdcard"`
	PauseState PauseState        `json:"pause_resume"`
	PrintStats printstats.Status `json:"print_stats"`
}

// PauseState is pause_resume's status object (spec.md §6).
type PauseState struct {
	IsPaused bool `json:"is_paused"`
}

// Server wires the status and control surface into an *http.ServeMux.
type Server struct {
	executor ExecutorStatus
	pause    PauseStatus
	stats    PrintStatsProvider
	clock    Clock
	cmd      CommandRunner

	mu   sync.Mutex
	logs []string
}

const logRingSize = 200

// New builds a Server. cmd may be nil, in which case the control routes
// respond 503 rather than panicking — useful for a read-only status mirror.
func New(executor ExecutorStatus, pause PauseStatus, stats PrintStatsProvider, clock Clock, cmd CommandRunner) *Server {
	return &Server{executor: executor, pause: pause, stats: stats, clock: clock, cmd: cmd}
}

// RecordLog appends a line to the in-memory response ring GET /printer/logs
// serves. There is no subprocess output to tail on this surface, so this
// tails the dispatcher's own response lines instead.
func (s *Server) RecordLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, line)
	if len(s.logs) > logRingSize {
		s.logs = s.logs[len(s.logs)-logRingSize:]
	}
}

func (s *Server) logSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logs...)
}

// Handler returns the ServeMux routing every status and control endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /printer/status", s.handleStatus)
	mux.HandleFunc("GET /printer/status/virtual_sdcard", s.handleExecutorStatus)
	mux.HandleFunc("GET /printer/status/pause_resume", s.handlePauseStatus)
	mux.HandleFunc("GET /printer/status/print_stats", s.handlePrintStatsStatus)
	mux.HandleFunc("GET /printer/logs", s.handleLogs)
	mux.HandleFunc("POST /printer/print/start", s.handleStart)
	mux.HandleFunc("POST /printer/print/pause", s.handleCommand("PAUSE"))
	mux.HandleFunc("POST /printer/print/resume", s.handleCommand("RESUME"))
	mux.HandleFunc("POST /printer/print/cancel", s.handleCommand("CANCEL_PRINT"))
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, Combined{
		Executor:   s.executor.Status(),
		PauseState: PauseState{IsPaused: s.pause.IsPaused()},
		PrintStats: s.stats.GetStatus(s.clock.Monotonic()),
	})
}

func (s *Server) handleExecutorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.executor.Status())
}

func (s *Server) handlePauseStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, PauseState{IsPaused: s.pause.IsPaused()})
}

func (s *Server) handlePrintStatsStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.stats.GetStatus(s.clock.Monotonic()))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logSnapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.cmd == nil {
		http.Error(w, "control surface unavailable", http.StatusServiceUnavailable)
		return
	}
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		http.Error(w, "missing filename", http.StatusBadRequest)
		return
	}
	if err := s.cmd.Run("SDCARD_PRINT_FILE FILENAME=" + filename); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCommand(line string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cmd == nil {
			http.Error(w, "control surface unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := s.cmd.Run(line); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
