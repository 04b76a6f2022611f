// Package printstats tracks the pause-aware duration, filament usage, and
// lifetime-counter accounting for the print currently (or most recently)
// active on one printer, ported from the original's PrintStats class
// (spec.md §4.3).
package printstats

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rohitsakala/printcore/internal/checkpoint"
)

// State is the small enum PrintStats.state cycles through.
type State string

const (
	StateStandby   State = "standby"
	StatePrinting  State = "printing"
	StatePaused    State = "paused"
	StateComplete  State = "complete"
	StateError     State = "error"
	StateCancelled State = "cancelled"
)

// ExtruderPosition is the subset of gcode_move's status this package needs
// to compute filament usage (spec.md §4.3 "gcode_move collaborator").
type ExtruderPosition struct {
	E              float64
	ExtrudeFactor  float64
}

// PositionSource supplies the live extruder position, standing in for the
// original's printer.load_object(config, 'gcode_move') collaborator.
type PositionSource interface {
	ExtruderPosition(eventtime float64) ExtruderPosition
}

// Clock supplies the current time, standing in for reactor.monotonic().
type Clock interface {
	Monotonic() float64
}

// Status is the snapshot returned by Status, mirroring the original's
// get_status dict (spec.md §6).
type Status struct {
	Filename       string
	TotalDuration  float64
	PrintDuration  float64
	FilamentUsed   float64
	State          State
	Message        string
}

// Stats accumulates one printer's print statistics. All exported methods
// are safe for concurrent use.
type Stats struct {
	pos   PositionSource
	clock Clock
	index string

	mu sync.Mutex

	filename      string
	errorMessage  string
	state         State
	prevPause     float64
	lastEpos      float64
	filamentUsed  float64
	totalDuration float64
	printStart    *float64
	lastPauseTime *float64
	initDuration  float64

	lastTotalPrintTime    float64
	lastNewTotalPrintTime float64
}

// New creates a Stats tracker for printer index idx (the last character of
// the daemon's --apiserver argument, or "1" when it ends in 's').
func New(pos PositionSource, clock Clock, idx string) *Stats {
	s := &Stats{pos: pos, clock: clock, index: idx}
	s.reset()
	last := s.lastTotalPrintTimeFromDisk()
	s.lastTotalPrintTime = last
	s.lastNewTotalPrintTime = last
	return s
}

// SetCurrentFile resets accounting and records the filename about to print.
func (s *Stats) SetCurrentFile(filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.filename = filename
}

// Reset clears all accounting back to the standby state.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Stats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Stats) resetLocked() {
	s.filename = ""
	s.errorMessage = ""
	s.state = StateStandby
	s.prevPause = 0
	s.lastEpos = 0
	s.filamentUsed = 0
	s.totalDuration = 0
	s.printStart = nil
	s.lastPauseTime = nil
	s.initDuration = 0
}

func (s *Stats) updateFilamentUsageLocked(eventtime float64) {
	if s.pos == nil {
		return
	}
	p := s.pos.ExtruderPosition(eventtime)
	factor := p.ExtrudeFactor
	if factor == 0 {
		factor = 1
	}
	s.filamentUsed += (p.E - s.lastEpos) / factor
	s.lastEpos = p.E
}

// NoteStart records the start of a print, resuming lifetime-counter
// accounting from infoPath's last_print_duration/filament_used fields when
// present (spec.md §4.3 "crash-recovery resume"). infoPath is the checkpoint
// filename sidecar (internal/checkpoint.NameSave); a missing or unreadable
// file is treated the same as a fresh print.
func (s *Stats) NoteStart(infoPath string) {
	curtime := s.clock.Monotonic()

	var saved *checkpoint.NameSave
	if infoPath != "" {
		if _, err := os.Stat(infoPath); err == nil {
			if ns, err := checkpoint.LoadNameSave(infoPath); err == nil {
				saved = ns
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if saved != nil {
		s.filamentUsed = saved.FilamentUsed
	}

	if s.pos != nil {
		s.lastEpos = s.pos.ExtruderPosition(curtime).E
	}

	switch {
	case s.printStart == nil:
		start := curtime
		if saved != nil && saved.LastPrintDuration != 0 {
			start = curtime - float64(int64(saved.LastPrintDuration))
		}
		s.printStart = &start
	case s.lastPauseTime != nil:
		pauseDuration := curtime - *s.lastPauseTime
		s.prevPause += pauseDuration
		s.lastPauseTime = nil
	}

	s.state = StatePrinting
	s.errorMessage = ""
	last := s.lastTotalPrintTimeFromDisk()
	s.lastTotalPrintTime = last
	s.lastNewTotalPrintTime = last
}

// NotePause records the start of a pause, freezing filament accounting.
func (s *Stats) NotePause() {
	curtime := s.clock.Monotonic()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastPauseTime == nil {
		t := curtime
		s.lastPauseTime = &t
		s.updateFilamentUsageLocked(curtime)
	}
	if s.state != StateError {
		s.state = StatePaused
	}
}

// NoteComplete records a successful print completion.
func (s *Stats) NoteComplete() { s.noteFinish(StateComplete, "") }

// NoteError records a print aborted by an error.
func (s *Stats) NoteError(message string) { s.noteFinish(StateError, message) }

// NoteCancel records a user-cancelled print.
func (s *Stats) NoteCancel() { s.noteFinish(StateCancelled, "") }

func (s *Stats) noteFinish(state State, errMessage string) {
	eventtime := s.clock.Monotonic()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.printStart == nil {
		return
	}
	s.state = state
	s.errorMessage = errMessage
	s.totalDuration = eventtime - *s.printStart
	if s.filamentUsed < 0.0000001 {
		s.initDuration = s.totalDuration - s.prevPause
	}
	s.printStart = nil
}

// GetStatus computes and returns the current snapshot at eventtime,
// persisting the lifetime total-print-time counter when it has advanced
// (spec.md §4.3, Testable Property 3 & 4).
func (s *Stats) GetStatus(eventtime float64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	timePaused := s.prevPause
	if s.printStart != nil {
		if s.lastPauseTime != nil {
			timePaused += eventtime - *s.lastPauseTime
		} else {
			s.updateFilamentUsageLocked(eventtime)
		}
		s.totalDuration = eventtime - *s.printStart
		if s.filamentUsed < 0.0000001 {
			s.initDuration = s.totalDuration - timePaused
		}
	}

	printDuration := s.totalDuration - s.initDuration - timePaused
	newTotal := printDuration/60 + s.lastTotalPrintTime
	if newTotal > s.lastNewTotalPrintTime {
		s.setTotalPrintTimeToDisk(newTotal)
		s.lastNewTotalPrintTime = newTotal
	}

	return Status{
		Filename:      s.filename,
		TotalDuration: s.totalDuration,
		PrintDuration: printDuration,
		FilamentUsed:  s.filamentUsed,
		State:         s.state,
		Message:       s.errorMessage,
	}
}

// lifetimeCounterPath is the per-printer totaltime file the original keeps
// under /mnt/UDISK/.crealityprint; the root is overridable for tests via
// LifetimeCounterRoot.
var LifetimeCounterRoot = "/mnt/UDISK/.crealityprint"

func (s *Stats) lifetimeCounterPath() string {
	idx := s.index
	if idx == "" {
		idx = "1"
	}
	return LifetimeCounterRoot + "/printer" + idx + "_totaltime"
}

func (s *Stats) lastTotalPrintTimeFromDisk() float64 {
	data, err := os.ReadFile(s.lifetimeCounterPath())
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return float64(n)
}

func (s *Stats) setTotalPrintTimeToDisk(v float64) {
	_ = os.WriteFile(s.lifetimeCounterPath(), []byte(strconv.Itoa(int(v))), 0o644)
}

// IndexFromAPIServerArg derives the printer index from the daemon's
// --apiserver start argument: its last character, or "1" when that
// character is 's' (spec.md §4.3, mirroring the original's
// start_args.get("apiserver")[-1] check).
func IndexFromAPIServerArg(apiserver string) string {
	if apiserver == "" {
		return "1"
	}
	last := apiserver[len(apiserver)-1:]
	if last == "s" {
		return "1"
	}
	return last
}
