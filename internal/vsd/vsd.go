// Package vsd implements the Virtual SD Executor (spec.md §4.1): the
// controller's work loop. It owns file selection, the cooperative line
// pump that drives the G-code dispatcher, pause/resume/cancel mechanics,
// layer-key interception into the time-lapse coordinator, and checkpoint
// emission, grounded on virtual_sdcard.py's work_handler and on the
// teacher's job.go shape ("own a mutex-guarded status struct, run a
// monitor goroutine, expose a done channel").
package vsd

import (
	"os"
	"sync"
	"time"

	"github.com/rohitsakala/printcore/internal/checkpoint"
	"github.com/rohitsakala/printcore/internal/config"
	"github.com/rohitsakala/printcore/internal/dispatcher"
	"github.com/rohitsakala/printcore/internal/perrors"
	"github.com/rohitsakala/printcore/internal/printstats"
	"github.com/rohitsakala/printcore/internal/reactor"
	"github.com/rohitsakala/printcore/internal/timelapse"
)

// Config is the fixed, printer-specific configuration the Executor needs,
// standing in for the values the original reads from its `config` object
// and printer.start_args.
type Config struct {
	// SDCardDir is the directory G-code files are selected from.
	SDCardDir string
	// StateRoot is "/mnt/UDISK/.crealityprint" in production: the
	// directory holding print_switch.txt, time_lapse.yaml, and this
	// printer's checkpoint and name-save files. The lifetime-counter file
	// lives under printstats.LifetimeCounterRoot, not here.
	StateRoot string
	// Serial names this printer's checkpoint/sidecar files:
	// "<root>/<serial>_gcode_coordinate.save" etc.
	Serial string
	// Index is this printer's index string ("1".."4"), used as the
	// time_lapse.yaml key and passed through to printstats.
	Index string
	// USB is the connected capture device's serial identifier, matched
	// against TimelapseConfig.USB before enabling per-layer capture. An
	// empty value always matches (single-printer deployments).
	USB string
	// VideoDevicePath overrides the capture-device liveness probe path
	// (default "/dev/video0").
	VideoDevicePath string
}

// ReactorClock adapts *reactor.Reactor to internal/printstats.Clock, whose
// Monotonic returns a plain float64 rather than reactor.Eventtime.
type ReactorClock struct{ R *reactor.Reactor }

func (c ReactorClock) Monotonic() float64 { return float64(c.R.Monotonic()) }

func (c Config) printSwitchPath() string   { return c.StateRoot + "/print_switch.txt" }
func (c Config) timelapseYAMLPath() string { return c.StateRoot + "/time_lapse.yaml" }
func (c Config) checkpointPath() string    { return c.StateRoot + "/" + c.Serial + "_gcode_coordinate.save" }
func (c Config) nameSavePath() string      { return c.StateRoot + "/" + c.Serial + "_print_file_name.save" }

// job is the state of one loaded file, created by load and torn down by
// cancel, completion, or reset (spec.md §3 "Job"). Every field is read or
// written from both the work loop's goroutine and command-dispatch
// goroutines, so all access must hold the owning Executor's mu.
type job struct {
	file *os.File
	path string
	size int64

	position int64

	// running is true exactly while the work timer is armed.
	running bool
	// inDispatch is true while a file-sourced line is being dispatched.
	inDispatch bool

	cmdCount int
	g1Count  int
	lastE    float64
	lastX    float64
	lastY    float64
	lastZ    float64
	fanCmd   string
}

// Executor is the Virtual SD Executor for one printer. Exactly one job may
// be active at a time. All exported methods are safe for concurrent use.
// The work loop runs on its own goroutine, one reactor timer per print,
// concurrently with command dispatch on the caller's goroutine; every job
// field the two sides share is guarded by mu, not by any single-goroutine
// assumption.
type Executor struct {
	cfg        Config
	reactor    *reactor.Reactor
	dispatcher *dispatcher.Dispatcher
	stats      *printstats.Stats
	renderer   timelapse.Renderer
	device     timelapse.DeviceChecker
	sleeper    timelapse.Sleeper
	gcode      gcodeRunner

	mu               sync.Mutex
	job              *job
	mustPauseWork    bool
	cmdFromSD        bool
	nextFilePosition int64
	timer            *reactor.Timer
	tl               *timelapse.Coordinator
	cancelPrintState bool
}

// New creates an Executor and registers its G-code commands on d.
func New(cfg Config, r *reactor.Reactor, d *dispatcher.Dispatcher, stats *printstats.Stats, renderer timelapse.Renderer) *Executor {
	if cfg.StateRoot == "" {
		cfg.StateRoot = "/mnt/UDISK/.crealityprint"
	}
	e := &Executor{
		cfg:        cfg,
		reactor:    r,
		dispatcher: d,
		stats:      stats,
		renderer:   renderer,
		device:     timelapse.NewFileDeviceChecker(cfg.VideoDevicePath),
		sleeper:    timelapse.RealSleeper(),
		gcode:      lockedGCodeRunner{d: d},
	}
	e.registerCommands(d)
	return e
}

// IsActive reports whether a work timer is currently armed, satisfying
// internal/pauseresume.Executor.
func (e *Executor) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timer != nil
}

// SetResumeStatus mirrors the original's do_resume_status flag, set by
// pause/resume immediately before calling DoResume so a subsequent status
// read can distinguish "resuming" from "starting fresh". Retained purely
// as a write sink — spec.md gives it no further behavior.
func (e *Executor) SetResumeStatus(bool) {}

// ResetCancelState clears the cancel_print_state flag, mirroring the
// original's self.v_sd.cancel_print_state = False (spec.md §9 open
// question: guarded here by pauseresume's nil-check on this Executor, not
// by any check inside ResetCancelState itself).
func (e *Executor) ResetCancelState() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelPrintState = false
}

// Status is the JSON-shaped snapshot spec.md §6 assigns to the Executor.
type Status struct {
	FilePath     string  `json:"file_path"`
	Progress     float64 `json:"progress"`
	IsActive     bool    `json:"is_active"`
	FilePosition int64   `json:"file_position"`
	FileSize     int64   `json:"file_size"`
}

// Status returns the current snapshot.
func (e *Executor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	var path string
	var size, pos int64
	if e.job != nil {
		path = e.job.path
		size = e.job.size
		pos = e.job.position
	}
	var progress float64
	if size > 0 {
		progress = float64(pos) / float64(size)
	}
	return Status{
		FilePath:     path,
		Progress:     progress,
		IsActive:     e.timer != nil,
		FilePosition: pos,
		FileSize:     size,
	}
}

// GetFilePosition returns the pending seek target set by SetFilePosition.
func (e *Executor) GetFilePosition() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextFilePosition
}

// SetFilePosition records a pending seek the work loop applies after the
// line currently in flight finishes dispatching. M26 does not use it; it
// sets the job position directly while no print is running.
func (e *Executor) SetFilePosition(pos int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextFilePosition = pos
}

// DoResume arms the work timer, matching do_resume: Busy if already armed.
func (e *Executor) DoResume() error {
	e.mu.Lock()
	if e.timer != nil {
		e.mu.Unlock()
		return perrors.Busy("SD busy")
	}
	e.mustPauseWork = false
	e.mu.Unlock()

	timer := e.reactor.RegisterTimer(e.workHandler, reactor.NOW)
	e.mu.Lock()
	e.timer = timer
	e.mu.Unlock()
	return nil
}

// DoPause requests the work loop park at its next opportunity and blocks
// until it has, spin-probing every 1ms (spec.md §4.1 "pause()"). While a
// file-sourced line is being dispatched it returns at once instead, so
// the loop may still be finishing that line when DoPause returns.
func (e *Executor) DoPause() {
	e.mu.Lock()
	active := e.timer != nil
	e.mu.Unlock()
	if !active {
		return
	}

	e.mu.Lock()
	e.mustPauseWork = true
	e.mu.Unlock()

	for {
		e.mu.Lock()
		done := e.timer == nil || e.cmdFromSD
		e.mu.Unlock()
		if done {
			return
		}
		e.reactor.PauseFor(time.Millisecond)
	}
}

// DoCancel tears the job down: pauses, closes the file, zeros offsets, and
// notifies Print Stats (spec.md §4.1 "cancel()").
func (e *Executor) DoCancel() {
	e.mu.Lock()
	hasJob := e.job != nil
	e.mu.Unlock()

	if hasJob {
		e.DoPause()
		e.mu.Lock()
		if e.job != nil && e.job.file != nil {
			e.job.file.Close()
		}
		e.job = nil
		e.cancelPrintState = true
		e.mu.Unlock()
		e.stats.NoteCancel()
		if e.tl != nil {
			_ = e.tl.InvokeRenderer()
		}
		_ = checkpoint.NewStore(e.cfg.checkpointPath()).Remove()
		_ = checkpoint.RemoveNameSave(e.cfg.nameSavePath())
	}

	e.mu.Lock()
	e.job = nil
	e.mu.Unlock()
}

// resetFile mirrors _reset_file: pause, close, zero, and reset Print Stats.
func (e *Executor) resetFile() {
	e.mu.Lock()
	hasJob := e.job != nil
	e.mu.Unlock()
	if hasJob {
		e.DoPause()
		e.mu.Lock()
		if e.job != nil && e.job.file != nil {
			e.job.file.Close()
		}
		e.job = nil
		e.mu.Unlock()
	}
	e.stats.Reset()
}

// filePathOrNil returns the loaded file's absolute path, or "" when idle,
// matching file_path().
func (e *Executor) filePathOrNil() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job == nil {
		return ""
	}
	return e.job.path
}
