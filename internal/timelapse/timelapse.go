// Package timelapse implements per-layer capture detection and the
// park/in-place excursion choreography the Virtual SD Executor triggers at
// layer boundaries (spec.md §3 "LayerKey set", §4.1 step 5, ported from
// virtual_sdcard.py's work_handler timelapse branch).
package timelapse

import (
	"fmt"
	"os"
	"time"

	"github.com/rohitsakala/printcore/internal/config"
)

// LayerKeys are the line prefixes that mark the start of a new layer.
var LayerKeys = []string{";LAYER", "; layer", "; LAYER", ";AFTER_LAYER_CHANGE"}

// MatchesLayerKey reports whether line begins with one of LayerKeys.
func MatchesLayerKey(line string) bool {
	for _, k := range LayerKeys {
		if len(line) >= len(k) && line[:len(k)] == k {
			return true
		}
	}
	return false
}

// GCodeRunner is the synchronous sub-command surface the excursion
// choreography dispatches through, shared in shape with
// internal/pauseresume.GCodeRunner.
type GCodeRunner interface {
	RunScriptFromCommand(line string) error
}

// Sleeper abstracts time.Sleep so tests can run the excursion without
// waiting on real wall-clock delays.
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// RealSleeper returns a Sleeper backed by time.Sleep.
func RealSleeper() Sleeper { return realSleeper{} }

// DeviceChecker reports whether the capture device is present.
type DeviceChecker interface {
	VideoDevicePresent() bool
}

type fileDeviceChecker struct{ path string }

func (f fileDeviceChecker) VideoDevicePresent() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// NewFileDeviceChecker checks for the presence of path (default
// "/dev/video0") as the capture-device liveness probe.
func NewFileDeviceChecker(path string) DeviceChecker {
	if path == "" {
		path = "/dev/video0"
	}
	return fileDeviceChecker{path: path}
}

// Renderer invokes the end-of-print snapshot/video render, an opaque
// external process driven through internal/procjob.
type Renderer interface {
	Invoke() error
}

// Position is the toolhead state known to the work loop when a layer-key
// line is seen: last commanded X/Y/Z and the last-seen extruder position.
type Position struct {
	X, Y, Z, LastE float64
}

// Coordinator drives layer detection and the capture excursion for one
// print. It is not safe for concurrent use — the Virtual SD Executor's
// single work-loop goroutine owns it.
type Coordinator struct {
	cfg      config.TimelapseConfig
	runner   GCodeRunner
	sleeper  Sleeper
	device   DeviceChecker
	renderer Renderer

	layerCount int
	g1Count    int
	videoOK    bool
}

// New creates a Coordinator for one print. sleeper may be nil to use
// RealSleeper.
func New(cfg config.TimelapseConfig, runner GCodeRunner, sleeper Sleeper, device DeviceChecker, renderer Renderer) *Coordinator {
	if sleeper == nil {
		sleeper = RealSleeper()
	}
	return &Coordinator{cfg: cfg, runner: runner, sleeper: sleeper, device: device, renderer: renderer, videoOK: true}
}

// Reset clears per-print counters, called when a new file is loaded.
func (c *Coordinator) Reset() {
	c.layerCount = 0
	c.g1Count = 0
	c.videoOK = true
}

// LayerCount returns the number of layer-key lines processed so far
// (spec.md §8 Testable Property 8).
func (c *Coordinator) LayerCount() int { return c.layerCount }

// NoteG1 records a dispatched G1 line; park-mode excursions require at
// least 20 before they are allowed to fire.
func (c *Coordinator) NoteG1() { c.g1Count++ }

// HandleLayerLine is invoked when the work loop recognizes line as a
// layer-key line. It performs the capture excursion when due, then
// forwards the original marker line, matching the original's "consume the
// original layer-marker line into the dispatcher afterwards".
func (c *Coordinator) HandleLayerLine(line string, pos Position) error {
	defer func() { c.layerCount++ }()

	if !c.shouldCapture() {
		return c.runner.RunScriptFromCommand(line)
	}

	if c.cfg.Position == 1 && c.g1Count >= 20 {
		if err := c.parkExcursion(pos); err != nil {
			return err
		}
	} else {
		go func() { _ = c.runner.RunScriptFromCommand("TIMELAPSE_TAKE_FRAME") }()
	}
	return c.runner.RunScriptFromCommand(line)
}

func (c *Coordinator) shouldCapture() bool {
	if !c.cfg.EnableDelayPhotography || !c.videoOK {
		return false
	}
	if c.device != nil && !c.device.VideoDevicePresent() {
		c.videoOK = false
		return false
	}
	freq := c.cfg.Frequency
	if freq < 1 {
		freq = 1
	}
	return c.layerCount%freq == 0
}

// parkExcursion performs the retract → lift → move-to-park → snapshot →
// return sequence from spec.md §4.1 step 5.
func (c *Coordinator) parkExcursion(pos Position) error {
	run := c.runner.RunScriptFromCommand
	wait := func() error { return run("M400") }

	if err := run(fmt.Sprintf("G1 F%g E%g", c.cfg.ExtruderSpeed, pos.LastE+c.cfg.Extruder)); err != nil {
		return err
	}
	if err := wait(); err != nil {
		return err
	}
	c.sleeper.Sleep(100 * time.Millisecond)

	if err := run(fmt.Sprintf("G1 F3000 Z%g", pos.Z+c.cfg.ZUpraise)); err != nil {
		return err
	}
	if err := wait(); err != nil {
		return err
	}
	c.sleeper.Sleep(100 * time.Millisecond)

	if err := run("G0 X5 Y150 F15000"); err != nil {
		return err
	}
	if err := wait(); err != nil {
		return err
	}

	if err := run("TIMELAPSE_TAKE_FRAME"); err != nil {
		return err
	}
	c.sleeper.Sleep(100 * time.Millisecond)

	if err := run(fmt.Sprintf("G0 X%g Y%g F15000", pos.X, pos.Y)); err != nil {
		return err
	}
	if err := wait(); err != nil {
		return err
	}
	c.sleeper.Sleep(200 * time.Millisecond)

	if err := run(fmt.Sprintf("G1 F3000 Z%g", pos.Z)); err != nil {
		return err
	}
	if err := wait(); err != nil {
		return err
	}
	c.sleeper.Sleep(100 * time.Millisecond)

	return run(fmt.Sprintf("G1 F%g E%g", c.cfg.ExtruderSpeed, pos.LastE))
}

// InvokeRenderer triggers the end-of-print render if time-lapse was active
// for this print.
func (c *Coordinator) InvokeRenderer() error {
	if c.renderer == nil || !c.cfg.EnableDelayPhotography {
		return nil
	}
	return c.renderer.Invoke()
}
