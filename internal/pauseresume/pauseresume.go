// Package pauseresume implements the PAUSE/RESUME/M600/CLEAR_PAUSE/
// CANCEL_PRINT command group, mediating between the G-code dispatcher and
// the virtual SD executor (spec.md §4.2, ported from the original's
// PauseResume class).
package pauseresume

import (
	"fmt"

	"github.com/rohitsakala/printcore/internal/dispatcher"
	"github.com/rohitsakala/printcore/internal/perrors"
)

// Executor is the subset of the Virtual SD Executor this package drives,
// standing in for the original's v_sd lookup. A nil Executor is valid
// (printing from a source other than SD) and every call guards against it.
type Executor interface {
	IsActive() bool
	DoPause()
	DoResume() error
	DoCancel()
	SetResumeStatus(bool)
	ResetCancelState()
}

// GCodeRunner is the synchronous sub-command/response surface pause/resume
// commands use for their SAVE_GCODE_STATE/RESTORE_GCODE_STATE choreography
// and action: notifications.
type GCodeRunner interface {
	RunScriptFromCommand(line string) error
	RespondInfo(msg string)
}

// WebhookEndpoint lets external transports (HTTP, IPC) register a handler
// for a named endpoint, standing in for the original's
// printer.lookup_object('webhooks').register_endpoint.
type WebhookEndpoint interface {
	RegisterEndpoint(name string, handler func())
}

// Controller holds the pause/resume state machine.
type Controller struct {
	dispatcher      *dispatcher.Dispatcher
	gcode           GCodeRunner
	recoverVelocity float64

	executor Executor // nil until an executor attaches; always nil-guarded

	isPaused         bool
	sdPaused         bool
	pauseCommandSent bool
}

// New creates a Controller, registering its commands on d and its
// endpoints on wh. recoverVelocity is the default RESUME feedrate.
func New(d *dispatcher.Dispatcher, gcode GCodeRunner, wh WebhookEndpoint, recoverVelocity float64) *Controller {
	c := &Controller{dispatcher: d, gcode: gcode, recoverVelocity: recoverVelocity}

	d.Register("PAUSE", c.cmdPause)
	d.Register("M600", c.cmdM600)
	d.Register("RESUME", c.cmdResume)
	d.Register("CLEAR_PAUSE", c.cmdClearPause)
	d.Register("CANCEL_PRINT", c.cmdCancelPrint)

	if wh != nil {
		wh.RegisterEndpoint("pause_resume/cancel", func() { _ = d.Run("CANCEL_PRINT") })
		wh.RegisterEndpoint("pause_resume/pause", func() { _ = d.Run("PAUSE") })
		wh.RegisterEndpoint("pause_resume/resume", func() { _ = d.Run("RESUME") })
	}

	return c
}

// AttachExecutor binds the Virtual SD Executor once it exists, mirroring
// the original's handle_connect looking up 'virtual_sdcard'.
func (c *Controller) AttachExecutor(e Executor) { c.executor = e }

// IsPaused reports the get_status()['is_paused'] value.
func (c *Controller) IsPaused() bool { return c.isPaused }

func (c *Controller) isSDActive() bool {
	return c.executor != nil && c.executor.IsActive()
}

func (c *Controller) sendPauseCommand() {
	if c.pauseCommandSent {
		return
	}
	if c.isSDActive() {
		c.sdPaused = true
		c.executor.DoPause()
	} else {
		c.sdPaused = false
		c.gcode.RespondInfo("action:paused")
	}
	c.pauseCommandSent = true
}

func (c *Controller) sendResumeCommand() error {
	if c.sdPaused {
		c.executor.SetResumeStatus(true)
		if err := c.executor.DoResume(); err != nil {
			return err
		}
		c.sdPaused = false
	} else {
		c.gcode.RespondInfo("action:resumed")
	}
	c.pauseCommandSent = false
	return nil
}

func (c *Controller) cmdPause(cmd *dispatcher.Command) error {
	if c.isPaused {
		cmd.RespondRaw(perrors.AlreadyPaused("Print already paused").Error())
		return nil
	}
	c.sendPauseCommand()
	if err := c.gcode.RunScriptFromCommand("SAVE_GCODE_STATE STATE=PAUSE_STATE"); err != nil {
		return err
	}
	c.isPaused = true
	return nil
}

func (c *Controller) cmdResume(cmd *dispatcher.Command) error {
	if !c.isPaused {
		cmd.RespondRaw(perrors.ResumeWithoutPause("Print is not paused, resume aborted").Error())
		return nil
	}
	velocity := cmd.GetFloat("VELOCITY", c.recoverVelocity)
	script := fmt.Sprintf("RESTORE_GCODE_STATE STATE=PAUSE_STATE MOVE=1 MOVE_SPEED=%.4f", velocity)
	if err := c.gcode.RunScriptFromCommand(script); err != nil {
		return err
	}
	if err := c.sendResumeCommand(); err != nil {
		return err
	}
	c.isPaused = false
	return nil
}

func (c *Controller) cmdM600(cmd *dispatcher.Command) error {
	x := cmd.GetFloat("X", 0)
	y := cmd.GetFloat("Y", 0)
	z := cmd.GetFloat("Z", 10)
	e := cmd.GetFloat("E", -20)

	if c.isPaused {
		cmd.RespondRaw(perrors.AlreadyPaused("Print already paused").Error())
		return nil
	}
	c.sendPauseCommand()
	if err := c.gcode.RunScriptFromCommand("SAVE_GCODE_STATE NAME=M600_state"); err != nil {
		return err
	}
	if err := c.gcode.RunScriptFromCommand("SAVE_GCODE_STATE STATE=PAUSE_STATE"); err != nil {
		return err
	}
	script := fmt.Sprintf(
		"G91\nG1 E-5 F4000\nG1 Z%g\nG90\nG1 X%g Y%g F3000\nG0 E10 F6000\nG0 E%g F6000\nG92 E0",
		z, x, y, e,
	)
	if err := c.gcode.RunScriptFromCommand(script); err != nil {
		return err
	}
	c.isPaused = true
	return nil
}

func (c *Controller) cmdClearPause(cmd *dispatcher.Command) error {
	c.isPaused = false
	c.pauseCommandSent = false
	return nil
}

func (c *Controller) cmdCancelPrint(cmd *dispatcher.Command) error {
	if c.isSDActive() || c.sdPaused {
		c.executor.DoCancel()
	} else {
		cmd.RespondRaw("action:cancel")
	}
	if err := c.cmdClearPause(cmd); err != nil {
		return err
	}
	// The original resets self.v_sd.cancel_print_state = False without a
	// guard; here the reset runs only when an executor is attached, and
	// is skipped otherwise.
	if c.executor != nil {
		c.executor.ResetCancelState()
	}
	return nil
}
