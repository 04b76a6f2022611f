package vsd

import "github.com/rohitsakala/printcore/internal/dispatcher"

// gcodeRunner is the sub-command surface the Executor uses to dispatch
// lines it reads from the file, and to drive the time-lapse excursion
// choreography — both cases where the Executor itself originates the
// call, not already holding the dispatcher's mutex.
type gcodeRunner interface {
	RunScriptFromCommand(line string) error
}

// lockedGCodeRunner dispatches through Dispatcher.Run, acquiring the
// mutex itself, for callers that are not already inside a held handler.
type lockedGCodeRunner struct {
	d *dispatcher.Dispatcher
}

func (r lockedGCodeRunner) RunScriptFromCommand(line string) error {
	return r.d.Run(line)
}

// unlockedGCodeRunner adapts Dispatcher.RunUnlocked + RespondRaw to
// internal/pauseresume.GCodeRunner, for use by a Controller whose own
// commands run under Dispatcher.Run's lock (mirroring
// run_script_from_command, which must not re-acquire the gcode mutex).
type unlockedGCodeRunner struct {
	d *dispatcher.Dispatcher
}

func (r unlockedGCodeRunner) RunScriptFromCommand(line string) error {
	return r.d.RunUnlocked(line)
}

func (r unlockedGCodeRunner) RespondInfo(msg string) {
	r.d.RespondRaw(msg)
}

// NewUnlockedGCodeRunner constructs the GCodeRunner internal/pauseresume.New
// is wired with.
func NewUnlockedGCodeRunner(d *dispatcher.Dispatcher) unlockedGCodeRunner {
	return unlockedGCodeRunner{d: d}
}
