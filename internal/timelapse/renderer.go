package timelapse

import "github.com/rohitsakala/printcore/internal/procjob"

// ProcRenderer invokes the snapshot/video renderer as an opaque external
// process via internal/procjob, satisfying the Renderer interface.
type ProcRenderer struct {
	runner  *procjob.Runner
	command string
	args    []string
}

// NewProcRenderer creates a Renderer that runs command/args to completion
// through runner each time a print with time-lapse enabled finishes.
func NewProcRenderer(runner *procjob.Runner, command string, args ...string) *ProcRenderer {
	return &ProcRenderer{runner: runner, command: command, args: args}
}

// Invoke starts the renderer and blocks until it exits.
func (p *ProcRenderer) Invoke() error {
	id, err := p.runner.Start("render", p.command, p.args...)
	if err != nil {
		return err
	}
	return p.runner.Wait(id)
}
