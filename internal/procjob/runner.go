package procjob

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

func newProcessID(label string) string {
	return fmt.Sprintf("%s-%s", label, uuid.NewString())
}

// Runner manages the lifecycle of the subprocesses this core drives (the
// time-lapse renderer). It is safe for concurrent use.
type Runner struct {
	procs map[string]*Process
	mu    sync.Mutex
}

// NewRunner creates a Runner. The cgroup hierarchy is created lazily, on
// the first Start call, so constructing a Runner never requires root.
func NewRunner() *Runner {
	return &Runner{procs: make(map[string]*Process)}
}

// Start launches command/args as a new resource-bounded subprocess under
// label (e.g. "render", "probe"), returning its process ID.
func (r *Runner) Start(label, command string, args ...string) (string, error) {
	id := newProcessID(label)

	p, err := newProcess(id, command, args...)
	if err != nil {
		return "", fmt.Errorf("create process %s: %w", id, err)
	}

	if err := p.start(context.Background()); err != nil {
		return "", fmt.Errorf("start process %s: %w", id, err)
	}

	r.mu.Lock()
	r.procs[id] = p
	r.mu.Unlock()

	return id, nil
}

// Stop terminates the process with the given ID and waits for cleanup.
func (r *Runner) Stop(id string) error {
	r.mu.Lock()
	p, ok := r.procs[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("process %s not found", id)
	}
	return p.stop()
}

// Status returns the process's status, exit code (if terminal), and any
// error (exit error joined with cgroup cleanup error).
func (r *Runner) Status(id string) (string, *int32, error) {
	r.mu.Lock()
	p, ok := r.procs[id]
	r.mu.Unlock()
	if !ok {
		return Unknown.String(), nil, fmt.Errorf("process %s not found", id)
	}

	status, code, procErr := p.statusSnapshot()

	var exitCode *int32
	if status == Exited || status == Failed || status == Stopped {
		v := int32(code)
		exitCode = &v
	}
	return status.String(), exitCode, procErr
}

// Exists reports whether a process with the given ID is tracked.
func (r *Runner) Exists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.procs[id]
	return ok
}

// Stream returns a reader over the process's captured output, live if
// still running or complete if it has finished.
func (r *Runner) Stream(id string) (io.ReadCloser, error) {
	r.mu.Lock()
	p, ok := r.procs[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("process %s not found", id)
	}
	return p.stream(), nil
}

// Wait blocks until the process with the given ID has finished.
func (r *Runner) Wait(id string) error {
	r.mu.Lock()
	p, ok := r.procs[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("process %s not found", id)
	}
	<-p.done
	return nil
}
