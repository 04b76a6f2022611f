// Package dispatcher implements the minimal G-code command router the
// rest of the controller treats as an external collaborator: prefix-based
// command recognition, parameter parsing, and the single mutex the
// Virtual SD Executor must test before dispatching a file-sourced line
// (spec.md §4.1 step 3, §5).
package dispatcher

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rohitsakala/printcore/internal/perrors"
)

// Responder receives the raw response lines a handler emits, mirroring
// gcmd.respond_raw in the original.
type Responder interface {
	RespondRaw(line string)
}

// ResponderFunc adapts a function to a Responder.
type ResponderFunc func(line string)

func (f ResponderFunc) RespondRaw(line string) { f(line) }

// Command is one parsed line: its command name, its raw text (used to
// recover a verbatim filename argument for M23), and its parameters.
type Command struct {
	Name   string
	Raw    string
	Params map[string]string
	Responder
}

// GetString returns a parameter, or def if absent.
func (c *Command) GetString(key, def string) string {
	if v, ok := c.Params[key]; ok {
		return v
	}
	return def
}

// MustGetString returns a required parameter or a FilenameExtract-style error.
func (c *Command) MustGetString(key string) (string, error) {
	v, ok := c.Params[key]
	if !ok {
		return "", perrors.FilenameExtract(fmt.Sprintf("missing parameter %s", key))
	}
	return v, nil
}

// GetFloat returns a float parameter, or def if absent or unparsable.
func (c *Command) GetFloat(key string, def float64) float64 {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// GetInt returns an int parameter, or def if absent or unparsable.
func (c *Command) GetInt(key string, def int) int {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// HandlerFunc runs one command. An error from a handler invoked through
// Dispatch on a file-sourced line is reported to the executor as a
// dispatch failure (spec.md §7).
type HandlerFunc func(cmd *Command) error

// Dispatcher routes parsed lines to registered handlers, serialized by a
// single mutex shared by every caller — file-sourced lines and commands
// arriving from any other source (webhooks, CLI, future transports).
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	onRespond func(string)
}

// New creates an empty Dispatcher. onRespond receives every RespondRaw
// line any handler emits; pass nil to discard them.
func New(onRespond func(string)) *Dispatcher {
	if onRespond == nil {
		onRespond = func(string) {}
	}
	return &Dispatcher{handlers: make(map[string]HandlerFunc), onRespond: onRespond}
}

// Register associates name (case-insensitive) with a handler. Re-registering
// the same name replaces the previous handler, matching the upstream's
// register_command idiom used once per component at startup.
func (d *Dispatcher) Register(name string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[strings.ToUpper(name)] = h
}

// TestLocked reports whether the dispatcher mutex is currently held,
// without blocking — the non-blocking probe the executor uses before
// attempting to dispatch a file-sourced line (spec.md §4.1 step 3).
func (d *Dispatcher) TestLocked() bool {
	if d.mu.TryLock() {
		d.mu.Unlock()
		return false
	}
	return true
}

// Run parses and dispatches one line. Unknown commands are silently
// ignored (matching prefix-only G-code semantics — spec.md Non-goals).
func (d *Dispatcher) Run(line string) error {
	cmd := Parse(line)
	if cmd == nil {
		return nil
	}
	cmd.Responder = ResponderFunc(d.onRespond)

	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.handlers[cmd.Name]
	if !ok {
		return nil
	}
	return h(cmd)
}

// RunUnlocked parses and dispatches line without acquiring the dispatcher
// mutex, mirroring the original's run_script_from_command: a handler
// already running under Run's lock uses this to issue further commands
// (e.g. SAVE_GCODE_STATE, RESTORE_GCODE_STATE) synchronously, without
// deadlocking on its own non-reentrant mutex. Callers outside a held
// handler must use Run instead.
func (d *Dispatcher) RunUnlocked(line string) error {
	cmd := Parse(line)
	if cmd == nil {
		return nil
	}
	cmd.Responder = ResponderFunc(d.onRespond)

	h, ok := d.handlers[cmd.Name]
	if !ok {
		return nil
	}
	return h(cmd)
}

// RespondRaw emits line through the same response sink a Command's
// Responder uses, for callers (e.g. pause/resume's action notifications)
// that are not responding to a specific parsed command.
func (d *Dispatcher) RespondRaw(line string) {
	d.onRespond(line)
}

// Parse splits a raw G-code/macro line into a Command. Returns nil for
// blank lines and pure comments.
func Parse(line string) *Command {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, ";") {
		return nil
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return nil
	}
	name := strings.ToUpper(fields[0])
	params := make(map[string]string, len(fields)-1)
	for _, tok := range fields[1:] {
		if eq := strings.IndexByte(tok, '='); eq >= 0 {
			params[strings.ToUpper(tok[:eq])] = tok[eq+1:]
			continue
		}
		if len(tok) >= 2 {
			key := strings.ToUpper(tok[:1])
			params[key] = tok[1:]
		}
	}
	return &Command{Name: name, Raw: trimmed, Params: params}
}
