// Package lifecycle implements the Printer Lifecycle (spec.md §4.6):
// the object graph every other component registers into, connect/ready/
// shutdown event propagation, and the process-level restart loop. Ported
// from klippy.py's Printer class and main() restart loop, generalized per
// spec.md §9 ("Global module registry → explicit object graph";
// "Monkey-patched timer callbacks → tagged state machine").
package lifecycle

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rohitsakala/printcore/internal/perrors"
	"github.com/rohitsakala/printcore/internal/reactor"
)

// State tags the Printer's current lifecycle stage, standing in for the
// original's string comparisons against message_startup/message_ready.
type State int

const (
	StateStartup State = iota
	StateReady
	StateShutdown
	StateError
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateShutdown:
		return "shutdown"
	case StateError:
		return "error"
	default:
		return "startup"
	}
}

// Events fired through SendEvent/RegisterEventHandler, matching the
// original's "klippy:connect"/"klippy:ready"/"klippy:shutdown"/
// "klippy:disconnect" strings.
const (
	EventConnect    = "klippy:connect"
	EventReady      = "klippy:ready"
	EventShutdown   = "klippy:shutdown"
	EventDisconnect = "klippy:disconnect"
)

// MCU is the restart hook spec.md §6 names for the out-of-scope transport
// collaborator; a firmware_restart result calls it on every registered MCU.
type MCU interface {
	MicrocontrollerRestart() error
}

// Printer is the object graph and event-propagation hub one run of the
// controller is built around, mirroring klippy.py's Printer class.
type Printer struct {
	Reactor   *reactor.Reactor
	StartArgs map[string]string
	logger    *log.Logger

	mu           sync.Mutex
	objects      map[string]any
	objectOrder  []string
	handlers     map[string][]func() error
	state        State
	stateMessage string
	runResult    string
	done         chan struct{}
	doneOnce     sync.Once
}

// New creates a Printer over an existing reactor, matching the original's
// Printer(main_reactor, bglogger, start_args).
func New(r *reactor.Reactor, startArgs map[string]string) *Printer {
	return &Printer{
		Reactor:      r,
		StartArgs:    startArgs,
		logger:       log.New(log.Writer(), "[lifecycle] ", log.LstdFlags),
		objects:      make(map[string]any),
		handlers:     make(map[string][]func() error),
		state:        StateStartup,
		stateMessage: "Printer is not ready",
		done:         make(chan struct{}),
	}
}

// AddObject registers a named component in the object graph, rejecting a
// second registration under the same name (key123 in the original).
func (p *Printer) AddObject(name string, obj any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.objects[name]; ok {
		return perrors.DuplicateObject(name)
	}
	p.objects[name] = obj
	p.objectOrder = append(p.objectOrder, name)
	return nil
}

// LookupObject returns a previously-registered component, or a key122
// error if none was registered under that name.
func (p *Printer) LookupObject(name string) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	obj, ok := p.objects[name]
	if !ok {
		return nil, perrors.UnknownObject(name)
	}
	return obj, nil
}

// RegisterEventHandler appends a callback for event, matching the
// original's register_event_handler.
func (p *Printer) RegisterEventHandler(event string, cb func() error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[event] = append(p.handlers[event], cb)
}

// SendEvent runs every handler registered for event in registration order,
// returning the first error encountered (if any) without aborting the
// remaining handlers, mirroring send_event's list-comprehension semantics.
func (p *Printer) SendEvent(event string) error {
	p.mu.Lock()
	cbs := append([]func() error(nil), p.handlers[event]...)
	p.mu.Unlock()

	var first error
	for _, cb := range cbs {
		if err := cb(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// State reports the current lifecycle stage.
func (p *Printer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// StateMessage returns the human-readable status text get_state_message
// exposes alongside the state.
func (p *Printer) StateMessage() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateMessage
}

func (p *Printer) setState(state State, msg string) {
	p.mu.Lock()
	p.state = state
	p.stateMessage = msg
	p.mu.Unlock()
}

// Connect runs configure (the object graph's construction step, standing
// in for _read_config) and then fires klippy:connect, transitioning to
// StateReady on success or StateError on failure — matching _connect's
// try/except around config loading plus its connect-handler loop, with Go
// errors in place of Python exceptions.
func (p *Printer) Connect(configure func(*Printer) error) {
	if configure != nil {
		if err := configure(p); err != nil {
			p.setState(StateError, err.Error())
			p.logger.Printf("config error: %v", err)
			return
		}
	}

	if err := p.SendEvent(EventConnect); err != nil {
		p.setState(StateError, err.Error())
		p.logger.Printf("error during klippy:connect: %v", err)
		return
	}

	p.setState(StateReady, "Printer is ready")
	p.logger.Printf("printer_ready")

	if err := p.SendEvent(EventReady); err != nil {
		p.InvokeShutdown(fmt.Sprintf("Internal error during ready callback: %v", err))
	}
}

// InvokeShutdown transitions to StateShutdown and fires klippy:shutdown
// handlers exactly once, matching invoke_shutdown's idempotence guard.
func (p *Printer) InvokeShutdown(msg string) {
	p.mu.Lock()
	if p.state == StateShutdown {
		p.mu.Unlock()
		return
	}
	p.state = StateShutdown
	p.stateMessage = msg
	p.mu.Unlock()

	p.logger.Printf("transition to shutdown state: %s", msg)
	for _, cb := range p.handlers[EventShutdown] {
		if err := cb(); err != nil {
			p.logger.Printf("error during shutdown handler: %v", err)
		}
	}
}

// RequestExit records the run result and unblocks Run, matching
// request_exit + reactor.end(). Safe to call more than once; only the
// first call's result is kept.
func (p *Printer) RequestExit(result string) {
	p.mu.Lock()
	if p.runResult == "" {
		p.runResult = result
	}
	p.mu.Unlock()
	p.doneOnce.Do(func() { close(p.done) })
}

// Run blocks until RequestExit is called, then fires klippy:disconnect
// (calling MicrocontrollerRestart on any registered MCU first if the run
// result is "firmware_restart"), and returns the run result — mirroring
// the original's run() apart from the reactor's own internal dispatch
// loop, which here is implicit in the timer goroutines already started.
func (p *Printer) Run() string {
	<-p.done

	p.mu.Lock()
	result := p.runResult
	names := append([]string(nil), p.objectOrder...)
	p.mu.Unlock()

	if result == "firmware_restart" {
		for _, name := range names {
			obj, _ := p.LookupObject(name)
			if mcu, ok := obj.(MCU); ok {
				if err := mcu.MicrocontrollerRestart(); err != nil {
					p.logger.Printf("mcu restart error for %s: %v", name, err)
				}
			}
		}
	}
	if err := p.SendEvent(EventDisconnect); err != nil {
		p.logger.Printf("error during klippy:disconnect: %v", err)
	}
	return result
}

// terminalResults are the run results main()'s restart loop treats as a
// reason to stop relaunching, matching `if res in ['exit', 'error_exit']`.
var terminalResults = map[string]bool{"exit": true, "error_exit": true}

// Supervise implements main()'s `while 1` restart loop: build constructs a
// fresh Printer for one run (a fresh reactor per attempt, matching
// main_reactor = reactor.Reactor()), configure wires the object graph, and
// the loop relaunches on any non-terminal run result (RESTART/
// FIRMWARE_RESTART), sleeping one second between attempts as the original
// does. It returns the terminal run result ("exit" or "error_exit").
func Supervise(build func() *Printer, configure func(*Printer) error) string {
	startReason := "startup"
	for {
		p := build()
		p.StartArgs["start_reason"] = startReason

		p.Reactor.RegisterTimer(func(reactor.Eventtime) reactor.Eventtime {
			p.Connect(configure)
			return reactor.NEVER
		}, reactor.NOW)

		res := p.Run()
		if terminalResults[res] {
			return res
		}
		time.Sleep(time.Second)
		startReason = res
		log.Printf("[lifecycle] restarting printer (reason=%s)", res)
	}
}
