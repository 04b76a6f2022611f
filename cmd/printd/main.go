// Command printd is the controller daemon: it parses flags, builds the
// object graph through internal/lifecycle, serves internal/statusapi over
// HTTP, and relaunches on a non-terminal run result — generalized from
// server/server.go's "build a server object, Serve it" shape and
// klippy.py's main() restart loop.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/rohitsakala/printcore/internal/dispatcher"
	"github.com/rohitsakala/printcore/internal/lifecycle"
	"github.com/rohitsakala/printcore/internal/pauseresume"
	"github.com/rohitsakala/printcore/internal/printstats"
	"github.com/rohitsakala/printcore/internal/procjob"
	"github.com/rohitsakala/printcore/internal/reactor"
	"github.com/rohitsakala/printcore/internal/statusapi"
	"github.com/rohitsakala/printcore/internal/timelapse"
	"github.com/rohitsakala/printcore/internal/vsd"
)

var (
	sdcardDir       = flag.String("sdcard-dir", "/mnt/UDISK/gcodes", "directory G-code files are selected from")
	stateRoot       = flag.String("state-root", "/mnt/UDISK/.crealityprint", "directory holding print_switch.txt and checkpoint sidecars")
	serial          = flag.String("serial", "printer1", "this printer's checkpoint/sidecar file prefix")
	index           = flag.String("index", "1", "this printer's index (1-4), used as the time_lapse.yaml key")
	usb             = flag.String("usb", "", "connected capture device's serial identifier")
	listenAddr      = flag.String("addr", ":8080", "status/control HTTP listen address")
	recoverVelocity = flag.Float64("recover-velocity", 50, "default RESUME feedrate")
	renderCommand   = flag.String("render-command", "/usr/local/bin/creality-timelapse-render", "time-lapse renderer executable")
)

// stubPositionSource stands in for the out-of-scope gcode_move/toolhead
// collaborator (spec.md §1 Non-goals): an always-zero extruder position,
// since this core does not implement motion planning.
type stubPositionSource struct{}

func (stubPositionSource) ExtruderPosition(eventtime float64) printstats.ExtruderPosition {
	return printstats.ExtruderPosition{ExtrudeFactor: 1}
}

func main() {
	flag.Parse()

	result := lifecycle.Supervise(buildPrinter, configure)
	if result == "error_exit" {
		os.Exit(1)
	}
}

func buildPrinter() *lifecycle.Printer {
	return lifecycle.New(reactor.New(), map[string]string{
		"sdcard_dir": *sdcardDir,
		"state_root": *stateRoot,
	})
}

// configure wires the object graph for one run of the printer: the
// dispatcher, print-stats tracker, time-lapse renderer, virtual SD
// executor, pause/resume controller, crash-recovery reattachment, and the
// status/control HTTP server — then registers each component so
// StatusAPI and a later firmware_restart can look them up by name.
func configure(p *lifecycle.Printer) error {
	var statusSrv *statusapi.Server

	d := dispatcher.New(func(line string) {
		log.Printf("[gcode] %s", line)
		if statusSrv != nil {
			statusSrv.RecordLog(line)
		}
	})

	stats := printstats.New(stubPositionSource{}, vsd.ReactorClock{R: p.Reactor}, *index)

	renderRunner := procjob.NewRunner()
	renderer := timelapse.NewProcRenderer(renderRunner, *renderCommand, "--index", *index)

	exec := vsd.New(vsd.Config{
		SDCardDir: *sdcardDir,
		StateRoot: *stateRoot,
		Serial:    *serial,
		Index:     *index,
		USB:       *usb,
	}, p.Reactor, d, stats, renderer)

	pauseCtrl := pauseresume.New(d, vsd.NewUnlockedGCodeRunner(d), nil, *recoverVelocity)
	pauseCtrl.AttachExecutor(exec)

	if err := p.AddObject("virtual_sdcard", exec); err != nil {
		return err
	}
	if err := p.AddObject("pause_resume", pauseCtrl); err != nil {
		return err
	}
	if err := p.AddObject("print_stats", stats); err != nil {
		return err
	}

	statusSrv = statusapi.New(exec, pauseCtrl, stats, vsd.ReactorClock{R: p.Reactor}, d)

	srv := &http.Server{Addr: *listenAddr, Handler: statusSrv.Handler()}
	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", *listenAddr, err)
	}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("status server error: %v", err)
		}
	}()
	p.RegisterEventHandler(lifecycle.EventShutdown, func() error {
		return srv.Close()
	})

	if err := exec.Recover(); err != nil {
		log.Printf("crash recovery: %v", err)
	}

	return nil
}
