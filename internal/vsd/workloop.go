package vsd

import (
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/rohitsakala/printcore/internal/checkpoint"
	"github.com/rohitsakala/printcore/internal/config"
	"github.com/rohitsakala/printcore/internal/reactor"
	"github.com/rohitsakala/printcore/internal/timelapse"
)

// checkpointAfterG1 and checkpointEveryN implement spec.md §4.1 step 7's
// checkpoint cadence: only once the file has produced at least 20 G1
// lines, and then every 9th command after that.
const (
	checkpointAfterG1 = 20
	checkpointEveryN  = 9
	nameSaveG1Trigger = 19
	nameSaveEveryN    = 29
	tempScanLineLimit = 50000
)

// workHandler is the work loop: it runs once per arming (load/resume) on
// its own goroutine via the reactor timer, looping internally via
// reactor.Pause/PauseFor for every suspension point, and returns
// reactor.NEVER when the print finishes, pauses, or errors (spec.md §4.1).
func (e *Executor) workHandler(eventtime reactor.Eventtime) reactor.Eventtime {
	e.mu.Lock()
	j := e.job
	e.mu.Unlock()
	if j == nil {
		e.mu.Lock()
		e.timer = nil
		e.mu.Unlock()
		return reactor.NEVER
	}

	tl := e.buildTimelapseCoordinator()
	e.mu.Lock()
	e.tl = tl
	e.mu.Unlock()

	printSwitchOn, _ := config.LoadPrintSwitch(e.cfg.printSwitchPath())
	store := checkpoint.NewStore(e.cfg.checkpointPath())

	if _, err := j.file.Seek(j.position, io.SeekStart); err != nil {
		e.mu.Lock()
		e.timer = nil
		e.mu.Unlock()
		return reactor.NEVER
	}

	e.stats.NoteStart(e.cfg.nameSavePath())
	e.mu.Lock()
	j.running = true
	e.mu.Unlock()

	startTime := float64(e.reactor.Monotonic())
	var partial string
	var pending []string
	var errorMessage string
	complete := false
	buf := make([]byte, 8192)

	for {
		e.mu.Lock()
		mustPause := e.mustPauseWork
		e.mu.Unlock()
		if mustPause {
			break
		}

		if len(pending) == 0 {
			n, rerr := j.file.Read(buf)
			if rerr != nil && rerr != io.EOF {
				break
			}
			if n == 0 {
				j.file.Close()
				e.mu.Lock()
				e.job = nil
				e.mu.Unlock()
				e.dispatcher.RespondRaw("Done printing file")
				complete = true
				break
			}
			data := partial + string(buf[:n])
			lines := strings.Split(data, "\n")
			partial = lines[len(lines)-1]
			pending = lines[:len(lines)-1]
			e.reactor.Pause(e.reactor.Monotonic())
			continue
		}

		if e.dispatcher.TestLocked() {
			e.reactor.PauseFor(100 * time.Millisecond)
			continue
		}

		line := pending[0]
		pending = pending[1:]

		nextPos := j.position + int64(len(line)) + 1
		e.mu.Lock()
		e.nextFilePosition = nextPos
		e.cmdFromSD = true
		j.inDispatch = true
		e.mu.Unlock()

		dispatchErr := e.dispatchLine(j, tl, line)

		e.mu.Lock()
		j.inDispatch = false
		e.cmdFromSD = false
		e.mu.Unlock()

		if dispatchErr != nil {
			errorMessage = dispatchErr.Error()
			break
		}

		e.mu.Lock()
		j.position = nextPos
		j.cmdCount++
		e.mu.Unlock()

		if printSwitchOn {
			e.maybeCheckpoint(j, store)
		}

		e.mu.Lock()
		seekTo := e.nextFilePosition
		e.mu.Unlock()
		if seekTo != nextPos {
			e.mu.Lock()
			j.position = seekTo
			e.mu.Unlock()
			if _, err := j.file.Seek(seekTo, io.SeekStart); err != nil {
				e.mu.Lock()
				e.timer = nil
				e.mu.Unlock()
				return reactor.NEVER
			}
			pending = nil
			partial = ""
		}
	}

	e.mu.Lock()
	j.running = false
	e.timer = nil
	e.cmdFromSD = false
	e.mu.Unlock()

	switch {
	case errorMessage != "":
		e.stats.NoteError(errorMessage)
		_ = store.Remove()
		_ = checkpoint.RemoveNameSave(e.cfg.nameSavePath())
		log.Printf("print_error_exit|%s|%s|%v|%v|1|%s",
			e.cfg.Index, j.path, startTime, float64(e.reactor.Monotonic()), errorMessage)
	case complete:
		e.stats.NoteComplete()
		_ = store.Remove()
		_ = checkpoint.RemoveNameSave(e.cfg.nameSavePath())
		if tl != nil {
			_ = tl.InvokeRenderer()
		}
		resetAt := reactor.Eventtime(float64(e.reactor.Monotonic()) + 5)
		e.reactor.RegisterTimer(func(reactor.Eventtime) reactor.Eventtime {
			e.resetFile()
			return reactor.NEVER
		}, resetAt)
	default:
		e.stats.NotePause()
	}

	return reactor.NEVER
}

// buildTimelapseCoordinator loads this print's time-lapse configuration
// and gates it on the configured USB serial matching the connected device
// (spec.md §4.1 step 5).
func (e *Executor) buildTimelapseCoordinator() *timelapse.Coordinator {
	cfg, err := config.LoadTimelapseConfig(e.cfg.timelapseYAMLPath(), e.cfg.Index)
	if err != nil || cfg == nil {
		cfg = &config.TimelapseConfig{}
	}
	if e.cfg.USB != "" && cfg.USB != e.cfg.USB {
		cfg.EnableDelayPhotography = false
	}
	return timelapse.New(*cfg, lockedGCodeRunner{d: e.dispatcher}, e.sleeper, e.device, e.renderer)
}

// dispatchLine routes a single file-sourced line: layer-key lines go
// through the time-lapse coordinator (which forwards the marker line
// itself); everything else updates the job's live position/fan tracking
// and dispatches directly (spec.md §4.1 steps 4-6).
func (e *Executor) dispatchLine(j *job, tl *timelapse.Coordinator, line string) error {
	if timelapse.MatchesLayerKey(line) {
		e.mu.Lock()
		pos := timelapse.Position{X: j.lastX, Y: j.lastY, Z: j.lastZ, LastE: j.lastE}
		e.mu.Unlock()
		return tl.HandleLayerLine(line, pos)
	}
	e.updateJobFromLine(j, tl, line)
	return e.gcode.RunScriptFromCommand(line)
}

// updateJobFromLine and applyAxisFields guard every job field they touch
// through e.mu: workHandler's goroutine is the sole writer, but Status and
// cmdM27 read position/path from the dispatcher's goroutine, so the field
// set as a whole must stay behind one lock rather than be split by writer
// vs. reader.
func (e *Executor) updateJobFromLine(j *job, tl *timelapse.Coordinator, line string) {
	upper := strings.ToUpper(strings.TrimSpace(line))
	switch {
	case strings.HasPrefix(upper, "G1"):
		tl.NoteG1()
		e.mu.Lock()
		j.g1Count++
		e.mu.Unlock()
		e.applyAxisFields(j, line, true)
	case strings.HasPrefix(upper, "G0"):
		e.applyAxisFields(j, line, false)
	case strings.HasPrefix(upper, "M106"), strings.HasPrefix(upper, "M107"):
		e.mu.Lock()
		j.fanCmd = line
		e.mu.Unlock()
	}
}

func (e *Executor) applyAxisFields(j *job, line string, trackE bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, tok := range strings.Fields(line) {
		if len(tok) < 2 {
			continue
		}
		val, err := strconv.ParseFloat(tok[1:], 64)
		if err != nil {
			continue
		}
		switch tok[0] {
		case 'X', 'x':
			j.lastX = val
		case 'Y', 'y':
			j.lastY = val
		case 'Z', 'z':
			j.lastZ = val
		case 'E', 'e':
			if trackE {
				j.lastE = val
			}
		}
	}
}

// maybeCheckpoint implements spec.md §4.1 step 7's emission cadence.
func (e *Executor) maybeCheckpoint(j *job, store *checkpoint.Store) {
	e.mu.Lock()
	g1Count, cmdCount := j.g1Count, j.cmdCount
	pos := j.position
	lastX, lastY, lastZ, lastE := j.lastX, j.lastY, j.lastZ, j.lastE
	fanCmd, path := j.fanCmd, j.path
	e.mu.Unlock()

	if g1Count >= checkpointAfterG1 && cmdCount%checkpointEveryN == 0 {
		rec := checkpoint.Record{
			FilePosition: pos,
			X:            lastX,
			Y:            lastY,
			Z:            lastZ,
			E:            lastE,
			FanCommand:   fanCmd,
		}
		_ = store.Save(rec)
	}

	if g1Count == nameSaveG1Trigger || cmdCount%nameSaveEveryN == 0 {
		status := e.stats.GetStatus(float64(e.reactor.Monotonic()))
		ns := &checkpoint.NameSave{
			Filename:          path,
			FanCommand:        fanCmd,
			FilamentUsed:      status.FilamentUsed,
			LastPrintDuration: status.TotalDuration,
		}
		_ = checkpoint.SaveNameSave(e.cfg.nameSavePath(), ns)
	}
}
