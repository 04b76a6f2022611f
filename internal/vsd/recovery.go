package vsd

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/rohitsakala/printcore/internal/checkpoint"
	"github.com/rohitsakala/printcore/internal/config"
)

// tempReplayCommands gates which heater commands are worth replaying from
// the file head after a crash: M104/M109 (hotend) and M140/M190 (bed).
var tempReplayCommands = []string{"M104", "M109", "M140", "M190"}

// Recover reattaches to a print that was interrupted mid-file, following
// spec.md §4.1's crash-recovery path: it requires print_switch enabled and
// a readable checkpoint record plus filename sidecar; it replays the
// nozzle/bed temperature commands seen in the first 50,000 lines of the
// file, reconstructs the live X/Y/Z/E position by tail-scanning from the
// checkpointed offset, and then arms the work loop exactly as load+resume
// would. A missing switch, sidecar, or checkpoint is not an error — it
// means there is nothing to recover, and Recover returns nil.
func (e *Executor) Recover() error {
	on, err := config.LoadPrintSwitch(e.cfg.printSwitchPath())
	if err != nil || !on {
		return nil
	}

	ns, err := checkpoint.LoadNameSave(e.cfg.nameSavePath())
	if err != nil || ns.Filename == "" {
		return nil
	}

	store := checkpoint.NewStore(e.cfg.checkpointPath())
	rec, err := store.Load()
	if err != nil {
		return nil
	}

	abs := ns.Filename
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(e.cfg.SDCardDir, abs)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil
	}

	if err := e.replayTemperatures(abs); err != nil {
		return err
	}

	pos, err := checkpoint.GetXYZE(abs, rec.FilePosition)
	if err != nil {
		pos = checkpoint.Position{X: rec.X, Y: rec.Y, Z: rec.Z, E: rec.E}
	}

	f, err := os.Open(abs)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.job = &job{
		file:     f,
		path:     abs,
		size:     info.Size(),
		position: rec.FilePosition,
		lastX:    pos.X,
		lastY:    pos.Y,
		lastZ:    pos.Z,
		lastE:    pos.E,
		fanCmd:   rec.FanCommand,
	}
	e.nextFilePosition = rec.FilePosition
	e.mu.Unlock()

	e.stats.SetCurrentFile(filepath.Base(abs))
	return e.DoResume()
}

// replayTemperatures scans the first 50,000 lines of path for heater
// commands and dispatches each one, so the recovered print resumes with
// the hotend and bed already at the temperatures the original file set.
func (e *Executor) replayTemperatures(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 8192), 1<<20)
	for lineNum := 0; lineNum < tempScanLineLimit && scanner.Scan(); lineNum++ {
		line := scanner.Text()
		upper := strings.ToUpper(strings.TrimSpace(line))
		for _, prefix := range tempReplayCommands {
			if strings.HasPrefix(upper, prefix) {
				if err := e.gcode.RunScriptFromCommand(line); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}
