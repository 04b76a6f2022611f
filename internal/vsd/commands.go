package vsd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rohitsakala/printcore/internal/dispatcher"
	"github.com/rohitsakala/printcore/internal/perrors"
)

func (e *Executor) registerCommands(d *dispatcher.Dispatcher) {
	d.Register("M20", e.cmdM20)
	d.Register("M21", e.cmdM21)
	d.Register("M23", e.cmdM23)
	d.Register("M24", e.cmdM24)
	d.Register("M25", e.cmdM25)
	d.Register("M26", e.cmdM26)
	d.Register("M27", e.cmdM27)
	d.Register("M28", e.cmdWriteUnsupported)
	d.Register("M29", e.cmdWriteUnsupported)
	d.Register("M30", e.cmdWriteUnsupported)
	d.Register("SDCARD_RESET_FILE", e.cmdResetFile)
	d.Register("SDCARD_PRINT_FILE", e.cmdPrintFile)
}

func (e *Executor) cmdWriteUnsupported(cmd *dispatcher.Command) error {
	cmd.RespondRaw(perrors.Dispatch("SD write not supported").Error())
	return nil
}

func (e *Executor) cmdM20(cmd *dispatcher.Command) error {
	files, err := e.GetFileList(false)
	if err != nil {
		return err
	}
	cmd.RespondRaw("Begin file list")
	for _, f := range files {
		cmd.RespondRaw(fmt.Sprintf("%s %d", f.Name, f.Size))
	}
	cmd.RespondRaw("End file list")
	return nil
}

func (e *Executor) cmdM21(cmd *dispatcher.Command) error {
	cmd.RespondRaw("SD card ok")
	return nil
}

func (e *Executor) cmdM23(cmd *dispatcher.Command) error {
	e.mu.Lock()
	busy := e.timer != nil
	e.mu.Unlock()
	if busy {
		return perrors.Busy("SD busy")
	}
	e.resetFile()

	filename, err := extractM23Filename(cmd.Raw)
	if err != nil {
		return err
	}
	filename = strings.TrimPrefix(filename, "/")
	return e.loadFile(cmd, filename, false)
}

// extractM23Filename recovers the verbatim filename argument, stripping a
// trailing "*checksum" — M23 filenames may contain spaces, so this parses
// the raw line rather than the whitespace-tokenized Params map.
func extractM23Filename(raw string) (string, error) {
	idx := strings.Index(strings.ToUpper(raw), "M23")
	if idx < 0 {
		return "", perrors.FilenameExtract("Unable to extract filename")
	}
	filename := strings.TrimSpace(raw[idx+3:])
	if star := strings.IndexByte(filename, '*'); star >= 0 {
		filename = strings.TrimSpace(filename[:star])
	}
	if filename == "" {
		return "", perrors.FilenameExtract("Unable to extract filename")
	}
	return filename, nil
}

func (e *Executor) loadFile(cmd *dispatcher.Command, filename string, checkSubdirs bool) error {
	abs, size, err := e.resolveFile(filename, checkSubdirs)
	if err != nil {
		return err
	}
	f, err := os.Open(abs)
	if err != nil {
		return perrors.OpenFailed("Unable to open file")
	}

	cmd.RespondRaw(fmt.Sprintf("File opened:%s Size:%d", filename, size))
	cmd.RespondRaw("File selected")

	e.mu.Lock()
	e.job = &job{file: f, path: abs, size: size}
	e.nextFilePosition = 0
	e.mu.Unlock()

	e.stats.SetCurrentFile(filename)
	return nil
}

func (e *Executor) cmdM24(cmd *dispatcher.Command) error {
	return e.DoResume()
}

func (e *Executor) cmdM25(cmd *dispatcher.Command) error {
	e.DoPause()
	return nil
}

func (e *Executor) cmdM26(cmd *dispatcher.Command) error {
	e.mu.Lock()
	busy := e.timer != nil
	e.mu.Unlock()
	if busy {
		return perrors.Busy("SD busy")
	}
	pos := cmd.GetInt("S", 0)
	e.mu.Lock()
	if e.job != nil {
		e.job.position = int64(pos)
	}
	e.mu.Unlock()
	return nil
}

func (e *Executor) cmdM27(cmd *dispatcher.Command) error {
	e.mu.Lock()
	var pos, size int64
	hasJob := e.job != nil
	if hasJob {
		pos, size = e.job.position, e.job.size
	}
	e.mu.Unlock()
	if !hasJob {
		cmd.RespondRaw("Not SD printing.")
		return nil
	}
	cmd.RespondRaw(fmt.Sprintf("SD printing byte %d/%d", pos, size))
	return nil
}

func (e *Executor) cmdResetFile(cmd *dispatcher.Command) error {
	e.mu.Lock()
	fromSD := e.cmdFromSD
	e.mu.Unlock()
	if fromSD {
		return perrors.ResetFromSD("SDCARD_RESET_FILE cannot be run from the sdcard")
	}
	e.resetFile()
	return nil
}

func (e *Executor) cmdPrintFile(cmd *dispatcher.Command) error {
	e.mu.Lock()
	busy := e.timer != nil
	e.mu.Unlock()
	if busy {
		return perrors.Busy("SD busy")
	}
	e.resetFile()

	filename, err := cmd.MustGetString("FILENAME")
	if err != nil {
		return err
	}
	filename = strings.TrimPrefix(filename, "/")
	if err := e.loadFile(cmd, filename, true); err != nil {
		return err
	}
	return e.DoResume()
}
