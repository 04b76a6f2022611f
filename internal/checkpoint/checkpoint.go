// Package checkpoint implements the per-printer crash-recovery files:
// the two-slot coordinate/state save ring and its companion filename
// sidecar, plus the tail-scanner that reconstructs the last X/Y/Z/E
// position by walking a G-code file backwards from an offset.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrNoCheckpoint is returned by Load when neither ring slot holds a
// parseable record.
var ErrNoCheckpoint = errors.New("checkpoint: no valid record")

// slotSize bounds one ring slot; a Record's JSON plus its torn-write
// marker line must fit comfortably inside it.
const slotSize = 4096

// Record is one saved line-record: the file offset to resume from, which
// ring slot it was written into, and the reconstructed position/fan state
// at that offset (spec.md §3 "Checkpoint file").
type Record struct {
	FilePosition int64   `json:"file_position"`
	LinePos      int     `json:"line_pos"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Z            float64 `json:"z"`
	E            float64 `json:"e"`
	FanCommand   string  `json:"fan_command"`
}

// Store is the two-slot checkpoint ring for one printer instance, at
// "<root>/<serial>_gcode_coordinate.save".
type Store struct {
	path string

	mu       sync.Mutex
	nextSlot int // 0 or 1 — which slot Save writes to next
}

// NewStore creates a Store bound to path. The file is created lazily on
// the first Save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save writes rec into the next ring slot, alternating slots on every
// call so a torn write to one slot leaves the other — the previous,
// complete — write intact (spec.md §4.4, §9 "double-slot checkpoint").
func (s *Store) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.nextSlot
	rec.LinePos = slot + 1

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line := append(payload, '\n')
	line = append(line, ' ', '\n')
	if len(line) > slotSize {
		return errors.New("checkpoint: record too large for ring slot")
	}
	buf := make([]byte, slotSize)
	copy(buf, line)

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteAt(buf, int64(slot)*slotSize); err != nil {
		return err
	}
	// fsync is advisory: a failure here does not invalidate the write,
	// it only widens the torn-write window on sudden power loss.
	_ = unix.Fsync(int(f.Fd()))

	s.nextSlot = 1 - slot
	return nil
}

// Load returns the record with the greatest file_position among the two
// ring slots, ignoring any slot that fails to parse.
func (s *Store) Load() (*Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, err
	}
	defer f.Close()

	var best *Record
	for slot := 0; slot < 2; slot++ {
		buf := make([]byte, slotSize)
		n, err := f.ReadAt(buf, int64(slot)*slotSize)
		if err != nil && err != io.EOF {
			continue
		}
		rec, ok := parseSlot(buf[:n])
		if !ok {
			continue
		}
		if best == nil || rec.FilePosition > best.FilePosition {
			best = rec
		}
	}
	if best == nil {
		return nil, ErrNoCheckpoint
	}
	return best, nil
}

// Remove deletes the ring file. A missing file is not an error.
func (s *Store) Remove() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func parseSlot(buf []byte) (*Record, bool) {
	nl := bytes.IndexByte(buf, '\n')
	if nl < 0 {
		return nil, false
	}
	jsonLine, rest := buf[:nl], buf[nl+1:]

	nl2 := bytes.IndexByte(rest, '\n')
	if nl2 < 0 {
		return nil, false
	}
	marker := rest[:nl2]
	if string(marker) != " " {
		return nil, false
	}

	var rec Record
	if err := json.Unmarshal(jsonLine, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

// NameSave is the companion sidecar at
// "<root>/<serial>_print_file_name.save": filename, fan command, filament
// usage, and the duration of the last completed print.
type NameSave struct {
	Filename          string  `json:"filename"`
	FanCommand        string  `json:"fan_command"`
	FilamentUsed      float64 `json:"filament_used"`
	LastPrintDuration float64 `json:"last_print_duration"`
}

// LoadNameSave reads the sidecar, returning a zero-value NameSave if
// the file does not exist.
func LoadNameSave(path string) (*NameSave, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &NameSave{}, nil
		}
		return nil, err
	}
	var ns NameSave
	if err := json.Unmarshal(data, &ns); err != nil {
		return nil, err
	}
	return &ns, nil
}

// SaveNameSave writes the sidecar.
func SaveNameSave(path string, ns *NameSave) error {
	data, err := json.Marshal(ns)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// RemoveNameSave deletes the sidecar. A missing file is not an error.
func RemoveNameSave(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Position is the reconstructed X/Y/Z/E state GetXYZE returns.
type Position struct {
	X, Y, Z, E float64
}

// GetXYZE reconstructs the last-seen X/Y/Z/E position by scanning path
// backwards from offset: it walks lines in reverse, considering only
// those starting with "G0", "G1", or ";", taking E only from a G1 line
// and X/Y/Z from the latest line of any of those three kinds containing
// that axis, until all four are known or the beginning of the file is
// reached (spec.md §4.4, §8 invariant 7).
//
// The scan operates on raw bytes throughout and only decodes a line to
// text once a complete candidate line has been isolated (spec.md §9 open
// question: "tail_read... mixes byte and text reads").
func GetXYZE(path string, offset int64) (Position, error) {
	data, err := readPrefix(path, offset)
	if err != nil {
		return Position{}, err
	}

	var pos Position
	var haveX, haveY, haveZ, haveE bool

	lines := bytes.Split(data, []byte{'\n'})
	for i := len(lines) - 1; i >= 0 && !(haveX && haveY && haveZ && haveE); i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		isG0 := hasPrefixFold(line, []byte("G0"))
		isG1 := hasPrefixFold(line, []byte("G1"))
		isComment := line[0] == ';'
		if !isG0 && !isG1 && !isComment {
			continue
		}

		for _, tok := range bytes.Fields(line) {
			if len(tok) < 2 {
				continue
			}
			axis := tok[0]
			val, ok := parseAxisValue(tok[1:])
			if !ok {
				continue
			}
			switch axis {
			case 'X', 'x':
				if !haveX {
					pos.X, haveX = val, true
				}
			case 'Y', 'y':
				if !haveY {
					pos.Y, haveY = val, true
				}
			case 'Z', 'z':
				if !haveZ {
					pos.Z, haveZ = val, true
				}
			case 'E', 'e':
				if isG1 && !haveE {
					pos.E, haveE = val, true
				}
			}
		}
	}

	return pos, nil
}

func readPrefix(path string, offset int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if offset > info.Size() {
		offset = info.Size()
	}
	if offset <= 0 {
		return nil, nil
	}

	buf := make([]byte, offset)
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

func hasPrefixFold(line, prefix []byte) bool {
	if len(line) < len(prefix) {
		return false
	}
	return bytes.EqualFold(line[:len(prefix)], prefix)
}

// parseAxisValue parses a numeric field, tolerating an optional leading
// '.' (".5" meaning 0.5) and surrounding whitespace.
func parseAxisValue(b []byte) (float64, bool) {
	s := string(bytes.TrimSpace(b))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
