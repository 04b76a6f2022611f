package checkpoint

import (
	"path/filepath"
	"testing"
)

func TestStore_SaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcode_coordinate.save")
	s := NewStore(path)

	if err := s.Save(Record{FilePosition: 100, X: 1, Y: 2, Z: 3, E: 4}); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.FilePosition != 100 || rec.LinePos != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestStore_SaveAlternatesSlotsAndPicksGreatestPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcode_coordinate.save")
	s := NewStore(path)

	if err := s.Save(Record{FilePosition: 100}); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	if err := s.Save(Record{FilePosition: 200}); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	rec, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.FilePosition != 200 {
		t.Fatalf("expected greatest file_position 200, got %d", rec.FilePosition)
	}
	if rec.LinePos != 2 {
		t.Fatalf("expected second write in slot 2, got line_pos=%d", rec.LinePos)
	}
}

// TestStore_TornWriteLeavesPredecessorIntact simulates a crash mid-write
// into the slot about to be overwritten: it corrupts that slot's bytes
// directly, then checks the untouched slot (holding the prior, complete
// write) is still returned by Load.
func TestStore_TornWriteLeavesPredecessorIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcode_coordinate.save")
	s := NewStore(path)

	if err := s.Save(Record{FilePosition: 50}); err != nil {
		t.Fatalf("save 1: %v", err)
	}

	// Corrupt slot 1 (the next slot Save would write) to model a torn write.
	f, err := openForTest(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteAt([]byte("{not valid json"), slotSize); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	f.Close()

	rec, err := s.Load()
	if err != nil {
		t.Fatalf("load after torn write: %v", err)
	}
	if rec.FilePosition != 50 {
		t.Fatalf("expected predecessor record to survive, got %+v", rec)
	}
}

func TestStore_Load_NoFileReturnsErrNoCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.save")
	s := NewStore(path)
	if _, err := s.Load(); err != ErrNoCheckpoint {
		t.Fatalf("expected ErrNoCheckpoint, got %v", err)
	}
}

func TestNameSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "print_file_name.save")
	ns := &NameSave{Filename: "model.gcode", FanCommand: "M106 S255", FilamentUsed: 12.5, LastPrintDuration: 300}
	if err := SaveNameSave(path, ns); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadNameSave(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Filename != ns.Filename || got.FilamentUsed != ns.FilamentUsed {
		t.Fatalf("unexpected sidecar: %+v", got)
	}
}

func TestLoadNameSave_MissingFileReturnsZeroValue(t *testing.T) {
	ns, err := LoadNameSave(filepath.Join(t.TempDir(), "missing.save"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ns.Filename != "" {
		t.Fatalf("expected zero-value sidecar, got %+v", ns)
	}
}

func TestGetXYZE_FindsLatestPositionBeforeOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "print.gcode")
	content := "" +
		"G1 X1 Y1 Z0.2 E1 F1500\n" +
		"G1 X2 Y2 E2\n" +
		";LAYER:5\n" +
		"G1 X3 Y3 Z0.4 E3\n" +
		"G1 X4 Y4 E4\n"
	if err := writeTestFile(path, content); err != nil {
		t.Fatalf("setup: %v", err)
	}

	// Offset just after the third G1 line ("G1 X3 Y3 Z0.4 E3\n").
	offset := int64(len("G1 X1 Y1 Z0.2 E1 F1500\n" + "G1 X2 Y2 E2\n" + ";LAYER:5\n" + "G1 X3 Y3 Z0.4 E3\n"))

	pos, err := GetXYZE(path, offset)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.X != 3 || pos.Y != 3 || pos.Z != 0.4 || pos.E != 3 {
		t.Fatalf("unexpected position: %+v", pos)
	}
}

func TestGetXYZE_ZCarriesForwardWhenNotOnLatestLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "print.gcode")
	content := "" +
		"G1 Z0.2\n" +
		"G1 X5 Y5 E1\n"
	if err := writeTestFile(path, content); err != nil {
		t.Fatalf("setup: %v", err)
	}

	pos, err := GetXYZE(path, int64(len(content)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.Z != 0.2 {
		t.Fatalf("expected Z carried forward from earlier line, got %v", pos.Z)
	}
	if pos.X != 5 || pos.Y != 5 || pos.E != 1 {
		t.Fatalf("unexpected position: %+v", pos)
	}
}

func TestGetXYZE_IgnoresEOnNonG1Lines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "print.gcode")
	content := "" +
		"G1 X1 Y1 E1\n" +
		"G0 X2 Y2 E99\n"
	if err := writeTestFile(path, content); err != nil {
		t.Fatalf("setup: %v", err)
	}

	pos, err := GetXYZE(path, int64(len(content)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.E != 1 {
		t.Fatalf("expected E taken only from the G1 line, got %v", pos.E)
	}
	if pos.X != 2 || pos.Y != 2 {
		t.Fatalf("expected X/Y from the latest move, got %+v", pos)
	}
}

func TestGetXYZE_EmptyFileReturnsZeroPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.gcode")
	if err := writeTestFile(path, ""); err != nil {
		t.Fatalf("setup: %v", err)
	}
	pos, err := GetXYZE(path, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos != (Position{}) {
		t.Fatalf("expected zero-value position, got %+v", pos)
	}
}
