package printstats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rohitsakala/printcore/internal/checkpoint"
)

type fakeClock struct{ t float64 }

func (c *fakeClock) Monotonic() float64 { return c.t }

type fakePos struct {
	e      float64
	factor float64
}

func (p *fakePos) ExtruderPosition(eventtime float64) ExtruderPosition {
	factor := p.factor
	if factor == 0 {
		factor = 1
	}
	return ExtruderPosition{E: p.e, ExtrudeFactor: factor}
}

func TestStats_PrintDurationNeverNegative(t *testing.T) {
	root := t.TempDir()
	LifetimeCounterRoot = root

	clock := &fakeClock{t: 0}
	pos := &fakePos{factor: 1}
	s := New(pos, clock, "1")

	s.NoteStart("")
	clock.t = 1
	pos.e = 1
	st := s.GetStatus(clock.t)
	if st.PrintDuration < 0 {
		t.Fatalf("expected non-negative print duration, got %v", st.PrintDuration)
	}

	s.NotePause()
	clock.t = 5
	st = s.GetStatus(clock.t)
	if st.PrintDuration < 0 {
		t.Fatalf("expected non-negative print duration while paused, got %v", st.PrintDuration)
	}

	clock.t = 6
	s.NoteStart("")
	clock.t = 10
	pos.e = 5
	st = s.GetStatus(clock.t)
	if st.PrintDuration < 0 {
		t.Fatalf("expected non-negative print duration after resume, got %v", st.PrintDuration)
	}
	if st.FilamentUsed <= 0 {
		t.Fatalf("expected filament usage to accumulate, got %v", st.FilamentUsed)
	}
}

func TestStats_NoteCompleteFreezesStateAndTotalDuration(t *testing.T) {
	root := t.TempDir()
	LifetimeCounterRoot = root

	clock := &fakeClock{t: 0}
	pos := &fakePos{factor: 1}
	s := New(pos, clock, "1")

	s.NoteStart("")
	clock.t = 100
	pos.e = 20
	s.NoteComplete()

	st := s.GetStatus(clock.t)
	if st.State != StateComplete {
		t.Fatalf("expected complete state, got %v", st.State)
	}
	if st.TotalDuration != 100 {
		t.Fatalf("expected total duration frozen at 100, got %v", st.TotalDuration)
	}
}

func TestStats_NoteErrorRecordsMessage(t *testing.T) {
	root := t.TempDir()
	LifetimeCounterRoot = root

	clock := &fakeClock{t: 0}
	s := New(&fakePos{factor: 1}, clock, "1")
	s.NoteStart("")
	s.NoteError("nozzle jam")

	st := s.GetStatus(clock.t)
	if st.State != StateError || st.Message != "nozzle jam" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestStats_LifetimeCounterPersistsAndIsMonotonicNonDecreasing(t *testing.T) {
	root := t.TempDir()
	LifetimeCounterRoot = root

	clock := &fakeClock{t: 0}
	pos := &fakePos{factor: 1}
	s := New(pos, clock, "2")

	s.NoteStart("")
	clock.t = 600 // 10 minutes of print time
	pos.e = 10
	s.GetStatus(clock.t)

	data, err := os.ReadFile(filepath.Join(root, "printer2_totaltime"))
	if err != nil {
		t.Fatalf("expected lifetime counter file to be written: %v", err)
	}
	if string(data) == "" {
		t.Fatalf("expected non-empty lifetime counter")
	}

	firstVal := string(data)

	clock.t = 1200 // another 10 minutes
	pos.e = 20
	s.GetStatus(clock.t)

	data2, err := os.ReadFile(filepath.Join(root, "printer2_totaltime"))
	if err != nil {
		t.Fatalf("read again: %v", err)
	}
	if string(data2) == firstVal {
		t.Fatalf("expected lifetime counter to advance with more print time")
	}
}

func TestStats_NoteStartResumesFromCheckpointSidecar(t *testing.T) {
	root := t.TempDir()
	LifetimeCounterRoot = root

	infoPath := filepath.Join(t.TempDir(), "print_file_name.save")
	if err := checkpoint.SaveNameSave(infoPath, &checkpoint.NameSave{
		Filename:          "model.gcode",
		FilamentUsed:      12.5,
		LastPrintDuration: 60,
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	clock := &fakeClock{t: 1000}
	s := New(&fakePos{factor: 1}, clock, "1")
	s.NoteStart(infoPath)

	st := s.GetStatus(clock.t)
	if st.FilamentUsed != 12.5 {
		t.Fatalf("expected filament usage resumed from sidecar, got %v", st.FilamentUsed)
	}
	if st.TotalDuration != 60 {
		t.Fatalf("expected total duration resumed to 60s, got %v", st.TotalDuration)
	}
}

func TestIndexFromAPIServerArg(t *testing.T) {
	cases := map[string]string{
		"":        "1",
		"apiserver1": "1",
		"apiserver2": "2",
		"apiservers": "1",
	}
	for in, want := range cases {
		if got := IndexFromAPIServerArg(in); got != want {
			t.Fatalf("IndexFromAPIServerArg(%q) = %q, want %q", in, got, want)
		}
	}
}
