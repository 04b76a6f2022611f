package dispatcher

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestParse_GcodeLine(t *testing.T) {
	cmd := Parse("G1 X10.5 Y-2 E0.5")
	if cmd == nil {
		t.Fatalf("expected non-nil command")
	}
	if cmd.Name != "G1" {
		t.Fatalf("expected G1, got %s", cmd.Name)
	}
	if cmd.GetFloat("X", 0) != 10.5 {
		t.Fatalf("expected X=10.5, got %v", cmd.GetFloat("X", 0))
	}
	if cmd.GetFloat("E", -1) != 0.5 {
		t.Fatalf("expected E=0.5, got %v", cmd.GetFloat("E", -1))
	}
}

func TestParse_NamedMacroWithKeyValueParams(t *testing.T) {
	cmd := Parse("SDCARD_PRINT_FILE FILENAME=model.gcode")
	if cmd.Name != "SDCARD_PRINT_FILE" {
		t.Fatalf("expected SDCARD_PRINT_FILE, got %s", cmd.Name)
	}
	if got := cmd.GetString("FILENAME", ""); got != "model.gcode" {
		t.Fatalf("expected model.gcode, got %q", got)
	}
}

func TestParse_BlankAndComment(t *testing.T) {
	if Parse("") != nil {
		t.Fatalf("expected nil for blank line")
	}
	if Parse("   ") != nil {
		t.Fatalf("expected nil for whitespace-only line")
	}
	if Parse(";LAYER:3") != nil {
		t.Fatalf("expected nil for comment line")
	}
}

func TestDispatcher_RunsRegisteredHandler(t *testing.T) {
	var responses []string
	d := New(func(line string) { responses = append(responses, line) })

	called := false
	d.Register("M21", func(cmd *Command) error {
		called = true
		cmd.RespondRaw("SD card ok")
		return nil
	})

	if err := d.Run("M21"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("expected handler to be called")
	}
	if len(responses) != 1 || responses[0] != "SD card ok" {
		t.Fatalf("unexpected responses: %v", responses)
	}
}

func TestDispatcher_UnknownCommandIsNoop(t *testing.T) {
	d := New(nil)
	if err := d.Run("UNKNOWN_CMD"); err != nil {
		t.Fatalf("unexpected error for unknown command: %v", err)
	}
}

func TestDispatcher_PropagatesHandlerError(t *testing.T) {
	d := New(nil)
	boom := errors.New("boom")
	d.Register("M28", func(cmd *Command) error { return boom })

	if err := d.Run("M28"); !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}
}

func TestDispatcher_TestLockedReflectsHeldMutex(t *testing.T) {
	d := New(nil)
	if d.TestLocked() {
		t.Fatalf("expected dispatcher to be free initially")
	}

	release := make(chan struct{})
	entered := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	d.Register("SLOW", func(cmd *Command) error {
		close(entered)
		<-release
		return nil
	})
	go func() {
		defer wg.Done()
		_ = d.Run("SLOW")
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatalf("handler never started")
	}

	if !d.TestLocked() {
		t.Fatalf("expected dispatcher to report busy while handler runs")
	}

	close(release)
	wg.Wait()

	if d.TestLocked() {
		t.Fatalf("expected dispatcher to be free after handler finished")
	}
}
