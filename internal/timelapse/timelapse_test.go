package timelapse

import (
	"errors"
	"testing"
	"time"

	"github.com/rohitsakala/printcore/internal/config"
)

type fakeRunner struct{ lines []string }

func (f *fakeRunner) RunScriptFromCommand(line string) error {
	f.lines = append(f.lines, line)
	return nil
}

type noSleep struct{}

func (noSleep) Sleep(time.Duration) {}

type fakeDevice struct{ present bool }

func (f fakeDevice) VideoDevicePresent() bool { return f.present }

func TestMatchesLayerKey(t *testing.T) {
	cases := map[string]bool{
		";LAYER:5":            true,
		"; layer: 3":          true,
		";AFTER_LAYER_CHANGE": true,
		"G1 X0":               false,
	}
	for line, want := range cases {
		if got := MatchesLayerKey(line); got != want {
			t.Fatalf("MatchesLayerKey(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestCoordinator_DisabledJustForwardsLine(t *testing.T) {
	runner := &fakeRunner{}
	c := New(config.TimelapseConfig{EnableDelayPhotography: false}, runner, noSleep{}, fakeDevice{present: true}, nil)

	if err := c.HandleLayerLine(";LAYER:1", Position{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.lines) != 1 || runner.lines[0] != ";LAYER:1" {
		t.Fatalf("expected marker line forwarded unchanged, got %v", runner.lines)
	}
	if c.LayerCount() != 1 {
		t.Fatalf("expected layer count incremented, got %d", c.LayerCount())
	}
}

func TestCoordinator_InPlaceModeFiresCaptureAsync(t *testing.T) {
	runner := &fakeRunner{}
	cfg := config.TimelapseConfig{EnableDelayPhotography: true, Position: 0, Frequency: 1}
	c := New(cfg, runner, noSleep{}, fakeDevice{present: true}, nil)

	if err := c.HandleLayerLine(";LAYER:1", Position{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// the capture dispatch is asynchronous; only the forwarded marker line
	// is guaranteed synchronously.
	found := false
	for _, l := range runner.lines {
		if l == ";LAYER:1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected marker line forwarded, got %v", runner.lines)
	}
}

func TestCoordinator_ParkModeRequiresTwentyG1Lines(t *testing.T) {
	runner := &fakeRunner{}
	cfg := config.TimelapseConfig{EnableDelayPhotography: true, Position: 1, Frequency: 1}
	c := New(cfg, runner, noSleep{}, fakeDevice{present: true}, nil)

	for i := 0; i < 5; i++ {
		c.NoteG1()
	}
	if err := c.HandleLayerLine(";LAYER:1", Position{X: 1, Y: 2, Z: 3, LastE: 4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// With fewer than 20 G1 lines dispatched, the park excursion must not
	// fire — only the marker line (and possibly an async in-place capture)
	// should be forwarded, not the multi-step excursion script.
	for _, l := range runner.lines {
		if l == "G0 X5 Y150 F15000" {
			t.Fatalf("park excursion fired with only 5 prior G1 lines")
		}
	}
}

func TestCoordinator_ParkModeExcursionSequence(t *testing.T) {
	runner := &fakeRunner{}
	cfg := config.TimelapseConfig{
		EnableDelayPhotography: true,
		Position:               1,
		Frequency:              1,
		ZUpraise:               5,
		Extruder:               2,
		ExtruderSpeed:          1800,
	}
	c := New(cfg, runner, noSleep{}, fakeDevice{present: true}, nil)
	for i := 0; i < 20; i++ {
		c.NoteG1()
	}

	if err := c.HandleLayerLine(";LAYER:1", Position{X: 10, Y: 20, Z: 1.2, LastE: 100}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantPrefixes := []string{
		"G1 F1800 E102", // retract: lastE + extruder(2)
		"M400",
		"G1 F3000 Z6.2", // Z + ZUpraise(5)
		"M400",
		"G0 X5 Y150 F15000",
		"M400",
		"TIMELAPSE_TAKE_FRAME",
		"G0 X10 Y20 F15000",
		"M400",
		"G1 F3000 Z1.2",
		"M400",
		"G1 F1800 E100",
		";LAYER:1",
	}
	if len(runner.lines) != len(wantPrefixes) {
		t.Fatalf("unexpected excursion script: %v", runner.lines)
	}
	for i, want := range wantPrefixes {
		if runner.lines[i] != want {
			t.Fatalf("step %d: got %q, want %q (full: %v)", i, runner.lines[i], want, runner.lines)
		}
	}
}

func TestCoordinator_FrequencyGating(t *testing.T) {
	runner := &fakeRunner{}
	cfg := config.TimelapseConfig{EnableDelayPhotography: true, Position: 0, Frequency: 2}
	c := New(cfg, runner, noSleep{}, fakeDevice{present: true}, nil)

	// layer_count=0 -> captures (0%2==0); layer_count=1 -> skips.
	_ = c.HandleLayerLine(";LAYER:1", Position{})
	afterFirst := len(runner.lines)
	_ = c.HandleLayerLine(";LAYER:2", Position{})
	if len(runner.lines) != afterFirst+1 {
		t.Fatalf("expected only the marker line forwarded on the skipped layer")
	}
}

func TestCoordinator_MissingDeviceDisablesFurtherCapture(t *testing.T) {
	runner := &fakeRunner{}
	cfg := config.TimelapseConfig{EnableDelayPhotography: true, Position: 0, Frequency: 1}
	c := New(cfg, runner, noSleep{}, fakeDevice{present: false}, nil)

	_ = c.HandleLayerLine(";LAYER:1", Position{})
	if c.videoOK {
		t.Fatalf("expected videoOK to latch false once the device is missing")
	}
}

type fakeRenderer struct {
	invoked bool
	err     error
}

func (f *fakeRenderer) Invoke() error {
	f.invoked = true
	return f.err
}

func TestCoordinator_InvokeRendererOnlyWhenEnabled(t *testing.T) {
	r := &fakeRenderer{}
	c := New(config.TimelapseConfig{EnableDelayPhotography: false}, &fakeRunner{}, noSleep{}, fakeDevice{present: true}, r)
	if err := c.InvokeRenderer(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.invoked {
		t.Fatalf("renderer should not be invoked when disabled")
	}

	r2 := &fakeRenderer{}
	c2 := New(config.TimelapseConfig{EnableDelayPhotography: true}, &fakeRunner{}, noSleep{}, fakeDevice{present: true}, r2)
	if err := c2.InvokeRenderer(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r2.invoked {
		t.Fatalf("renderer should be invoked when enabled")
	}
}

func TestCoordinator_RendererErrorPropagates(t *testing.T) {
	boom := errors.New("render failed")
	r := &fakeRenderer{err: boom}
	c := New(config.TimelapseConfig{EnableDelayPhotography: true}, &fakeRunner{}, noSleep{}, fakeDevice{present: true}, r)
	if err := c.InvokeRenderer(); !errors.Is(err, boom) {
		t.Fatalf("expected renderer error propagated, got %v", err)
	}
}
