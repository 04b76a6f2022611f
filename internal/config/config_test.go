package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTimelapseConfig_MissingFileDisabled(t *testing.T) {
	cfg, err := LoadTimelapseConfig(filepath.Join(t.TempDir(), "missing.yaml"), "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.EnableDelayPhotography {
		t.Fatalf("expected time-lapse disabled by default")
	}
	if cfg.Frequency != 1 {
		t.Fatalf("expected frequency normalized to 1, got %d", cfg.Frequency)
	}
}

func TestLoadTimelapseConfig_ParsesEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "time_lapse.yaml")
	data := []byte(`"1":
  position: 1
  enable_delay_photography: true
  frequency: 3
  z_upraise: 5
  fps: MP4-25
  usb: usb-1234
  extruder: 2.5
  extruder_speed: 1800
`)
	if err := writeFile(path, data); err != nil {
		t.Fatalf("setup: %v", err)
	}

	cfg, err := LoadTimelapseConfig(path, "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.EnableDelayPhotography || cfg.Position != 1 || cfg.Frequency != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Framerate() != 25 {
		t.Fatalf("expected 25fps, got %d", cfg.Framerate())
	}
}

func TestLoadPrintSwitch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "print_switch.txt")
	if err := writeFile(path, []byte(`{"switch": true}`)); err != nil {
		t.Fatalf("setup: %v", err)
	}

	enabled, err := LoadPrintSwitch(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !enabled {
		t.Fatalf("expected switch=true")
	}
}

func TestLoadPrintSwitch_MissingDefaultsDisabled(t *testing.T) {
	enabled, err := LoadPrintSwitch(filepath.Join(t.TempDir(), "missing.txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enabled {
		t.Fatalf("expected disabled by default")
	}
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
