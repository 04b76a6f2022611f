// Package config loads the small set of on-disk configuration and state
// files the controller reads: the time-lapse YAML config, the optional
// multi-printer YAML config, and the print-switch JSON toggle.
//
// The original (klippy.py, virtual_sdcard.py) duplicates a get_yaml_info/
// set_yaml_info pair in two different files; this package unifies that
// into one generic YAML load/save helper used by every caller.
package config

import (
	"encoding/json"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads and parses path into a new *T. A missing file returns a
// zero-value T and no error, matching the original's "missing file is not
// fatal" behavior (get_yaml_info returns {} when the path doesn't exist).
func LoadYAML[T any](path string) (*T, error) {
	var v T
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &v, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SaveYAML marshals v and writes it to path, creating or truncating it.
func SaveYAML[T any](path string, v *T) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadJSON reads and parses path into a new *T, mirroring LoadYAML's
// missing-file tolerance.
func LoadJSON[T any](path string) (*T, error) {
	var v T
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &v, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SaveJSON marshals v and writes it to path.
func SaveJSON[T any](path string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Framerate values the fps field resolves to.
const (
	FPS15 = "MP4-15"
	FPS25 = "MP4-25"
)

// TimelapseConfig is one printer's entry under time_lapse.yaml's per-index
// key (spec.md §3 TimelapseConfig).
type TimelapseConfig struct {
	Position               int     `yaml:"position"`
	EnableDelayPhotography bool    `yaml:"enable_delay_photography"`
	Frequency              int     `yaml:"frequency"`
	ZUpraise               float64 `yaml:"z_upraise"`
	FPS                    string  `yaml:"fps"`
	USB                    string  `yaml:"usb"`
	Extruder               float64 `yaml:"extruder"`
	ExtruderSpeed          float64 `yaml:"extruder_speed"`
}

// Framerate maps FPS to frames per second, defaulting to 15 for an
// unrecognized or empty value.
func (c *TimelapseConfig) Framerate() int {
	if c.FPS == FPS25 {
		return 25
	}
	return 15
}

// Normalize applies the defaults the original's config_data.get(key, default)
// calls encode, for a zero-value (e.g. missing-file) config.
func (c *TimelapseConfig) Normalize() {
	if c.Frequency < 1 {
		c.Frequency = 1
	}
}

// TimelapseFile is the on-disk shape of time_lapse.yaml: a map from
// printer index ("1".."4") to that printer's TimelapseConfig.
type TimelapseFile map[string]TimelapseConfig

// LoadTimelapseConfig reads path and returns the config for printer index
// idx, normalized, or a disabled zero-value config if absent.
func LoadTimelapseConfig(path, idx string) (*TimelapseConfig, error) {
	file, err := LoadYAML[TimelapseFile](path)
	if err != nil {
		return nil, err
	}
	cfg, ok := (*file)[idx]
	if !ok {
		cfg = TimelapseConfig{}
	}
	cfg.Normalize()
	return &cfg, nil
}

// PrintSwitch is print_switch.txt's JSON shape: whether crash recovery and
// checkpointing are enabled.
type PrintSwitch struct {
	Switch bool `json:"switch"`
}

// LoadPrintSwitch reads the print-switch toggle, defaulting to disabled.
func LoadPrintSwitch(path string) (bool, error) {
	sw, err := LoadJSON[PrintSwitch](path)
	if err != nil {
		return false, err
	}
	return sw.Switch, nil
}

// MultiPrinterConfig is the optional per-printer overrides file: a map
// from printer index to an arbitrary set of overrides.
type MultiPrinterConfig map[string]map[string]any
