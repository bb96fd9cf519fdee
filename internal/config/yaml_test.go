// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.DMX.UniverseSize != DefaultUniverseSize {
		t.Errorf("UniverseSize = %d, want %d", cfg.DMX.UniverseSize, DefaultUniverseSize)
	}
	if cfg.Detector.Refractory != DefaultRefractory {
		t.Errorf("Refractory = %s, want %s", cfg.Detector.Refractory, DefaultRefractory)
	}
	if len(cfg.Lighting.Fixtures) != 3 {
		t.Errorf("expected 3 default fixtures, got %d", len(cfg.Lighting.Fixtures))
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
detector:
  method: energy
  threshold_stat: mean
  refractory: 360ms
lighting:
  preset: sunset_slow
  bpm: 128
  fixtures:
    - {name: wash, kind: panel, address: 1}
dmx:
  port: /dev/ttyUSB0
  framing: baud
  universe_size: 64
midi:
  mapping:
    36: blackout
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Detector.Method != "energy" || cfg.Detector.ThresholdStat != "mean" {
		t.Errorf("detector = %+v", cfg.Detector)
	}
	if cfg.Detector.Refractory != 360*time.Millisecond {
		t.Errorf("Refractory = %s, want 360ms", cfg.Detector.Refractory)
	}
	if cfg.Detector.Multiplier != DefaultMultiplier {
		t.Errorf("unset field lost its default: Multiplier = %v", cfg.Detector.Multiplier)
	}
	if cfg.Lighting.Preset != "sunset_slow" || cfg.Lighting.BPM != 128 {
		t.Errorf("lighting = %+v", cfg.Lighting)
	}
	if len(cfg.Lighting.Fixtures) != 1 || cfg.Lighting.Fixtures[0].Name != "wash" {
		t.Errorf("fixtures = %+v, want only wash", cfg.Lighting.Fixtures)
	}
	if cfg.DMX.UniverseSize != 64 || cfg.DMX.Framing != "baud" {
		t.Errorf("dmx = %+v", cfg.DMX)
	}
	if cfg.MIDI.Mapping[36] != "blackout" {
		t.Errorf("midi mapping = %v", cfg.MIDI.Mapping)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"unknown method", func(c *Config) { c.Detector.Method = "hfc" }, "detector.method"},
		{"min history above history", func(c *Config) { c.Detector.MinHistory = 50 }, "min_history"},
		{"band above nyquist", func(c *Config) { c.Detector.BandHighHz = 30000 }, "Nyquist"},
		{"zero refractory", func(c *Config) { c.Detector.Refractory = 0 }, "refractory"},
		{"bpm too high", func(c *Config) { c.Lighting.BPM = 301 }, "lighting.bpm"},
		{"short break", func(c *Config) { c.DMX.BreakTime = 50 * time.Microsecond }, "break_time"},
		{"short mab", func(c *Config) { c.DMX.MABTime = 4 * time.Microsecond }, "mab_time"},
		{"oversized universe", func(c *Config) { c.DMX.UniverseSize = 513 }, "universe_size"},
		{"fixture outside universe", func(c *Config) { c.DMX.UniverseSize = 16 }, "party_bar"},
		{"duplicate fixture", func(c *Config) {
			c.Lighting.Fixtures = append(c.Lighting.Fixtures, FixtureConfig{Name: "panel1", Kind: "panel", Address: 40})
		}, "duplicate"},
		{"artnet bare host", func(c *Config) {
			c.DMX.ArtNet.Enabled = true
			c.DMX.ArtNet.Target = "10.0.0.255"
		}, ""},
		{"artnet empty target", func(c *Config) {
			c.DMX.ArtNet.Enabled = true
			c.DMX.ArtNet.Target = ""
		}, "artnet.target"},
		{"artnet bad port", func(c *Config) {
			c.DMX.ArtNet.Enabled = true
			c.DMX.ArtNet.Target = "10.0.0.255:art"
		}, "invalid port"},
		{"midi note range", func(c *Config) { c.MIDI.Mapping = map[int]string{200: "blackout"} }, "midi.mapping"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BEATLIGHT_PRESET", "vivid_pop")
	t.Setenv("BEATLIGHT_BPM", "140")
	t.Setenv("BEATLIGHT_BPM_IGNORED", "x")
	t.Setenv("BEATLIGHT_DMX_PORT", "/dev/ttyACM0")
	t.Setenv("BEATLIGHT_ARTNET_TARGET", "192.168.1.255:6454")

	path := writeTempConfig(t, "lighting:\n  preset: techno_red\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Lighting.Preset != "vivid_pop" {
		t.Errorf("Preset = %q, want env value", cfg.Lighting.Preset)
	}
	if cfg.Lighting.BPM != 140 {
		t.Errorf("BPM = %v, want 140", cfg.Lighting.BPM)
	}
	if cfg.DMX.Port != "/dev/ttyACM0" {
		t.Errorf("Port = %q", cfg.DMX.Port)
	}
	if !cfg.DMX.ArtNet.Enabled || cfg.DMX.ArtNet.Target != "192.168.1.255:6454" {
		t.Errorf("artnet = %+v", cfg.DMX.ArtNet)
	}
}

func TestLoadConfig_EnvParseFailureKeepsValue(t *testing.T) {
	t.Setenv("BEATLIGHT_BPM", "fast")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Lighting.BPM != DefaultBPM {
		t.Errorf("BPM = %v, want default %v", cfg.Lighting.BPM, DefaultBPM)
	}
}
