// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"beatlight/internal/log"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	LogFile   string          `yaml:"log_file"`  // Log destination while the TUI owns the terminal.
	Audio     AudioConfig     `yaml:"audio"`
	Detector  DetectorConfig  `yaml:"detector"`
	Lighting  LightingConfig  `yaml:"lighting"`
	DMX       DMXConfig       `yaml:"dmx"`
	Control   ControlConfig   `yaml:"control"`
	MIDI      MIDIConfig      `yaml:"midi"`
	Recording RecordingConfig `yaml:"recording"`
}

// AudioConfig holds settings related to audio input.
type AudioConfig struct {
	InputDevice            int     `yaml:"input_device"`             // PortAudio device index for audio input (-1 for default).
	InputFile              string  `yaml:"input_file"`               // Replay a WAV file instead of capturing a device.
	SampleRate             float64 `yaml:"sample_rate"`              // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer        int     `yaml:"frames_per_buffer"`        // Samples per analysis frame.
	LowLatency             bool    `yaml:"low_latency"`              // Request low latency settings from PortAudio device.
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"` // Read failures in a row before capture is abandoned.
}

// DetectorConfig selects and tunes the onset heuristic.
type DetectorConfig struct {
	Method        string        `yaml:"method"`         // "flux" or "energy".
	BandLowHz     float64       `yaml:"band_low_hz"`    // Lower edge of the analysed band.
	BandHighHz    float64       `yaml:"band_high_hz"`   // Upper edge of the analysed band.
	History       int           `yaml:"history"`        // Onset values kept for the adaptive threshold.
	MinHistory    int           `yaml:"min_history"`    // Values required before any beat can fire.
	ThresholdStat string        `yaml:"threshold_stat"` // "median" or "mean".
	Multiplier    float64       `yaml:"multiplier"`
	Floor         float64       `yaml:"floor"`
	Refractory    time.Duration `yaml:"refractory"` // Minimum spacing between accepted beats.
	FFTWindow     string        `yaml:"fft_window"` // Window function applied before the FFT.
}

// FixtureConfig places one fixture in the universe.
type FixtureConfig struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`    // "panel" or "bar".
	Address int    `yaml:"address"` // 1-based start channel.
}

// LightingConfig holds the initial lighting state and engine pacing.
type LightingConfig struct {
	Preset        string          `yaml:"preset"`
	BPM           float64         `yaml:"bpm"` // Fallback tempo; 0 disables synthetic beats.
	AudioReactive bool            `yaml:"audio_reactive"`
	TickInterval  time.Duration   `yaml:"tick_interval"`
	Debounce      time.Duration   `yaml:"debounce"`
	Fixtures      []FixtureConfig `yaml:"fixtures"`
}

// ArtNetConfig configures the optional Art-Net output.
type ArtNetConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Target   string `yaml:"target"`   // host:port, usually a broadcast address on 6454.
	Universe int    `yaml:"universe"` // 15-bit port address.
}

// DMXConfig holds settings for the DMX512 transport.
type DMXConfig struct {
	Port            string        `yaml:"port"`          // Serial device, e.g. /dev/ttyUSB0. Empty selects the virtual sink.
	Framing         string        `yaml:"framing"`       // "break" or "baud".
	UniverseSize    int           `yaml:"universe_size"` // Channels per frame, 1..512.
	FrameRate       float64       `yaml:"frame_rate"`    // Frames per second.
	BreakTime       time.Duration `yaml:"break_time"`
	MABTime         time.Duration `yaml:"mab_time"`
	BreakBaud       int           `yaml:"break_baud"` // Bit rate used to synthesise the break in baud framing.
	VirtualFallback bool          `yaml:"virtual_fallback"`
	ArtNet          ArtNetConfig  `yaml:"artnet"`
}

// ControlConfig holds settings for the HTTP control surface.
type ControlConfig struct {
	ListenAddr     string        `yaml:"listen_addr"` // Empty disables the HTTP server.
	MDNS           bool          `yaml:"mdns"`
	Metrics        bool          `yaml:"metrics"`
	StatusInterval time.Duration `yaml:"status_interval"` // Websocket push period.
}

// MIDIConfig maps keyboard notes onto presets.
type MIDIConfig struct {
	Enabled    bool           `yaml:"enabled"`
	PortMatch  string         `yaml:"port_match"`  // Substring of the input port name.
	StrobeNote int            `yaml:"strobe_note"` // Held note that strobes until released.
	Mapping    map[int]string `yaml:"mapping"`     // Note number to preset name. Empty uses the built-in layout.
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:            DefaultDeviceID,
			SampleRate:             DefaultSampleRate,
			FramesPerBuffer:        DefaultFramesPerBuffer,
			LowLatency:             DefaultLowLatency,
			MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		},
		Detector: DetectorConfig{
			Method:        DefaultDetectorMethod,
			BandLowHz:     DefaultBandLowHz,
			BandHighHz:    DefaultBandHighHz,
			History:       DefaultHistory,
			MinHistory:    DefaultMinHistory,
			ThresholdStat: DefaultThresholdStat,
			Multiplier:    DefaultMultiplier,
			Floor:         DefaultFloor,
			Refractory:    DefaultRefractory,
			FFTWindow:     DefaultFFTWindow,
		},
		Lighting: LightingConfig{
			Preset:        DefaultPreset,
			BPM:           DefaultBPM,
			AudioReactive: DefaultAudioReactive,
			TickInterval:  DefaultTickInterval,
			Debounce:      DefaultDebounce,
			Fixtures: []FixtureConfig{
				{Name: "panel1", Kind: "panel", Address: 10},
				{Name: "panel2", Kind: "panel", Address: 20},
				{Name: "party_bar", Kind: "bar", Address: 30},
			},
		},
		DMX: DMXConfig{
			Framing:         DefaultFraming,
			UniverseSize:    DefaultUniverseSize,
			FrameRate:       DefaultFrameRate,
			BreakTime:       DefaultBreakTime,
			MABTime:         DefaultMABTime,
			BreakBaud:       DefaultBreakBaud,
			VirtualFallback: true,
			ArtNet: ArtNetConfig{
				Target: DefaultArtNetTarget,
			},
		},
		Control: ControlConfig{
			ListenAddr:     DefaultListenAddr,
			Metrics:        true,
			StatusInterval: DefaultStatusInterval,
		},
		MIDI: MIDIConfig{
			PortMatch:  DefaultMIDIPortMatch,
			StrobeNote: DefaultStrobeNote,
		},
		Recording: RecordingConfig{
			OutputFile: DefaultRecording,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml", "beatlight.yaml"). If no file is found,
// it uses built-in defaults. After loading defaults or from file, it applies environment
// variable overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"config.yaml", "beatlight.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate reports every out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		add("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	a := c.Audio
	if a.InputDevice < MinDeviceID {
		add("audio.input_device must be >= %d", MinDeviceID)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		add("audio.sample_rate %.0f outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		add("audio.frames_per_buffer %d outside [1, %d]", a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.MaxConsecutiveFailures <= 0 {
		add("audio.max_consecutive_failures must be positive")
	}

	d := c.Detector
	switch d.Method {
	case "flux", "energy":
	default:
		add("detector.method %q is not one of flux, energy", d.Method)
	}
	switch d.ThresholdStat {
	case "median", "mean":
	default:
		add("detector.threshold_stat %q is not one of median, mean", d.ThresholdStat)
	}
	if d.BandLowHz < 0 || d.BandHighHz <= d.BandLowHz {
		add("detector band [%.1f, %.1f] Hz is empty", d.BandLowHz, d.BandHighHz)
	}
	if d.BandHighHz > a.SampleRate/2 {
		add("detector.band_high_hz %.1f above Nyquist", d.BandHighHz)
	}
	if d.History <= 0 || d.MinHistory <= 0 || d.MinHistory > d.History {
		add("detector.min_history must be in [1, history]")
	}
	if d.Multiplier <= 0 {
		add("detector.multiplier must be positive")
	}
	if d.Refractory <= 0 {
		add("detector.refractory must be positive")
	}

	l := c.Lighting
	if l.BPM < 0 || l.BPM > MaxBPM {
		add("lighting.bpm %.1f outside [0, %.0f]", l.BPM, MaxBPM)
	}
	if l.TickInterval <= 0 {
		add("lighting.tick_interval must be positive")
	}
	if l.Debounce < 0 {
		add("lighting.debounce must not be negative")
	}
	seen := make(map[string]bool, len(l.Fixtures))
	for _, f := range l.Fixtures {
		if f.Name == "" {
			add("lighting.fixtures: fixture without a name")
		}
		if seen[f.Name] {
			add("lighting.fixtures: duplicate fixture %q", f.Name)
		}
		seen[f.Name] = true
		if f.Kind != "panel" && f.Kind != "bar" {
			add("lighting.fixtures[%s]: kind %q is not one of panel, bar", f.Name, f.Kind)
		}
		if f.Address < 1 || f.Address > c.DMX.UniverseSize {
			add("lighting.fixtures[%s]: address %d outside [1, %d]", f.Name, f.Address, c.DMX.UniverseSize)
		}
	}

	x := c.DMX
	switch x.Framing {
	case "break", "baud":
	default:
		add("dmx.framing %q is not one of break, baud", x.Framing)
	}
	if x.UniverseSize < 1 || x.UniverseSize > MaxUniverseSize {
		add("dmx.universe_size %d outside [1, %d]", x.UniverseSize, MaxUniverseSize)
	}
	if x.FrameRate <= 0 || x.FrameRate > MaxFrameRate {
		add("dmx.frame_rate %.1f outside (0, %.0f]", x.FrameRate, MaxFrameRate)
	}
	if x.BreakTime < MinBreakTime {
		add("dmx.break_time %s below %s", x.BreakTime, MinBreakTime)
	}
	if x.MABTime < MinMABTime {
		add("dmx.mab_time %s below %s", x.MABTime, MinMABTime)
	}
	if x.Framing == "baud" && (x.BreakBaud <= 0 || x.BreakBaud > 115200) {
		add("dmx.break_baud %d outside [1, 115200]", x.BreakBaud)
	}
	if x.ArtNet.Enabled {
		// A bare host is fine; the sink adds the standard Art-Net port.
		if x.ArtNet.Target == "" {
			add("dmx.artnet.target must be set when Art-Net is enabled")
		} else if _, port, err := net.SplitHostPort(x.ArtNet.Target); err == nil {
			if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
				add("dmx.artnet.target %q has an invalid port", x.ArtNet.Target)
			}
		}
		if x.ArtNet.Universe < 0 || x.ArtNet.Universe > 0x7fff {
			add("dmx.artnet.universe %d outside [0, 32767]", x.ArtNet.Universe)
		}
	}

	if c.Control.ListenAddr != "" && c.Control.StatusInterval <= 0 {
		add("control.status_interval must be positive")
	}
	if c.MIDI.StrobeNote < 0 || c.MIDI.StrobeNote > 127 {
		add("midi.strobe_note %d outside [0, 127]", c.MIDI.StrobeNote)
	}
	for note := range c.MIDI.Mapping {
		if note < 0 || note > 127 {
			add("midi.mapping: note %d outside [0, 127]", note)
		}
	}
	if c.Recording.Enabled && c.Recording.OutputFile == "" {
		add("recording.output_file must be set when recording is enabled")
	}

	return errors.Join(errs...)
}

// applyEnvOverrides lets BEATLIGHT_* variables replace file values. Values
// that fail to parse are ignored.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("BEATLIGHT_LOG_LEVEL"); ok {
		c.LogLevel = val
		log.Debugf("configuration: overriding log_level from env: %s", val)
	}

	// BEATLIGHT_AUDIO_{...}
	if val, ok := os.LookupEnv("BEATLIGHT_AUDIO_DEVICE"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Audio.InputDevice = n
			log.Debugf("configuration: overriding audio.input_device from env: %d", n)
		}
	}
	if val, ok := os.LookupEnv("BEATLIGHT_AUDIO_FILE"); ok {
		c.Audio.InputFile = val
		log.Debugf("configuration: overriding audio.input_file from env: %s", val)
	}

	// BEATLIGHT_LIGHTING_{...}
	if val, ok := os.LookupEnv("BEATLIGHT_PRESET"); ok {
		c.Lighting.Preset = val
		log.Debugf("configuration: overriding lighting.preset from env: %s", val)
	}
	if val, ok := os.LookupEnv("BEATLIGHT_BPM"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Lighting.BPM = f
			log.Debugf("configuration: overriding lighting.bpm from env: %.1f", f)
		}
	}
	if val, ok := os.LookupEnv("BEATLIGHT_AUDIO_REACTIVE"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Lighting.AudioReactive = b
			log.Debugf("configuration: overriding lighting.audio_reactive from env: %v", b)
		}
	}

	// BEATLIGHT_DMX_{...}
	if val, ok := os.LookupEnv("BEATLIGHT_DMX_PORT"); ok {
		c.DMX.Port = val
		log.Debugf("configuration: overriding dmx.port from env: %s", val)
	}
	if val, ok := os.LookupEnv("BEATLIGHT_DMX_FRAMING"); ok {
		c.DMX.Framing = val
		log.Debugf("configuration: overriding dmx.framing from env: %s", val)
	}
	if val, ok := os.LookupEnv("BEATLIGHT_DMX_FRAME_RATE"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.DMX.FrameRate = f
			log.Debugf("configuration: overriding dmx.frame_rate from env: %.1f", f)
		}
	}
	if val, ok := os.LookupEnv("BEATLIGHT_ARTNET_TARGET"); ok {
		c.DMX.ArtNet.Enabled = true
		c.DMX.ArtNet.Target = val
		log.Debugf("configuration: overriding dmx.artnet.target from env: %s", val)
	}

	// BEATLIGHT_HTTP_ADDR
	if val, ok := os.LookupEnv("BEATLIGHT_HTTP_ADDR"); ok {
		c.Control.ListenAddr = val
		log.Debugf("configuration: overriding control.listen_addr from env: %s", val)
	}
}
