package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the beat detector, lighting engine and DMX transport.
const (
	// Audio input
	DefaultDeviceID        = MinDeviceID // System default device
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultFramesPerBuffer = 2048        // ~46 ms per frame at 44.1 kHz
	DefaultLowLatency      = false

	// Beat detection
	DefaultDetectorMethod = "flux"
	DefaultThresholdStat  = "median"
	DefaultBandLowHz      = 20.0
	DefaultBandHighHz     = 200.0
	DefaultHistory        = 40
	DefaultMinHistory     = 20
	DefaultMultiplier     = 2.5
	DefaultFloor          = 0.1
	DefaultRefractory     = 250 * time.Millisecond
	DefaultFFTWindow      = "none"

	// Lighting
	DefaultPreset        = "techno_red"
	DefaultBPM           = 124.0
	DefaultAudioReactive = true
	DefaultTickInterval  = 20 * time.Millisecond
	DefaultDebounce      = 200 * time.Millisecond
	MaxBPM               = 300.0

	// DMX transport
	DefaultFraming      = "break"
	DefaultUniverseSize = 512
	DefaultFrameRate    = 30.0
	DefaultBreakTime    = 176 * time.Microsecond
	DefaultMABTime      = 16 * time.Microsecond
	DefaultBreakBaud    = 9600
	DefaultArtNetTarget = "255.255.255.255:6454"

	// Control surface
	DefaultListenAddr     = ":5005"
	DefaultStatusInterval = 80 * time.Millisecond
	DefaultMIDIPortMatch  = "LPK25"
	DefaultStrobeNote     = 71

	// Hardware and processing limits
	MinDeviceID      = -1     // -1 represents system default device
	MinSampleRate    = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate    = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames  = 8192
	MaxUniverseSize  = 512
	MinBreakTime     = 88 * time.Microsecond
	MinMABTime       = 8 * time.Microsecond
	MaxFrameRate     = 44.0 // Full 512-channel universe tops out around 44 Hz
	DefaultRecording = "recording.wav"

	// Error handling configuration
	DefaultMaxConsecutiveFailures = 5 // Max read failures before the capture loop gives up
)
