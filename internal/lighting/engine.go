// SPDX-License-Identifier: MIT

/*
Package lighting turns beats and wall-clock time into fixture channel values.

The Engine holds the active preset and its modulation state behind one lock.
Beats arrive through OnBeat (audio) and Trigger (manual); Update is called on
a fixed tick, synthesizes a beat from the BPM when audio has gone quiet, and
writes every fixture to the universe in a single batch. Update keeps the lock
across rendering and the write, so a preset switch is never half applied on
the wire.
*/
package lighting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"beatlight/internal/log"
	"beatlight/internal/observe"
)

const (
	// DefaultDebounce rejects beats closer together than this.
	DefaultDebounce = 200 * time.Millisecond

	// MaxBPM bounds SetBPM.
	MaxBPM = 300.0

	decayFactor = 0.85
	decayStep   = 20 * time.Millisecond
	strobeHz    = 15.0
	glitchProb  = 0.05
	glitchFloor = 0.05
)

var (
	ErrInvalidBPM     = errors.New("lighting: bpm out of range")
	ErrUnknownFixture = errors.New("lighting: unknown fixture")
	ErrInvalidAddress = errors.New("lighting: fixture address out of range")
)

// Universe is the channel buffer the engine renders into.
type Universe interface {
	SetChannels(values map[int]int) error
	Blackout()
	Size() int
}

// Options configures a new Engine. Zero values pick the defaults.
type Options struct {
	Fixtures      []Fixture
	Preset        string
	BPM           float64
	AudioReactive bool
	Debounce      time.Duration
	Epoch         time.Time  // time origin for periodic looks
	Rand          *rand.Rand // glitch and shuffle source
	Metrics       *observe.Metrics
}

// Status is a snapshot of the engine for status endpoints.
type Status struct {
	Preset        string    `json:"preset"`
	BPM           float64   `json:"bpm"`
	LastBeatAge   float64   `json:"last_beat_age"` // seconds; -1 before the first beat
	BeatCount     int       `json:"beat_count"`
	AudioReactive bool      `json:"audio_reactive"`
	Brightness    float64   `json:"brightness"`
	Fixtures      []Fixture `json:"fixtures"`
}

// Engine renders presets into a Universe. All methods are safe for
// concurrent use.
type Engine struct {
	mu       sync.Mutex
	universe Universe
	fixtures []Fixture
	values   map[int]int

	preset Preset
	desc   Descriptor
	colors Pair
	toggle bool

	beatCount      int
	lastPulse      time.Time // envelope reset
	lastBeat       time.Time // any beat, real or synthetic
	lastDebounce   time.Time
	lastVisualBeat time.Time
	brightness     float64

	audioReactive bool
	bpm           float64
	debounce      time.Duration

	epoch   time.Time
	rng     *rand.Rand
	metrics *observe.Metrics
}

// NewEngine validates the fixture layout against u and activates the
// initial preset.
func NewEngine(u Universe, opts Options) (*Engine, error) {
	if opts.Preset == "" {
		opts.Preset = TechnoRed.String()
	}
	p, err := ParsePreset(opts.Preset)
	if err != nil {
		return nil, err
	}
	if opts.BPM < 0 || opts.BPM > MaxBPM {
		return nil, fmt.Errorf("%w: %.1f", ErrInvalidBPM, opts.BPM)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Epoch.IsZero() {
		opts.Epoch = time.Now()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}

	seen := make(map[string]bool, len(opts.Fixtures))
	for _, f := range opts.Fixtures {
		if seen[f.Name] {
			return nil, fmt.Errorf("lighting: duplicate fixture %q", f.Name)
		}
		seen[f.Name] = true
		if err := checkAddress(f, f.Address, u.Size()); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		universe:      u,
		fixtures:      append([]Fixture(nil), opts.Fixtures...),
		values:        make(map[int]int, len(opts.Fixtures)*barChannels),
		audioReactive: opts.AudioReactive,
		bpm:           opts.BPM,
		debounce:      opts.Debounce,
		epoch:         opts.Epoch,
		rng:           opts.Rand,
		metrics:       opts.Metrics,
	}
	e.activate(p)
	return e, nil
}

func checkAddress(f Fixture, addr, size int) error {
	n := f.Kind.Channels()
	if n == 0 {
		return fmt.Errorf("lighting: fixture %q has unknown kind %q", f.Name, f.Kind)
	}
	if addr < 1 || addr+n-1 > size {
		return fmt.Errorf("%w: %s at %d needs channels %d..%d, universe has %d",
			ErrInvalidAddress, f.Name, addr, addr, addr+n-1, size)
	}
	return nil
}

// activate swaps in p and clears every piece of modulation state.
func (e *Engine) activate(p Preset) {
	e.preset = p
	e.desc = p.Descriptor()
	e.colors = e.desc.Colors
	e.toggle = false
	e.beatCount = 0
	e.lastPulse = time.Time{}
	e.brightness = 0
}

// SetPreset switches to the named preset. An unknown name leaves the
// engine untouched.
func (e *Engine) SetPreset(name string) error {
	p, err := ParsePreset(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.activate(p)
	e.mu.Unlock()

	log.Infof("Lighting: preset %s (%s)", p, p.Descriptor().Kind)
	if e.metrics != nil {
		e.metrics.RecordPresetSwitch(context.Background(), p.String())
	}
	return nil
}

// Preset returns the active preset.
func (e *Engine) Preset() Preset {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preset
}

// OnBeat handles a detected beat. It is dropped when audio-reactive mode is
// off, during blackout, or inside the debounce window.
func (e *Engine) OnBeat(at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.audioReactive {
		return
	}
	e.acceptLocked(at, observe.SourceAudio)
}

// Trigger handles a manual beat. Unlike OnBeat it works with audio-reactive
// mode off. It reports whether the beat was accepted.
func (e *Engine) Trigger(at time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acceptLocked(at, observe.SourceManual)
}

func (e *Engine) acceptLocked(at time.Time, source string) bool {
	if e.desc.Kind == KindBlackout {
		return false
	}
	if !e.lastDebounce.IsZero() && at.Sub(e.lastDebounce) <= e.debounce {
		return false
	}
	e.lastDebounce = at
	e.lastBeat = at
	e.beatLocked(at, source)
	return true
}

func (e *Engine) beatLocked(at time.Time, source string) {
	e.beatCount++
	e.lastVisualBeat = at

	if e.beatCount%e.desc.Divider == 0 {
		e.toggle = !e.toggle
		if e.desc.Kind == KindTwoTone {
			e.colors[0], e.colors[1] = e.colors[1], e.colors[0]
		}
		if e.desc.Shuffle && len(e.desc.Palette) > 0 {
			for slot := range e.colors {
				e.colors[slot] = e.desc.Palette[e.rng.IntN(len(e.desc.Palette))][slot]
			}
		}
		if decays(e.desc.Kind) {
			e.lastPulse = at
		}
	}

	if e.metrics != nil {
		e.metrics.RecordBeat(context.Background(), source)
	}
}

func decays(k Kind) bool { return k == KindPulse || k == KindPalette }

// Update advances the engine to now and writes every fixture in one batch.
func (e *Engine) Update(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.desc.Kind == KindBlackout {
		e.brightness = 0
		e.universe.Blackout()
		return nil
	}

	if e.audioReactive && e.bpm > 0 {
		if interval := beatInterval(e.bpm); now.Sub(e.lastBeat) >= interval {
			e.lastBeat = now
			e.beatLocked(now, observe.SourceBPM)
		}
	}

	clear(e.values)
	e.brightness = e.renderLocked(now)
	if err := e.universe.SetChannels(e.values); err != nil {
		return fmt.Errorf("lighting: write fixtures: %w", err)
	}
	return nil
}

func beatInterval(bpm float64) time.Duration {
	return time.Duration(60 / bpm * float64(time.Second))
}

// renderLocked fills e.values and returns the preset's base brightness.
func (e *Engine) renderLocked(now time.Time) float64 {
	t := now.Sub(e.epoch).Seconds()
	d := &e.desc
	colors := e.colors
	var b float64

	switch d.Kind {
	case KindPulse, KindPalette:
		b = e.envelope(now)
		if d.Kind == KindPalette && len(d.Palette) > 0 {
			colors = d.Palette[(e.beatCount/2)%len(d.Palette)]
		}
	case KindSine:
		p := e.period(d.PeriodBeats, 8, 0, 0)
		b = 0.425 + 0.375*math.Sin(2*math.Pi*t/p)
	case KindRainbow:
		b = 1
		p := e.period(d.PeriodBeats, 10, 10, 32)
		hue := math.Mod(t, p) / p
		for i, f := range e.fixtures {
			f.render(e.values, hsv(hue+0.1*float64(i)), b)
		}
		return b
	case KindStrobe:
		b = square(t, strobeHz)
	case KindGlitch:
		b = glitchFloor
		if e.rng.Float64() < glitchProb {
			b = 1
		}
	case KindAlternating:
		b = 1
	case KindTwoTone:
		b = 1
		if d.FlashHz > 0 {
			b = square(t, d.FlashHz)
		}
	case KindCrossfade:
		b = 1
		p := e.period(d.PeriodBeats, 16, 0, 0)
		m := 0.5 + 0.5*math.Sin(2*math.Pi*t/p)
		colors = Pair{mix(d.Colors[0], d.Colors[1], m), mix(d.Colors[0], d.Colors[1], 1-m)}
	}

	lit := 0
	if e.toggle {
		lit = 1
	}
	masked := d.Kind == KindAlternating || d.Alternate
	for i, f := range e.fixtures {
		fb := b
		if masked && i%2 != lit {
			fb = 0
		}
		f.render(e.values, colors[i%2], fb)
	}
	return b
}

// envelope is the pulse decay since the last processed beat, zero before any.
func (e *Engine) envelope(now time.Time) float64 {
	if e.lastPulse.IsZero() {
		return 0
	}
	dt := now.Sub(e.lastPulse)
	if dt <= 0 {
		return 1
	}
	return math.Pow(decayFactor, float64(dt)/float64(decayStep))
}

// period converts a length in beats to seconds, falling back to def when
// no tempo is set and clamping to [lo, hi] when hi > 0.
func (e *Engine) period(beats, def, lo, hi float64) float64 {
	if e.bpm <= 0 || beats <= 0 {
		return def
	}
	p := beats * 60 / e.bpm
	if hi > 0 {
		p = min(max(p, lo), hi)
	}
	return p
}

// square is 1 for the first half of each cycle at hz and 0 for the second.
func square(t, hz float64) float64 {
	if int64(math.Floor(2*hz*t))%2 == 0 {
		return 1
	}
	return 0
}

// SetAudioReactive enables or disables beat input from audio and the BPM
// fallback.
func (e *Engine) SetAudioReactive(on bool) {
	e.mu.Lock()
	e.audioReactive = on
	e.mu.Unlock()
	log.Infof("Lighting: audio reactive %t", on)
}

// SetBPM sets the fallback tempo used for synthetic beats and periods.
func (e *Engine) SetBPM(bpm float64) error {
	if !(bpm > 0 && bpm <= MaxBPM) {
		return fmt.Errorf("%w: %v not in (0, %.0f]", ErrInvalidBPM, bpm, MaxBPM)
	}
	e.mu.Lock()
	e.bpm = bpm
	e.mu.Unlock()
	log.Infof("Lighting: bpm %.1f", bpm)
	return nil
}

// SetAddress moves a fixture. Its old channels are zeroed so nothing is
// left lit at the previous address.
func (e *Engine) SetAddress(name string, addr int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, f := range e.fixtures {
		if f.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownFixture, name)
	}
	f := e.fixtures[idx]
	if err := checkAddress(f, addr, e.universe.Size()); err != nil {
		return err
	}
	if f.Address == addr {
		return nil
	}

	off := make(map[int]int, f.Kind.Channels())
	for ch := f.Address; ch < f.Address+f.Kind.Channels(); ch++ {
		off[ch] = 0
	}
	if err := e.universe.SetChannels(off); err != nil {
		return fmt.Errorf("lighting: clear old address: %w", err)
	}
	e.fixtures[idx].Address = addr
	log.Infof("Lighting: %s moved from %d to %d", name, f.Address, addr)
	return nil
}

// Fixtures returns a copy of the fixture list.
func (e *Engine) Fixtures() []Fixture {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Fixture(nil), e.fixtures...)
}

// Status returns a snapshot relative to now.
func (e *Engine) Status(now time.Time) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	age := -1.0
	if !e.lastVisualBeat.IsZero() {
		age = now.Sub(e.lastVisualBeat).Seconds()
	}
	return Status{
		Preset:        e.preset.String(),
		BPM:           e.bpm,
		LastBeatAge:   age,
		BeatCount:     e.beatCount,
		AudioReactive: e.audioReactive,
		Brightness:    e.brightness,
		Fixtures:      append([]Fixture(nil), e.fixtures...),
	}
}
