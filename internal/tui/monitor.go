// SPDX-License-Identifier: MIT

// Package tui is the terminal front panel: live tempo, beat and volume
// readout, a preset picker and the fixture patch.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"beatlight/internal/control"
	"beatlight/internal/lighting"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 80 * time.Millisecond

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#C0132B")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4D6D")).
			Bold(true)

	beatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB000"))
)

// Screen is the active panel.
type Screen int

const (
	PresetScreen Screen = iota
	FixtureScreen
)

type keyMap struct {
	Up, Down, Apply, Trigger, Strobe, Reactive, Faster, Slower, Switch, Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Apply, k.Trigger, k.Strobe, k.Reactive, k.Faster, k.Slower, k.Switch, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Apply:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply")),
	Trigger:  key.NewBinding(key.WithKeys(" ", "t"), key.WithHelp("space", "tap beat")),
	Strobe:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "strobe on/off")),
	Reactive: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "audio reactive")),
	Faster:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "bpm up")),
	Slower:   key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "bpm down")),
	Switch:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "presets/fixtures")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type statusMsg control.Status

type errMsg struct{ err error }

// Model is the bubbletea model for the front panel.
type Model struct {
	ctrl     control.Controller
	presets  []string
	selected int
	screen   Screen
	status   control.Status
	width    int
	help     help.Model

	strobeOn     bool
	beforeStrobe string
	err          error
}

// NewModel builds the panel for ctrl.
func NewModel(ctrl control.Controller) Model {
	presets := make([]string, 0, len(lighting.Presets()))
	for _, p := range lighting.Presets() {
		presets = append(presets, p.String())
	}
	m := Model{ctrl: ctrl, presets: presets, help: help.New()}
	m.status = ctrl.Status()
	for i, p := range presets {
		if p == m.status.Preset {
			m.selected = i
		}
	}
	return m
}

// Init starts the refresh ticker.
func (m Model) Init() tea.Cmd { return m.poll() }

func (m Model) poll() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return statusMsg(m.ctrl.Status())
	})
}

// Update handles input and status refreshes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case statusMsg:
		m.status = control.Status(msg)
		return m, m.poll()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		m.err = nil
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Switch):
			m.screen = (m.screen + 1) % 2
		case key.Matches(msg, keys.Up):
			if m.selected > 0 {
				m.selected--
			}
		case key.Matches(msg, keys.Down):
			if m.selected < len(m.presets)-1 {
				m.selected++
			}
		case key.Matches(msg, keys.Apply):
			m.strobeOn = false
			return m, m.setPreset(m.presets[m.selected])
		case key.Matches(msg, keys.Trigger):
			m.ctrl.Trigger()
		case key.Matches(msg, keys.Strobe):
			return m.toggleStrobe()
		case key.Matches(msg, keys.Reactive):
			m.ctrl.SetAudioReactive(!m.status.AudioReactive)
		case key.Matches(msg, keys.Faster):
			return m, m.setBPM(m.status.BPM + 1)
		case key.Matches(msg, keys.Slower):
			return m, m.setBPM(m.status.BPM - 1)
		}
	}
	return m, nil
}

// toggleStrobe emulates a held strobe key, which terminals cannot report.
func (m Model) toggleStrobe() (tea.Model, tea.Cmd) {
	if m.strobeOn {
		m.strobeOn = false
		return m, m.setPreset(m.beforeStrobe)
	}
	m.strobeOn = true
	m.beforeStrobe = m.status.Preset
	return m, m.setPreset("strobe_white")
}

func (m Model) setPreset(name string) tea.Cmd {
	return func() tea.Msg {
		if err := m.ctrl.SetPreset(name); err != nil {
			return errMsg{err}
		}
		return statusMsg(m.ctrl.Status())
	}
}

func (m Model) setBPM(bpm float64) tea.Cmd {
	return func() tea.Msg {
		if err := m.ctrl.SetBPM(bpm); err != nil {
			return errMsg{err}
		}
		return statusMsg(m.ctrl.Status())
	}
}

// View renders the panel.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("beatlight"))
	b.WriteString("  ")
	b.WriteString(m.header())
	b.WriteString("\n\n")

	if m.screen == PresetScreen {
		b.WriteString(m.renderPresets())
	} else {
		b.WriteString(m.renderFixtures())
	}

	b.WriteString("\n")
	if m.status.AudioError != "" {
		b.WriteString(errStyle.Render("audio: "+m.status.AudioError) + "\n")
	}
	if m.err != nil {
		b.WriteString(errStyle.Render(m.err.Error()) + "\n")
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s  %d frames  %d errors  %d overruns",
		m.status.DMX.Sink, m.status.DMX.Frames, m.status.DMX.Errors, m.status.DMX.Overruns)))
	b.WriteString("\n\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m Model) header() string {
	dot := dimStyle.Render("○")
	if age := m.status.LastBeatAge; age >= 0 && age < 0.1 {
		dot = beatStyle.Render("●")
	}
	mode := "manual"
	if m.status.AudioReactive {
		mode = "audio"
	}
	return infoStyle.Render(fmt.Sprintf("%s %5.1f bpm  %-6s  vol %s  %s",
		dot, m.status.BPM, mode, meter(m.status.Volume, 20), m.status.Preset))
}

// meter draws level in [0,1] as a bar of width cells.
func meter(level float64, width int) string {
	n := int(level*float64(width) + 0.5)
	n = min(max(n, 0), width)
	return "[" + strings.Repeat("█", n) + strings.Repeat(" ", width-n) + "]"
}

func (m Model) renderPresets() string {
	var sb strings.Builder
	for i, p := range m.presets {
		cursor := "  "
		if i == m.selected {
			cursor = "▶ "
		}
		line := cursor + p
		if p == m.status.Preset {
			line += dimStyle.Render("  (active)")
		}
		if i == m.selected {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func (m Model) renderFixtures() string {
	if len(m.status.Fixtures) == 0 {
		return "No fixtures patched.\n"
	}
	var sb strings.Builder
	for _, f := range m.status.Fixtures {
		n := f.Kind.Channels()
		fmt.Fprintf(&sb, "  %-12s %-6s ch %3d-%-3d\n", f.Name, f.Kind, f.Address, f.Address+n-1)
	}
	return sb.String()
}

// Run shows the panel until the user quits or ctx is cancelled.
func Run(ctx context.Context, ctrl control.Controller) error {
	p := tea.NewProgram(NewModel(ctrl), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
