// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"beatlight/internal/app"
	"beatlight/internal/audio"
	"beatlight/internal/config"
	"beatlight/internal/control"
	"beatlight/internal/dmx"
	"beatlight/internal/lighting"
	"beatlight/internal/log"
	"beatlight/internal/midi"
	"beatlight/internal/observe"
	"beatlight/pkg/build"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

// options holds flag values. Only flags the user actually set override
// the loaded configuration.
type options struct {
	configPath   string
	device       int
	inputFile    string
	port         string
	framing      string
	universeSize int
	artnet       string
	bpm          float64
	preset       string
	manual       bool
	listen       string
	tui          bool
	midi         bool
	mdns         bool
	record       bool
	output       string
	verbose      bool
}

// NewRootCommand builds the beatlight command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{})
}

func newRootCommand(opts *options) *cobra.Command {
	buildInfo := build.GetBuildFlags()

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, opts)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(
		newListCommand(),
		newPresetsCommand(),
		newDiscoverCommand(),
	)

	// Configuration
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Path to a YAML config file (default: ./config.yaml or ./beatlight.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show debug output")

	// Audio input
	f := rootCmd.Flags()
	f.IntVarP(&opts.device, "device", "d", config.DefaultDeviceID,
		"Input device ID. Use 'list' to see available devices.")
	f.StringVarP(&opts.inputFile, "input-file", "i", "",
		"Replay a WAV file instead of capturing a device")
	f.BoolVarP(&opts.record, "record", "r", false,
		"Record the audio input to a WAV file")
	f.StringVarP(&opts.output, "output", "o", "",
		"Recording file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")

	// DMX output
	f.StringVarP(&opts.port, "port", "p", "",
		"Serial device of the DMX interface, e.g. /dev/ttyUSB0")
	f.StringVar(&opts.framing, "framing", config.DefaultFraming,
		"Break generation: 'break' (hardware break) or 'baud' (baud-rate switch)")
	f.IntVar(&opts.universeSize, "universe-size", config.DefaultUniverseSize,
		"Channels per DMX frame (1-512)")
	f.StringVar(&opts.artnet, "artnet", "",
		"Send Art-Net to host:port instead of a serial port")

	// Lighting
	f.Float64Var(&opts.bpm, "bpm", config.DefaultBPM,
		"Fallback tempo used when no beats are detected")
	f.StringVar(&opts.preset, "preset", config.DefaultPreset,
		"Initial preset. Use 'presets' to see them all.")
	f.BoolVar(&opts.manual, "manual", false,
		"Ignore the audio input and the BPM clock; lights follow manual triggers only")

	// Control surfaces
	f.StringVar(&opts.listen, "http", config.DefaultListenAddr,
		"HTTP control surface address; empty disables it")
	f.BoolVarP(&opts.tui, "tui", "t", false,
		"Show the terminal front panel")
	f.BoolVar(&opts.midi, "midi", false,
		"Map notes from a MIDI keyboard onto presets")
	f.BoolVar(&opts.mdns, "mdns", false,
		"Advertise the control surface over mDNS")

	return rootCmd
}

// Execute runs the command line until ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("device") {
		cfg.Audio.InputDevice = opts.device
	}
	if changed("input-file") {
		cfg.Audio.InputFile = opts.inputFile
	}
	if changed("record") {
		cfg.Recording.Enabled = opts.record
	}
	if changed("output") {
		cfg.Recording.OutputFile = opts.output
	} else if cfg.Recording.Enabled && cfg.Recording.OutputFile == config.DefaultRecording {
		cfg.Recording.OutputFile = "recording-" + time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	}
	if changed("port") {
		cfg.DMX.Port = opts.port
	}
	if changed("framing") {
		cfg.DMX.Framing = opts.framing
	}
	if changed("universe-size") {
		cfg.DMX.UniverseSize = opts.universeSize
	}
	if changed("artnet") {
		cfg.DMX.ArtNet.Enabled = opts.artnet != ""
		cfg.DMX.ArtNet.Target = opts.artnet
	}
	if changed("bpm") {
		cfg.Lighting.BPM = opts.bpm
	}
	if changed("preset") {
		cfg.Lighting.Preset = opts.preset
	}
	if changed("manual") {
		cfg.Lighting.AudioReactive = !opts.manual
	}
	if changed("http") {
		cfg.Control.ListenAddr = opts.listen
	}
	if changed("midi") {
		cfg.MIDI.Enabled = opts.midi
	}
	if changed("mdns") {
		cfg.Control.MDNS = opts.mdns
	}
	if opts.verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runShow(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)

	if opts.tui {
		// The front panel owns the terminal.
		var w io.Writer = io.Discard
		if cfg.LogFile != "" {
			file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer file.Close()
			w = file
		}
		log.SetOutput(w)
		defer log.SetOutput(os.Stderr)
	}

	buildInfo := build.GetBuildFlags()
	provider, err := observe.InitProvider(buildInfo.Name, buildInfo.Version)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			log.Warnf("Metrics: shutdown: %v", err)
		}
	}()

	show, err := app.New(cfg, app.Options{
		Metrics:        observe.DefaultMetrics(),
		MetricsHandler: provider.Handler(),
		TUI:            opts.tui,
	})
	if err != nil {
		return err
	}

	log.Infof("%s %s: preset %s, %.0f bpm", buildInfo.Name, buildInfo.Version, cfg.Lighting.Preset, cfg.Lighting.BPM)
	return show.Run(cmd.Context())
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List audio devices, serial ports and MIDI inputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Audio devices (* = input):")
			devices, err := audio.Devices()
			if err != nil {
				fmt.Fprintf(out, "  unavailable: %v\n", err)
			} else {
				audio.WriteDevices(out, devices)
			}

			fmt.Fprintln(out, "\nSerial ports:")
			ports, err := dmx.ListPorts()
			if err != nil {
				fmt.Fprintf(out, "  unavailable: %v\n", err)
			}
			writeNames(out, ports)

			fmt.Fprintln(out, "\nMIDI inputs:")
			inputs, err := midi.Ports()
			if err != nil {
				fmt.Fprintf(out, "  unavailable: %v\n", err)
			}
			writeNames(out, inputs)
			return nil
		},
	}
}

func writeNames(w io.Writer, names []string) {
	if len(names) == 0 {
		fmt.Fprintln(w, "  none")
		return
	}
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", n)
	}
}

func newPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List lighting presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writePresets(cmd.OutOrStdout())
		},
	}
}

func writePresets(w io.Writer) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PRESET", "EFFECT", "COLORS")
	for _, p := range lighting.Presets() {
		d := p.Descriptor()
		colors := d.Colors[0].String() + " " + d.Colors[1].String()
		switch {
		case len(d.Palette) > 0:
			colors = fmt.Sprintf("%d-pair palette", len(d.Palette))
		case d.Kind == lighting.KindRainbow, d.Kind == lighting.KindBlackout:
			colors = "-"
		}
		t.Row(p.String(), d.Kind.String(), colors)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func newDiscoverCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find other beatlight instances on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			peers, err := control.Browse(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(peers) == 0 {
				fmt.Fprintln(out, "No instances found.")
				return nil
			}
			for _, p := range peers {
				fmt.Fprintf(out, "%s  http://%s:%d  %s\n", p.Instance, p.Host, p.Port, strings.TrimSpace(p.Info))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "How long to listen for answers")
	return cmd
}
