// SPDX-License-Identifier: MIT

/*
Package control exposes the running show to operators: an HTTP API with a
websocket status stream, health probes and metrics, plus mDNS advertisement.

Handlers never reach for globals. Everything they act on comes through the
Controller passed to NewServer, the same object the MIDI listener and the
TUI are given.
*/
package control

import (
	"context"

	"beatlight/internal/dmx"
	"beatlight/internal/lighting"
)

// Controller is the set of operations an operator surface may perform.
type Controller interface {
	SetPreset(name string) error
	SetAudioReactive(on bool)
	SetAddress(fixture string, addr int) error
	SetBPM(bpm float64) error
	// Trigger fires a manual beat now and reports whether it was accepted.
	Trigger() bool
	Status() Status
}

// Status is the combined view served by /get_status and /ws.
type Status struct {
	lighting.Status
	Volume     float64   `json:"volume"`
	AudioInput string    `json:"audio_input,omitempty"`
	AudioError string    `json:"audio_error,omitempty"`
	DMX        dmx.Stats `json:"dmx"`
}

// Checker is a named readiness probe. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}
