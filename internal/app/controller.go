// SPDX-License-Identifier: MIT
package app

import (
	"beatlight/internal/control"
)

func (a *App) SetPreset(name string) error { return a.engine.SetPreset(name) }

func (a *App) SetAudioReactive(on bool) { a.engine.SetAudioReactive(on) }

func (a *App) SetAddress(fixture string, addr int) error { return a.engine.SetAddress(fixture, addr) }

func (a *App) SetBPM(bpm float64) error { return a.engine.SetBPM(bpm) }

// Trigger fires a manual beat at the current time.
func (a *App) Trigger() bool { return a.engine.Trigger(a.now()) }

// Status gathers engine, audio and transmitter state.
func (a *App) Status() control.Status {
	st := control.Status{
		Status: a.engine.Status(a.now()),
		DMX:    a.tx.Stats(),
	}
	if a.detector != nil {
		st.Volume = a.detector.CurrentVolume()
	}
	if a.cfg.Audio.InputFile != "" {
		st.AudioInput = a.cfg.Audio.InputFile
	} else if c, ok := a.source.(interface{ Device() string }); ok {
		st.AudioInput = c.Device()
	}
	st.AudioError, _ = a.audioErr.Load().(string)
	return st
}

// Instance is the id advertised over mDNS.
func (a *App) Instance() string { return a.instance }
