// SPDX-License-Identifier: MIT
package midi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"beatlight/internal/log"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

const rescanInterval = 2 * time.Second

// Listener feeds a MIDI input port into a Mapper, reconnecting when the
// controller is unplugged and plugged back in.
type Listener struct {
	match  string
	mapper *Mapper
}

// NewListener listens on the first input whose name contains match.
func NewListener(match string, mapper *Mapper) *Listener {
	return &Listener{match: match, mapper: mapper}
}

// Ports lists the input port names the driver can see.
func Ports() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("midi: driver: %w", err)
	}
	defer drv.Close()
	return portNames(drv)
}

func portNames(drv drivers.Driver) ([]string, error) {
	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("midi: list inputs: %w", err)
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names, nil
}

// Run blocks until ctx is cancelled. A missing port is not an error; the
// listener keeps scanning for it.
func (l *Listener) Run(ctx context.Context) error {
	drv, err := rtmididrv.New()
	if err != nil {
		return fmt.Errorf("midi: driver: %w", err)
	}
	defer drv.Close()

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	var (
		in      drivers.In
		stop    func()
		lost    = make(chan struct{}, 1)
		warned  bool
		current string
	)
	disconnect := func() {
		if stop != nil {
			stop()
			stop = nil
		}
		if in != nil {
			in.Close()
			in = nil
		}
	}
	defer disconnect()

	for {
		if in == nil {
			port, err := l.find(drv)
			switch {
			case err != nil:
				log.Warnf("MIDI: %v", err)
			case port == nil:
				if !warned {
					log.Warnf("MIDI: no input matching %q, will keep looking", l.match)
					warned = true
				}
			default:
				if stop, err = l.listen(port, lost); err != nil {
					log.Warnf("MIDI: %v", err)
				} else {
					in, current, warned = port, port.String(), false
					log.Infof("MIDI: listening on %s", current)
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-lost:
			log.Warnf("MIDI: lost %s", current)
			disconnect()
		case <-ticker.C:
		}
	}
}

func (l *Listener) find(drv drivers.Driver) (drivers.In, error) {
	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("list inputs: %w", err)
	}
	for _, in := range ins {
		if strings.Contains(in.String(), l.match) {
			return in, nil
		}
	}
	return nil, nil
}

func (l *Listener) listen(in drivers.In, lost chan<- struct{}) (func(), error) {
	if err := in.Open(); err != nil {
		return nil, fmt.Errorf("open %s: %w", in, err)
	}
	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, _ int32) {
		l.handle(msg)
	}, gomidi.HandleError(func(err error) {
		log.Debugf("MIDI: listener error: %v", err)
		select {
		case lost <- struct{}{}:
		default:
		}
	}))
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("listen %s: %w", in, err)
	}
	return stop, nil
}

func (l *Listener) handle(msg gomidi.Message) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		log.Debugf("MIDI: note on %d vel %d ch %d", key, vel, ch)
		l.mapper.NoteOn(int(key), int(vel))
	case msg.GetNoteEnd(&ch, &key):
		log.Debugf("MIDI: note off %d ch %d", key, ch)
		l.mapper.NoteOff(int(key))
	}
}
