// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"

	"github.com/gordonklaus/portaudio"
)

// MinDeviceID selects the system default input.
const MinDeviceID = -1

// Test seams.
var (
	paDevicesFunc      = portaudio.Devices
	paDefaultInputFunc = portaudio.DefaultInputDevice
)

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// Device describes one PortAudio device.
type Device struct {
	ID                int     `json:"id"`
	Name              string  `json:"name"`
	HostAPI           string  `json:"host_api"`
	MaxInputChannels  int     `json:"max_input_channels"`
	MaxOutputChannels int     `json:"max_output_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
}

// IsInput reports whether the device can capture.
func (d Device) IsInput() bool { return d.MaxInputChannels > 0 }

// Devices returns every device PortAudio knows about. PortAudio must be
// initialised.
func Devices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate audio devices: %w", err)
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		}
		if info.HostApi != nil {
			devices[i].HostAPI = info.HostApi.Name
		}
	}
	return devices, nil
}

// InputDevice retrieves the device for deviceID, or the system default
// input for MinDeviceID.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == MinDeviceID {
		device, err := paDefaultInputFunc()
		if err != nil {
			return nil, &DeviceError{Device: "default", Err: err}
		}
		return device, nil
	}

	infos, err := paDevicesFunc()
	if err != nil {
		return nil, &DeviceError{Device: fmt.Sprint(deviceID), Err: err}
	}
	if deviceID < 0 || deviceID >= len(infos) {
		return nil, &DeviceError{Device: fmt.Sprint(deviceID), Err: fmt.Errorf("invalid device ID")}
	}
	if infos[deviceID].MaxInputChannels < 1 {
		return nil, &DeviceError{Device: infos[deviceID].Name, Err: fmt.Errorf("device has no input channels")}
	}
	return infos[deviceID], nil
}

// WriteDevices prints the device table, inputs marked with '*'.
func WriteDevices(w io.Writer, devices []Device) {
	fmt.Fprintf(w, "Audio devices:\n")
	for _, d := range devices {
		mark := " "
		if d.IsInput() {
			mark = "*"
		}
		fmt.Fprintf(w, "%s [%d] %s (%s)\n", mark, d.ID, d.Name, d.HostAPI)
		fmt.Fprintf(w, "      in %d / out %d channels, %.0f Hz\n", d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
	}
}
