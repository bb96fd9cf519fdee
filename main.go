// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"beatlight/cmd"
	"beatlight/internal/audio"
	"beatlight/internal/log"
	"beatlight/pkg/build"
)

// main is the entry point for the lighting driver.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Initialize PortAudio
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Capture audio and detect beats
//   - Render the active preset into the universe
//   - Transmit frames at the DMX rate
//   - Serve the control surfaces
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Black out the fixtures
//   - Close devices and flush the recording
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Initialize build information including version, commit hash, and build time
	if err := build.Initialize(); err != nil {
		log.Fatalf("%v", err)
	}

	// PortAudio is optional: without it the show runs on the BPM clock
	audioReady := true
	if err := audio.Initialize(); err != nil {
		log.Warnf("Audio: %v", err)
		audioReady = false
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cmd.Execute(ctx, os.Args[1:])

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	stop()
	if audioReady {
		audio.Terminate()
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}
