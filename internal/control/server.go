// SPDX-License-Identifier: MIT
package control

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"beatlight/internal/log"
)

// DefaultStatusInterval paces the websocket stream at about 12 Hz.
const DefaultStatusInterval = 80 * time.Millisecond

const shutdownTimeout = 2 * time.Second

//go:embed dashboard.html
var dashboard []byte

// Options configures a Server.
type Options struct {
	Addr           string
	StatusInterval time.Duration
	Metrics        http.Handler // Served on /metrics when non-nil.
	Checkers       []Checker    // Evaluated by /readyz.
}

// Server is the HTTP control surface.
type Server struct {
	ctrl     Controller
	checkers []Checker
	interval time.Duration
	hub      *hub
	mux      *http.ServeMux
	srv      *http.Server
	ln       net.Listener
}

// NewServer builds the routes for ctrl. It does not listen until Listen or
// Run is called.
func NewServer(ctrl Controller, opts Options) *Server {
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	s := &Server{
		ctrl:     ctrl,
		checkers: append([]Checker(nil), opts.Checkers...),
		interval: opts.StatusInterval,
		hub:      newHub(),
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /set_preset", s.handleSetPreset)
	s.mux.HandleFunc("GET /set_audio_reactive", s.handleSetAudioReactive)
	s.mux.HandleFunc("GET /set_address", s.handleSetAddress)
	s.mux.HandleFunc("GET /set_bpm", s.handleSetBPM)
	s.mux.HandleFunc("POST /trigger", s.handleTrigger)
	s.mux.HandleFunc("GET /get_status", s.handleStatus)
	s.mux.HandleFunc("GET /presets", s.handlePresets)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		s.hub.serve(w, r, s.snapshot)
	})
	if opts.Metrics != nil {
		s.mux.Handle("GET /metrics", opts.Metrics)
	}

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) snapshot() any { return s.ctrl.Status() }

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("control: listen %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	return nil
}

// Port returns the bound TCP port, or 0 before Listen.
func (s *Server) Port() int {
	if s.ln == nil {
		return 0
	}
	if a, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

// Run serves until ctx is cancelled, then shuts down within a bounded
// time. It calls Listen first if that has not happened yet.
func (s *Server) Run(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go s.hub.run(ctx, s.interval, s.snapshot)

	errc := make(chan error, 1)
	go func() {
		log.Infof("HTTP: control surface on http://%s", s.ln.Addr())
		errc <- s.srv.Serve(s.ln)
	}()

	select {
	case err := <-errc:
		s.hub.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control: serve: %w", err)
	case <-ctx.Done():
	}

	s.hub.close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control: shutdown: %w", err)
	}
	return nil
}
