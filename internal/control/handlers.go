// SPDX-License-Identifier: MIT
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"beatlight/internal/lighting"
	"beatlight/internal/log"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 2 * time.Second

type reply struct {
	Status string            `json:"status"`
	Error  string            `json:"error,omitempty"`
	Preset string            `json:"preset,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleSetPreset(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}
	if err := s.ctrl.SetPreset(name); err != nil {
		if errors.Is(err, lighting.ErrUnknownPreset) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reply{Status: "ok", Preset: name})
}

func (s *Server) handleSetAudioReactive(w http.ResponseWriter, r *http.Request) {
	on, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "enabled must be true or false")
		return
	}
	s.ctrl.SetAudioReactive(on)
	writeJSON(w, http.StatusOK, reply{Status: "ok"})
}

func (s *Server) handleSetAddress(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fixture := q.Get("fixture")
	addr, err := strconv.Atoi(q.Get("addr"))
	if fixture == "" || err != nil {
		writeError(w, http.StatusBadRequest, "need fixture and integer addr")
		return
	}
	if err := s.ctrl.SetAddress(fixture, addr); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reply{Status: "ok"})
}

func (s *Server) handleSetBPM(w http.ResponseWriter, r *http.Request) {
	bpm, err := strconv.ParseFloat(r.URL.Query().Get("bpm"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bpm must be a number")
		return
	}
	if err := s.ctrl.SetBPM(bpm); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reply{Status: "ok"})
}

func (s *Server) handleTrigger(w http.ResponseWriter, _ *http.Request) {
	if !s.ctrl.Trigger() {
		writeJSON(w, http.StatusOK, reply{Status: "ignored"})
		return
	}
	writeJSON(w, http.StatusOK, reply{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handlePresets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, lighting.PresetNames())
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, reply{Status: "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checkers))
	ok := true
	for _, c := range s.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			ok = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, reply{Status: "fail", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, reply{Status: "ok", Checks: checks})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(dashboard)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, reply{Status: "error", Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("HTTP: encode response: %v", err)
	}
}
