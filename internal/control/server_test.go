// SPDX-License-Identifier: MIT
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"beatlight/internal/lighting"

	"github.com/gorilla/websocket"
)

type fakeController struct {
	mu       sync.Mutex
	preset   string
	reactive bool
	bpm      float64
	addrs    map[string]int
	triggers int
	accept   bool
}

func newFake() *fakeController {
	return &fakeController{preset: "techno_red", bpm: 124, accept: true, addrs: map[string]int{"panel1": 10}}
}

func (f *fakeController) SetPreset(name string) error {
	if _, err := lighting.ParsePreset(name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preset = name
	return nil
}

func (f *fakeController) SetAudioReactive(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactive = on
}

func (f *fakeController) SetAddress(fixture string, addr int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.addrs[fixture]; !ok {
		return fmt.Errorf("%w: %q", lighting.ErrUnknownFixture, fixture)
	}
	if addr < 1 || addr > 509 {
		return lighting.ErrInvalidAddress
	}
	f.addrs[fixture] = addr
	return nil
}

func (f *fakeController) SetBPM(bpm float64) error {
	if bpm <= 0 || bpm > lighting.MaxBPM {
		return lighting.ErrInvalidBPM
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bpm = bpm
	return nil
}

func (f *fakeController) Trigger() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
	return f.accept
}

func (f *fakeController) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{
		Status: lighting.Status{Preset: f.preset, BPM: f.bpm, AudioReactive: f.reactive, LastBeatAge: 0.02},
		Volume: 0.5,
	}
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, reply) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body reply
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, target, rec.Body.String(), err)
		}
	}
	return rec, body
}

func TestSetPreset(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantPreset string
	}{
		{name: "known", target: "/set_preset?name=acid_green", wantStatus: http.StatusOK, wantPreset: "acid_green"},
		{name: "unknown", target: "/set_preset?name=polka", wantStatus: http.StatusNotFound, wantPreset: "techno_red"},
		{name: "missing", target: "/set_preset", wantStatus: http.StatusBadRequest, wantPreset: "techno_red"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFake()
			s := NewServer(ctrl, Options{})
			rec, body := do(t, s.Handler(), "GET", tt.target)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%+v)", rec.Code, tt.wantStatus, body)
			}
			if tt.wantStatus != http.StatusOK && body.Error == "" {
				t.Error("error body missing message")
			}
			if ctrl.preset != tt.wantPreset {
				t.Errorf("preset = %q, want %q", ctrl.preset, tt.wantPreset)
			}
		})
	}
}

func TestSetters(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
		check      func(*fakeController) bool
	}{
		{name: "audio reactive on", method: "GET", target: "/set_audio_reactive?enabled=true", wantStatus: 200,
			check: func(f *fakeController) bool { return f.reactive }},
		{name: "audio reactive garbage", method: "GET", target: "/set_audio_reactive?enabled=maybe", wantStatus: 400,
			check: func(f *fakeController) bool { return !f.reactive }},
		{name: "address", method: "GET", target: "/set_address?fixture=panel1&addr=40", wantStatus: 200,
			check: func(f *fakeController) bool { return f.addrs["panel1"] == 40 }},
		{name: "address not a number", method: "GET", target: "/set_address?fixture=panel1&addr=ten", wantStatus: 400,
			check: func(f *fakeController) bool { return f.addrs["panel1"] == 10 }},
		{name: "address out of range", method: "GET", target: "/set_address?fixture=panel1&addr=600", wantStatus: 400,
			check: func(f *fakeController) bool { return f.addrs["panel1"] == 10 }},
		{name: "address unknown fixture", method: "GET", target: "/set_address?fixture=laser&addr=5", wantStatus: 400,
			check: func(f *fakeController) bool { return len(f.addrs) == 1 }},
		{name: "bpm", method: "GET", target: "/set_bpm?bpm=128.5", wantStatus: 200,
			check: func(f *fakeController) bool { return f.bpm == 128.5 }},
		{name: "bpm zero", method: "GET", target: "/set_bpm?bpm=0", wantStatus: 400,
			check: func(f *fakeController) bool { return f.bpm == 124 }},
		{name: "trigger", method: "POST", target: "/trigger", wantStatus: 200,
			check: func(f *fakeController) bool { return f.triggers == 1 }},
		{name: "trigger wrong method", method: "GET", target: "/trigger", wantStatus: 405,
			check: func(f *fakeController) bool { return f.triggers == 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFake()
			s := NewServer(ctrl, Options{})
			req := httptest.NewRequest(tt.method, tt.target, nil)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !tt.check(ctrl) {
				t.Errorf("controller state wrong: %+v", ctrl)
			}
		})
	}
}

func TestTriggerIgnored(t *testing.T) {
	ctrl := newFake()
	ctrl.accept = false
	_, body := do(t, NewServer(ctrl, Options{}).Handler(), "POST", "/trigger")
	if body.Status != "ignored" {
		t.Errorf("status = %q, want ignored", body.Status)
	}
}

func TestGetStatus(t *testing.T) {
	s := NewServer(newFake(), Options{})
	req := httptest.NewRequest("GET", "/get_status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"preset", "bpm", "last_beat_age", "volume", "dmx"} {
		if _, ok := got[key]; !ok {
			t.Errorf("status missing %q: %v", key, got)
		}
	}
	if got["bpm"] != 124.0 {
		t.Errorf("bpm = %v", got["bpm"])
	}
}

func TestPresets(t *testing.T) {
	s := NewServer(newFake(), Options{})
	req := httptest.NewRequest("GET", "/presets", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(names) != len(lighting.Presets()) {
		t.Errorf("got %d presets", len(names))
	}
}

func TestHealthAndReadiness(t *testing.T) {
	failing := errors.New("no frames sent")
	s := NewServer(newFake(), Options{Checkers: []Checker{
		{Name: "audio", Check: func(context.Context) error { return nil }},
		{Name: "dmx", Check: func(context.Context) error { return failing }},
	}})

	rec, body := do(t, s.Handler(), "GET", "/healthz")
	if rec.Code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %+v", rec.Code, body)
	}

	rec, body = do(t, s.Handler(), "GET", "/readyz")
	if rec.Code != http.StatusServiceUnavailable || body.Status != "fail" {
		t.Errorf("readyz = %d %+v", rec.Code, body)
	}
	if body.Checks["audio"] != "ok" || !strings.Contains(body.Checks["dmx"], failing.Error()) {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestMetricsRouteOptional(t *testing.T) {
	rec, _ := do(t, NewServer(newFake(), Options{}).Handler(), "GET", "/metrics")
	if rec.Code != http.StatusNotFound {
		t.Errorf("metrics without handler = %d, want 404", rec.Code)
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("beatlight_dmx_frames_total 3\n"))
	})
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	NewServer(newFake(), Options{Metrics: metrics}).Handler().ServeHTTP(rr, req)
	if !strings.Contains(rr.Body.String(), "beatlight_dmx_frames_total") {
		t.Errorf("metrics body = %q", rr.Body.String())
	}
}

func TestDashboard(t *testing.T) {
	s := NewServer(newFake(), Options{})
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/ws") {
		t.Errorf("dashboard = %d", rec.Code)
	}

	rec, _ = do(t, s.Handler(), "GET", "/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path = %d, want 404", rec.Code)
	}
}

func TestStatusStream(t *testing.T) {
	ctrl := newFake()
	s := NewServer(ctrl, Options{StatusInterval: 10 * time.Millisecond})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.run(ctx, s.interval, s.snapshot)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Status
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("first message: %v", err)
	}
	if first.Preset != "techno_red" {
		t.Errorf("first preset = %q", first.Preset)
	}

	if err := ctrl.SetPreset("vivid_pop"); err != nil {
		t.Fatal(err)
	}
	for range 50 {
		var st Status
		if err := conn.ReadJSON(&st); err != nil {
			t.Fatalf("stream: %v", err)
		}
		if st.Preset == "vivid_pop" {
			return
		}
	}
	t.Error("preset change never streamed")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := NewServer(newFake(), Options{Addr: "127.0.0.1:0"})
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if s.Port() == 0 {
		t.Fatal("no port bound")
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", s.Port())
	var resp *http.Response
	var err error
	for range 50 {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
