package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/chaz8081/istrip-bridge/internal/ble"
	"github.com/chaz8081/istrip-bridge/internal/ble/protocol"
	"github.com/chaz8081/istrip-bridge/internal/bridge"
)

// fakeBridge validates like the real bridge and records what was submitted.
type fakeBridge struct {
	mu        sync.Mutex
	submitted []*protocol.Command
	submitErr error
	status    bridge.Status
}

func (f *fakeBridge) Submit(cmd *protocol.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	if err := protocol.Validate(cmd); err != nil {
		return err
	}
	f.submitted = append(f.submitted, cmd)
	return nil
}

func (f *fakeBridge) Status() bridge.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeBridge) lastSubmitted() *protocol.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.submitted) == 0 {
		return nil
	}
	return f.submitted[len(f.submitted)-1]
}

type fakeScanner struct {
	devices []ble.Device
}

func (f *fakeScanner) Scan(_ context.Context) ([]ble.Device, error) {
	return f.devices, nil
}

func newTestServer() (*Server, *fakeBridge) {
	fb := &fakeBridge{status: bridge.Status{
		Address:   "DD:DA:EC:63:26:E0",
		State:     ble.StateConnected,
		Connected: true,
		Reachable: true,
	}}
	return NewServer(fb, &fakeScanner{}), fb
}

func doRequest(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestOnWithHexColor(t *testing.T) {
	s, fb := newTestServer()

	rec := doRequest(t, s, http.MethodGet, "/on?hex=ff8000&brightness=60")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	cmd := fb.lastSubmitted()
	if cmd == nil {
		t.Fatal("nothing submitted")
	}
	if cmd.Kind != protocol.KindSetColor {
		t.Errorf("kind = %v, want set_color", cmd.Kind)
	}
	if cmd.Color != (protocol.RGB{R: 255, G: 128, B: 0}) || cmd.Brightness != 60 {
		t.Errorf("submitted %+v br=%d, want 255,128,0 br=60", cmd.Color, cmd.Brightness)
	}

	body := decodeJSON(t, rec)
	if body["status"] != "success" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestOnWithRGBParams(t *testing.T) {
	s, fb := newTestServer()

	rec := doRequest(t, s, http.MethodGet, "/on?r=10&g=20&b=30")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	cmd := fb.lastSubmitted()
	if cmd.Color != (protocol.RGB{R: 10, G: 20, B: 30}) {
		t.Errorf("submitted color %+v, want 10,20,30", cmd.Color)
	}
}

func TestOnWithHueSat(t *testing.T) {
	s, fb := newTestServer()

	// Hue 0, full saturation, default brightness 100 is pure red.
	rec := doRequest(t, s, http.MethodGet, "/on?hue=0&sat=100")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	cmd := fb.lastSubmitted()
	if cmd.Color != (protocol.RGB{R: 255, G: 0, B: 0}) {
		t.Errorf("submitted color %+v, want 255,0,0", cmd.Color)
	}
}

func TestOnRejectsBadParams(t *testing.T) {
	tests := []string{
		"/on?brightness=loud",
		"/on?hex=xyzxyz",
		"/on?hex=ff00",
		"/on?r=1&g=2&b=nope",
		"/on?hue=red&sat=100",
		"/on?r=300&g=0&b=0", // parses but fails validation
	}
	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			s, fb := newTestServer()
			rec := doRequest(t, s, http.MethodGet, target)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
			if len(fb.submitted) != 0 {
				t.Errorf("%d commands submitted for bad request", len(fb.submitted))
			}
		})
	}
}

func TestOnQueueFullMapsTo503(t *testing.T) {
	s, fb := newTestServer()
	fb.submitErr = ble.ErrQueueFull

	rec := doRequest(t, s, http.MethodGet, "/on?hex=ff0000")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestOffSubmitsPowerOff(t *testing.T) {
	s, fb := newTestServer()

	rec := doRequest(t, s, http.MethodGet, "/off")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cmd := fb.lastSubmitted(); cmd == nil || cmd.Kind != protocol.KindPowerOff {
		t.Errorf("submitted %+v, want power_off", cmd)
	}
}

func TestHexStatusTracksState(t *testing.T) {
	s, _ := newTestServer()

	doRequest(t, s, http.MethodGet, "/on?hex=12ab34")
	rec := doRequest(t, s, http.MethodGet, "/hex_status")
	if got := rec.Body.String(); got != "12ab34" {
		t.Errorf("hex_status = %q, want %q", got, "12ab34")
	}

	doRequest(t, s, http.MethodGet, "/off")
	rec = doRequest(t, s, http.MethodGet, "/hex_status")
	if got := rec.Body.String(); got != "000000" {
		t.Errorf("hex_status after off = %q, want 000000", got)
	}
}

func TestStatusReportsBridgeHealth(t *testing.T) {
	s, fb := newTestServer()
	fb.status.QueueLen = 3

	rec := doRequest(t, s, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["is_connected"] != true {
		t.Errorf("is_connected = %v, want true", body["is_connected"])
	}
	if body["queue_len"] != float64(3) {
		t.Errorf("queue_len = %v, want 3", body["queue_len"])
	}
	if body["device_address"] != "DD:DA:EC:63:26:E0" {
		t.Errorf("device_address = %v", body["device_address"])
	}
	if body["state"] != "connected" {
		t.Errorf("state = %v, want connected", body["state"])
	}
}

func TestDiscoverFiltersByName(t *testing.T) {
	fb := &fakeBridge{}
	scanner := &fakeScanner{devices: []ble.Device{
		{Name: "SSL-1234", Address: "AA:AA:AA:AA:AA:AA", RSSI: -40},
		{Name: "Living Room TV", Address: "BB:BB:BB:BB:BB:BB", RSSI: -60},
		{Name: "iStrip+", Address: "CC:CC:CC:CC:CC:CC", RSSI: -50},
	}}
	s := NewServer(fb, scanner)

	rec := doRequest(t, s, http.MethodGet, "/discover")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Devices []ble.Device `json:"devices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Devices) != 2 {
		t.Fatalf("got %d devices, want 2: %+v", len(body.Devices), body.Devices)
	}
	for _, d := range body.Devices {
		if d.Name == "Living Room TV" {
			t.Errorf("non-strip device %q not filtered out", d.Name)
		}
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		r, g, b int
		wantErr bool
	}{
		{"ff0000", 255, 0, 0, false},
		{"#00ff00", 0, 255, 0, false},
		{"0000FF", 0, 0, 255, false},
		{"12ab34", 18, 171, 52, false},
		{"ff00", 0, 0, 0, true},
		{"zzzzzz", 0, 0, 0, true},
		{"", 0, 0, 0, true},
	}
	for _, tt := range tests {
		r, g, b, err := parseHexColor(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseHexColor(%q) accepted invalid input", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseHexColor(%q) error = %v", tt.in, err)
			continue
		}
		if r != tt.r || g != tt.g || b != tt.b {
			t.Errorf("parseHexColor(%q) = %d,%d,%d, want %d,%d,%d", tt.in, r, g, b, tt.r, tt.g, tt.b)
		}
	}
}

func TestHSVToRGB(t *testing.T) {
	tests := []struct {
		h, s, v float64
		r, g, b int
	}{
		{0, 1, 1, 255, 0, 0},       // red
		{1.0 / 3, 1, 1, 0, 255, 0}, // green
		{2.0 / 3, 1, 1, 0, 0, 255}, // blue
		{0, 0, 1, 255, 255, 255},   // white
		{0, 0, 0, 0, 0, 0},         // black
		{0, 1, 0.5, 128, 0, 0},     // half-bright red
	}
	for _, tt := range tests {
		r, g, b := hsvToRGB(tt.h, tt.s, tt.v)
		if r != tt.r || g != tt.g || b != tt.b {
			t.Errorf("hsvToRGB(%v,%v,%v) = %d,%d,%d, want %d,%d,%d", tt.h, tt.s, tt.v, r, g, b, tt.r, tt.g, tt.b)
		}
	}
}
