// Package httpapi exposes the bridge over HTTP for the Homebridge plugin.
// It parses inbound requests into logical commands, tracks the last
// requested light state, and forwards everything else to the bridge.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chaz8081/istrip-bridge/internal/ble"
	"github.com/chaz8081/istrip-bridge/internal/ble/protocol"
	"github.com/chaz8081/istrip-bridge/internal/bridge"
)

// scanTimeout bounds the /discover BLE scan.
const scanTimeout = 5 * time.Second

// deviceNamePrefixes match the advertising names iStrip+ strips use.
var deviceNamePrefixes = []string{"SSL-", "YH-", "iStrip"}

// Controller is the bridge surface the HTTP layer needs.
type Controller interface {
	Submit(cmd *protocol.Command) error
	Status() bridge.Status
}

// Scanner discovers nearby peripherals for /discover.
type Scanner interface {
	Scan(ctx context.Context) ([]ble.Device, error)
}

// lightState is the last state requested through the API. The strip has no
// readable state, so this is the source of truth for /status and for
// re-sending color on brightness changes.
type lightState struct {
	Power      bool
	R, G, B    int
	Brightness int
}

// Server handles the HTTP API.
type Server struct {
	ctrl    Controller
	scanner Scanner

	mu    sync.Mutex
	state lightState
}

// NewServer creates the HTTP API around a bridge and a scanner.
func NewServer(ctrl Controller, scanner Scanner) *Server {
	return &Server{
		ctrl:    ctrl,
		scanner: scanner,
		state:   lightState{Power: true, R: 255, G: 255, B: 255, Brightness: 100},
	}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/on", s.handleOn)
	mux.HandleFunc("/off", s.handleOff)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/hex_status", s.handleHexStatus)
	mux.HandleFunc("/discover", s.handleDiscover)
	return mux
}

// handleOn turns the strip on, optionally updating color (r/g/b, hex, or
// hue/sat) and brightness.
func (s *Server) handleOn(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	st := s.state
	st.Power = true

	q := r.URL.Query()
	if v := q.Get("brightness"); v != "" {
		b, err := strconv.Atoi(v)
		if err != nil {
			s.mu.Unlock()
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid brightness %q", v))
			return
		}
		st.Brightness = b
	}

	switch {
	case q.Get("hex") != "":
		rr, gg, bb, err := parseHexColor(q.Get("hex"))
		if err != nil {
			s.mu.Unlock()
			writeError(w, http.StatusBadRequest, err)
			return
		}
		st.R, st.G, st.B = rr, gg, bb
	case q.Get("r") != "" && q.Get("g") != "" && q.Get("b") != "":
		var comps [3]int
		for i, name := range []string{"r", "g", "b"} {
			v, err := strconv.Atoi(q.Get(name))
			if err != nil {
				s.mu.Unlock()
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid %s %q", name, q.Get(name)))
				return
			}
			comps[i] = v
		}
		st.R, st.G, st.B = comps[0], comps[1], comps[2]
	case q.Get("hue") != "" && q.Get("sat") != "":
		hue, err1 := strconv.ParseFloat(q.Get("hue"), 64)
		sat, err2 := strconv.ParseFloat(q.Get("sat"), 64)
		if err1 != nil || err2 != nil {
			s.mu.Unlock()
			writeError(w, http.StatusBadRequest, errors.New("invalid hue/sat"))
			return
		}
		st.R, st.G, st.B = hsvToRGB(hue/360.0, sat/100.0, float64(st.Brightness)/100.0)
	}

	cmd := protocol.SetColorBrightness(st.R, st.G, st.B, st.Brightness)
	if err := s.ctrl.Submit(cmd); err != nil {
		s.mu.Unlock()
		writeSubmitError(w, err)
		return
	}
	s.state = st
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"r":      st.R, "g": st.G, "b": st.B,
		"brightness": st.Brightness,
	})
}

func (s *Server) handleOff(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Submit(protocol.PowerOff()); err != nil {
		writeSubmitError(w, err)
		return
	}
	s.mu.Lock()
	s.state.Power = false
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	bs := s.ctrl.Status()

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"power":  st.Power,
		"r":      st.R, "g": st.G, "b": st.B,
		"brightness":     st.Brightness,
		"device_address": bs.Address,
		"is_connected":   bs.Connected,
		"reachable":      bs.Reachable,
		"queue_len":      bs.QueueLen,
		"state":          bs.State.String(),
	})
}

// handleHexStatus returns the current color as a bare hex string, the format
// the Homebridge plugin polls.
func (s *Server) handleHexStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !st.Power {
		fmt.Fprint(w, "000000")
		return
	}
	fmt.Fprintf(w, "%02x%02x%02x", st.R, st.G, st.B)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), scanTimeout)
	defer cancel()

	devices, err := s.scanner.Scan(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	matches := make([]ble.Device, 0)
	for _, d := range devices {
		for _, prefix := range deviceNamePrefixes {
			if strings.Contains(d.Name, prefix) {
				matches = append(matches, d)
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": matches})
}

// writeSubmitError maps bridge submit errors onto HTTP statuses:
// invalid parameters are the client's fault, a full queue or a bridge in
// shutdown is service unavailability.
func writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, protocol.ErrUnsupportedCommand):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ble.ErrQueueFull), errors.Is(err, ble.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	slog.Warn("[HTTP] request failed", "status", status, "error", err)
	writeJSON(w, status, map[string]any{"status": "error", "message": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// parseHexColor parses "#rrggbb" or "rrggbb".
func parseHexColor(s string) (r, g, b int, err error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", s)
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), nil
}

// hsvToRGB converts h, s, v in [0,1] to 8-bit RGB components.
func hsvToRGB(h, s, v float64) (int, int, int) {
	i := int(math.Floor(h*6)) % 6
	f := h*6 - math.Floor(h*6)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch i {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return int(math.Round(r * 255)), int(math.Round(g * 255)), int(math.Round(b * 255))
}
