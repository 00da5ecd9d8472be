package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v3"

	"github.com/sweeney/sensor-dashboard/internal/dashboard"
	"github.com/sweeney/sensor-dashboard/internal/telemetry"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
}

type cardsResponse struct {
	Time     string              `json:"time"`
	Sections []dashboard.Section `json:"sections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSensors handles GET /api/sensors.
func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	set, err := s.telemetry.Sensors(r.Context())
	if err != nil {
		s.fail(w, r, telemetry.SectionSensors, err)
		return
	}
	respondJSON(w, http.StatusOK, set)
}

// handleSystemMetrics handles GET /api/system-metrics.
func (s *Server) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	set, err := s.telemetry.SystemMetrics(r.Context())
	if err != nil {
		s.fail(w, r, telemetry.SectionSystemMetrics, err)
		return
	}
	respondJSON(w, http.StatusOK, set)
}

// handleUPS handles GET /api/ups.
func (s *Server) handleUPS(w http.ResponseWriter, r *http.Request) {
	set, err := s.telemetry.UPS(r.Context())
	if err != nil {
		s.fail(w, r, telemetry.SectionUPS, err)
		return
	}
	respondJSON(w, http.StatusOK, set)
}

// handleCards handles GET /api/cards: every section rendered for display.
// Section failures are part of the payload, so this always answers 200.
func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	snap := s.telemetry.Snapshot(r.Context())
	respondJSON(w, http.StatusOK, cardsResponse{
		Time:     snap.Time.UTC().Format(time.RFC3339),
		Sections: s.rules.Build(snap),
	})
}

// fail answers with the section's public message. The cause has already
// been logged by the telemetry service; only the section is attached to the
// request log here.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, section telemetry.SectionName, err error) {
	httplog.SetAttrs(r.Context(), slog.String("section", string(section)))
	status := http.StatusInternalServerError
	if errors.Is(err, telemetry.ErrUPSDisabled) {
		status = http.StatusNotFound
	}
	respondJSONError(w, status, telemetry.PublicMessage(section, err))
}

// respondJSON sends a JSON response. The body is encoded before the header
// goes out so an encoding failure can still become a 500.
func respondJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("encoding response", "err", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"Internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n')) //nolint:errcheck
}

// respondJSONError sends a JSON error response
func respondJSONError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
