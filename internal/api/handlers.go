package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/skytrail/internal/flightapi"
	"github.com/yegors/skytrail/internal/flights"
	"github.com/yegors/skytrail/pkg/logger"
)

// FlightsService is what the handlers need from the flights backend
type FlightsService interface {
	Roster(ctx context.Context) flightapi.RosterResponse
	Details(ctx context.Context, icao24 string) flightapi.Details
	Status() flights.StatusResponse
}

// Handler contains the API handlers
type Handler struct {
	flights   FlightsService
	logger    *logger.Logger
	startedAt time.Time
	version   string
}

// NewHandler creates a new API handler
func NewHandler(flightsService FlightsService, version string, log *logger.Logger) *Handler {
	return &Handler{
		flights:   flightsService,
		logger:    log.Named("api-handler"),
		startedAt: time.Now(),
		version:   version,
	}
}

// GetFlights returns the latest roster envelope
func (h *Handler) GetFlights(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	resp := h.flights.Roster(r.Context())

	h.logger.Debug("Served roster",
		logger.String("status", resp.Status),
		logger.Int("aircraft_count", len(resp.Data)),
		logger.Duration("duration", time.Since(start)))

	WriteJSON(w, http.StatusOK, resp)
}

// GetFlightDetails returns the departure and arrival airports of one aircraft
func (h *Handler) GetFlightDetails(w http.ResponseWriter, r *http.Request) {
	icao24 := chi.URLParam(r, "icao24")
	if icao24 == "" {
		http.Error(w, "Missing aircraft ID", http.StatusBadRequest)
		return
	}

	WriteJSON(w, http.StatusOK, h.flights.Details(r.Context(), icao24))
}

// GetStatus returns the latest fetch outcome and recent poll history
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.flights.Status())
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := h.flights.Status()

	response := map[string]interface{}{
		"status":            "ok",
		"version":           h.version,
		"uptime_seconds":    int64(time.Since(h.startedAt).Seconds()),
		"last_fetch_status": status.LastFetchStatus,
		"aircraft_count":    status.AircraftCount,
	}

	WriteJSON(w, http.StatusOK, response)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
