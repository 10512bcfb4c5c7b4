package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yegors/skytrail/internal/flightapi"
	"github.com/yegors/skytrail/internal/flights"
	"github.com/yegors/skytrail/pkg/logger"
)

type stubFlights struct {
	roster    flightapi.RosterResponse
	details   map[string]flightapi.Details
	status    flights.StatusResponse
	lastQuery string
}

func (s *stubFlights) Roster(ctx context.Context) flightapi.RosterResponse { return s.roster }

func (s *stubFlights) Details(ctx context.Context, icao24 string) flightapi.Details {
	s.lastQuery = icao24
	if d, ok := s.details[icao24]; ok {
		return d
	}
	return flightapi.Details{Departure: flightapi.DetailNotAvailable, Arrival: flightapi.DetailNotAvailable}
}

func (s *stubFlights) Status() flights.StatusResponse { return s.status }

func floatPtr(v float64) *float64 { return &v }

func newTestRouter(t *testing.T, svc FlightsService, staticDir string) http.Handler {
	t.Helper()
	log := logger.NewNop()
	h := NewHandler(svc, "test", log)
	ws := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }
	return NewRouter(h, ws, RouterConfig{
		AllowedOrigins: []string{"http://localhost:5173"},
		StaticDir:      staticDir,
	}, log).Routes()
}

func TestGetFlights(t *testing.T) {
	svc := &stubFlights{roster: flightapi.RosterResponse{
		Status: flightapi.StatusSuccess,
		Data: []flightapi.Flight{
			{ICAO24: "abc123", Callsign: "JAL1", OriginCountry: "Japan", Latitude: floatPtr(35.5), Longitude: floatPtr(139.7), Heading: 87.5},
			{ICAO24: "def456", Callsign: "N/A", OriginCountry: "France"},
		},
	}}
	router := newTestRouter(t, svc, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/flights", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Unexpected content type: %s", ct)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	want := map[string]any{
		"status": "success",
		"data": []any{
			map[string]any{"icao24": "abc123", "callsign": "JAL1", "origin_country": "Japan", "latitude": 35.5, "longitude": 139.7, "heading": 87.5},
			map[string]any{"icao24": "def456", "callsign": "N/A", "origin_country": "France", "latitude": nil, "longitude": nil, "heading": 0.0},
		},
	}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("Body mismatch (-want +got):\n%s", diff)
	}
}

func TestGetFlightDetails(t *testing.T) {
	svc := &stubFlights{details: map[string]flightapi.Details{
		"abc123": {Departure: "RJTT", Arrival: "In Flight"},
	}}
	router := newTestRouter(t, svc, "")

	tests := []struct {
		path string
		want flightapi.Details
	}{
		{"/api/flights/abc123", flightapi.Details{Departure: "RJTT", Arrival: "In Flight"}},
		{"/api/flights/zzz999", flightapi.Details{Departure: "N/A", Arrival: "N/A"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d", rec.Code)
			}
			var got flightapi.Details
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("Invalid JSON: %v", err)
			}
			if got != tt.want {
				t.Errorf("Got %+v, want %+v", got, tt.want)
			}
			if !strings.HasSuffix(tt.path, svc.lastQuery) {
				t.Errorf("Handler looked up %q", svc.lastQuery)
			}
		})
	}
}

func TestStatusAndHealth(t *testing.T) {
	svc := &stubFlights{status: flights.StatusResponse{
		LastFetchStatus: flightapi.StatusLimited,
		AircraftCount:   12,
		RecentPolls:     []flights.PollRecord{{ID: 7, Status: flightapi.StatusLimited}},
	}}
	router := newTestRouter(t, svc, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var status flights.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if status.LastFetchStatus != "limited" || status.AircraftCount != 12 || len(status.RecentPolls) != 1 || status.RecentPolls[0].ID != 7 {
		t.Errorf("Unexpected status: %+v", status)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if health["status"] != "ok" || health["version"] != "test" || health["aircraft_count"] != 12.0 {
		t.Errorf("Unexpected health: %+v", health)
	}
}

func TestCORS(t *testing.T) {
	router := newTestRouter(t, &stubFlights{roster: flightapi.RosterResponse{Status: "empty", Data: []flightapi.Flight{}}}, "")

	t.Run("Allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/flights", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("Unexpected allow origin: %q", got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Expected credentials allowed, got %q", got)
		}
	})

	t.Run("Other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/flights", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Unexpected allow origin: %q", got)
		}
	})
}

func TestWebSocketRoute(t *testing.T) {
	router := newTestRouter(t, &stubFlights{}, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected websocket handler to be mounted, got %d", rec.Code)
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>map</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "js"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "js", "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}
	router := newTestRouter(t, &stubFlights{}, dir)

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/", http.StatusOK, "<html>map</html>"},
		{"/js/app.js", http.StatusOK, "console.log(1)"},
		{"/missing.css", http.StatusNotFound, ""},
		{"/js", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.code {
				t.Fatalf("Expected %d, got %d", tt.code, rec.Code)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Errorf("Unexpected body: %q", rec.Body.String())
			}
			if tt.code == http.StatusOK && rec.Header().Get("Cache-Control") == "" {
				t.Errorf("Expected no-cache headers")
			}
		})
	}
}
