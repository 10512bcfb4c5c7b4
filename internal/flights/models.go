package flights

import (
	"context"
	"time"

	"github.com/yegors/skytrail/internal/opensky"
	"github.com/yegors/skytrail/internal/websocket"
)

// MessageTypeRosterUpdate is pushed to websocket clients after every successful upstream fetch
const MessageTypeRosterUpdate = "roster_update"

// Upstream is the flight data source the service proxies
type Upstream interface {
	Token(ctx context.Context) (string, error)
	States(ctx context.Context, token string) ([]opensky.StateVector, error)
	FlightsByAircraft(ctx context.Context, token, icao24 string, begin, end time.Time) ([]opensky.Flight, error)
}

// PollRecord is the outcome of one upstream roster fetch
type PollRecord struct {
	ID            int64         `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	Status        string        `json:"status"`
	AircraftCount int           `json:"aircraft_count"`
	Duration      time.Duration `json:"duration_ns"`
	Error         string        `json:"error,omitempty"`
}

// PollLog persists poll outcomes
type PollLog interface {
	RecordPoll(rec PollRecord) (int64, error)
	RecentPolls(limit int) ([]PollRecord, error)
}

// WebSocketServer defines the interface for a WebSocket server
type WebSocketServer interface {
	Broadcast(message *websocket.Message)
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	LastFetchTime   time.Time    `json:"last_fetch_time"`
	LastFetchStatus string       `json:"last_fetch_status"`
	LastSuccessTime time.Time    `json:"last_success_time"`
	AircraftCount   int          `json:"aircraft_count"`
	RecentPolls     []PollRecord `json:"recent_polls,omitempty"`
}
