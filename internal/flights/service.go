package flights

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yegors/skytrail/internal/flightapi"
	"github.com/yegors/skytrail/internal/opensky"
	"github.com/yegors/skytrail/internal/websocket"
	"github.com/yegors/skytrail/pkg/logger"
)

// Options configures the flights service
type Options struct {
	FetchInterval  time.Duration
	MaxFlights     int
	DetailLookback time.Duration
	StatusHistory  int
}

// Service fetches the roster from upstream on an interval, caches the latest
// envelope and answers detail lookups on demand
type Service struct {
	upstream Upstream
	pollLog  PollLog
	wsServer WebSocketServer
	opts     Options
	logger   *logger.Logger
	now      func() time.Time

	mu              sync.RWMutex
	latest          *flightapi.RosterResponse
	lastFetchTime   time.Time
	lastFetchStatus string
	lastSuccessTime time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewService creates a new flights service. pollLog and wsServer may be nil.
func NewService(upstream Upstream, pollLog PollLog, wsServer WebSocketServer, opts Options, log *logger.Logger) *Service {
	if opts.FetchInterval <= 0 {
		opts.FetchInterval = 30 * time.Second
	}
	if opts.MaxFlights <= 0 {
		opts.MaxFlights = 50
	}
	if opts.DetailLookback <= 0 {
		opts.DetailLookback = 24 * time.Hour
	}

	return &Service{
		upstream: upstream,
		pollLog:  pollLog,
		wsServer: wsServer,
		opts:     opts,
		logger:   log.Named("flights"),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start fetches once and then keeps the cached roster fresh in the background
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting flights service",
		logger.Duration("fetch_interval", s.opts.FetchInterval),
		logger.Int("max_flights", s.opts.MaxFlights),
	)

	s.refresh(ctx)

	s.wg.Add(1)
	go s.fetchLoop(ctx)

	return nil
}

// Stop stops the background fetching
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping flights service")
		close(s.stopCh)
		s.wg.Wait()
		s.logger.Info("Flights service stopped")
	})
}

func (s *Service) fetchLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.FetchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refresh(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// refresh fetches a new envelope, caches it, records it and pushes it to websocket clients
func (s *Service) refresh(ctx context.Context) flightapi.RosterResponse {
	start := s.now()
	resp, fetchErr := s.FetchRoster(ctx)
	finished := s.now()

	s.mu.Lock()
	s.lastFetchTime = finished
	s.lastFetchStatus = resp.Status
	// A failed fetch keeps serving the last good roster
	if resp.Status == flightapi.StatusSuccess || s.latest == nil || s.latest.Status != flightapi.StatusSuccess {
		cached := resp
		s.latest = &cached
	}
	if resp.Status == flightapi.StatusSuccess {
		s.lastSuccessTime = finished
	}
	s.mu.Unlock()

	if s.pollLog != nil {
		rec := PollRecord{
			Timestamp:     finished,
			Status:        resp.Status,
			AircraftCount: len(resp.Data),
			Duration:      finished.Sub(start),
		}
		if fetchErr != nil {
			rec.Error = fetchErr.Error()
		}
		if _, err := s.pollLog.RecordPoll(rec); err != nil {
			s.logger.Error("Failed to record poll", logger.Error(err))
		}
	}

	if resp.Status == flightapi.StatusSuccess && s.wsServer != nil {
		s.wsServer.Broadcast(rosterMessage(resp))
	}

	s.logger.Debug("Roster refreshed",
		logger.String("status", resp.Status),
		logger.Int("aircraft_count", len(resp.Data)),
		logger.Duration("duration", finished.Sub(start)))

	return resp
}

// FetchRoster builds a roster envelope straight from upstream. The returned
// error explains a non-success status and is only used for logging.
func (s *Service) FetchRoster(ctx context.Context) (flightapi.RosterResponse, error) {
	token, err := s.upstream.Token(ctx)
	if err != nil {
		s.logger.Warn("Authentication error", logger.Error(err))
		return envelope(flightapi.StatusAuthError), err
	}

	states, err := s.upstream.States(ctx, token)
	if err != nil {
		if opensky.IsRateLimited(err) {
			return envelope(flightapi.StatusLimited), err
		}
		s.logger.Warn("Upstream roster fetch failed", logger.Error(err))
		return envelope(flightapi.StatusError), err
	}

	if len(states) == 0 {
		return envelope(flightapi.StatusEmpty), nil
	}

	if len(states) > s.opts.MaxFlights {
		states = states[:s.opts.MaxFlights]
	}

	data := make([]flightapi.Flight, 0, len(states))
	for _, sv := range states {
		callsign := "N/A"
		if sv.Callsign != nil && *sv.Callsign != "" {
			callsign = strings.TrimSpace(*sv.Callsign)
		}
		heading := 0.0
		if sv.TrueTrack != nil {
			heading = *sv.TrueTrack
		}
		data = append(data, flightapi.Flight{
			ICAO24:        sv.ICAO24,
			Callsign:      callsign,
			OriginCountry: sv.OriginCountry,
			Latitude:      sv.Latitude,
			Longitude:     sv.Longitude,
			Heading:       heading,
		})
	}

	return flightapi.RosterResponse{Status: flightapi.StatusSuccess, Data: data}, nil
}

// Roster returns the cached envelope, fetching on demand when nothing is cached yet.
// The on-demand fetch is cached for everyone, so it ignores the caller's cancellation.
func (s *Service) Roster(ctx context.Context) flightapi.RosterResponse {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest != nil {
		return *latest
	}
	return s.refresh(context.WithoutCancel(ctx))
}

// Details looks up the most recent route of one aircraft
func (s *Service) Details(ctx context.Context, icao24 string) flightapi.Details {
	token, err := s.upstream.Token(ctx)
	if err != nil {
		return flightapi.Details{Departure: flightapi.DetailNotAvailable, Arrival: flightapi.DetailNotAvailable}
	}

	end := s.now()
	begin := end.Add(-s.opts.DetailLookback)

	flights, err := s.upstream.FlightsByAircraft(ctx, token, icao24, begin, end)
	if err != nil {
		if opensky.IsStatus(err) {
			return flightapi.Details{Departure: flightapi.DetailNotAvailable, Arrival: flightapi.DetailNotAvailable}
		}
		s.logger.Warn("Detail lookup failed", logger.String("icao24", icao24), logger.Error(err))
		return flightapi.Details{Departure: flightapi.DetailError, Arrival: flightapi.DetailError}
	}

	if len(flights) == 0 {
		return flightapi.Details{Departure: flightapi.DetailNotAvailable, Arrival: flightapi.DetailNotAvailable}
	}

	latest := flights[len(flights)-1]
	details := flightapi.Details{Departure: flightapi.DetailUnknown, Arrival: flightapi.DetailInFlight}
	if latest.EstDepartureAirport != nil && *latest.EstDepartureAirport != "" {
		details.Departure = *latest.EstDepartureAirport
	}
	if latest.EstArrivalAirport != nil && *latest.EstArrivalAirport != "" {
		details.Arrival = *latest.EstArrivalAirport
	}
	return details
}

// Status reports the latest fetch outcome and recent poll history
func (s *Service) Status() StatusResponse {
	s.mu.RLock()
	resp := StatusResponse{
		LastFetchTime:   s.lastFetchTime,
		LastFetchStatus: s.lastFetchStatus,
		LastSuccessTime: s.lastSuccessTime,
	}
	if s.latest != nil {
		resp.AircraftCount = len(s.latest.Data)
	}
	s.mu.RUnlock()

	if s.pollLog != nil && s.opts.StatusHistory > 0 {
		polls, err := s.pollLog.RecentPolls(s.opts.StatusHistory)
		if err != nil {
			s.logger.Error("Failed to read poll log", logger.Error(err))
		} else {
			resp.RecentPolls = polls
		}
	}
	return resp
}

func envelope(status string) flightapi.RosterResponse {
	return flightapi.RosterResponse{Status: status, Data: []flightapi.Flight{}}
}

// HandleMessage answers a client's roster_request with the cached roster
func (s *Service) HandleMessage(client *websocket.Client, messageType string, data map[string]any) error {
	if messageType != websocket.MessageTypeRosterRequest {
		s.logger.Debug("Ignoring websocket message", logger.String("type", messageType))
		return nil
	}

	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest == nil {
		return nil
	}

	if !client.SendMessage(rosterMessage(*latest)) {
		return fmt.Errorf("client send queue unavailable")
	}
	return nil
}

func rosterMessage(resp flightapi.RosterResponse) *websocket.Message {
	return &websocket.Message{
		Type: MessageTypeRosterUpdate,
		Data: map[string]any{
			"status": resp.Status,
			"data":   resp.Data,
		},
	}
}
