package detail

import (
	"context"
	"sync"

	"github.com/yegors/skytrail/internal/flightapi"
	"github.com/yegors/skytrail/pkg/logger"
)

// Phase is the lifecycle stage of the current detail lookup
type Phase int

const (
	Idle Phase = iota
	Loading
	Loaded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Display strings for the non-loaded phases
const (
	IdleDeparture    = "Click to load..."
	LoadingDeparture = "Fetching..."
	ErrorText        = flightapi.DetailError
)

// State is the detail lookup for the currently selected aircraft
type State struct {
	Phase      Phase  `json:"phase"`
	AircraftID string `json:"aircraft_id,omitempty"`
	Departure  string `json:"departure"`
	Arrival    string `json:"arrival"`
	Generation uint64 `json:"generation"`
}

// Fetcher retrieves route details for one aircraft
type Fetcher interface {
	FetchDetails(ctx context.Context, icao24 string) (*flightapi.Details, error)
}

// Controller owns the single detail lookup. Each Select supersedes every earlier one:
// results are tagged with the generation they were issued under and applied only if
// that generation is still current.
type Controller struct {
	fetcher Fetcher
	logger  *logger.Logger

	mu    sync.Mutex
	state State
}

// NewController creates a controller in the Idle phase
func NewController(fetcher Fetcher, log *logger.Logger) *Controller {
	return &Controller{
		fetcher: fetcher,
		logger:  log.Named("detail"),
		state: State{
			Phase:     Idle,
			Departure: IdleDeparture,
		},
	}
}

// State returns a copy of the current lookup state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Select starts a lookup for the given aircraft. The state is Loading when Select returns.
// The returned channel is closed once this lookup has resolved, whether its result was
// applied or discarded as superseded. Earlier in-flight lookups are not cancelled.
func (c *Controller) Select(ctx context.Context, aircraftID string) <-chan struct{} {
	c.mu.Lock()
	gen := c.state.Generation + 1
	c.state = State{
		Phase:      Loading,
		AircraftID: aircraftID,
		Departure:  LoadingDeparture,
		Arrival:    "",
		Generation: gen,
	}
	c.mu.Unlock()

	c.logger.Debug("Detail lookup started",
		logger.String("icao24", aircraftID),
		logger.Int64("generation", int64(gen)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		details, err := c.fetcher.FetchDetails(ctx, aircraftID)
		c.resolve(gen, aircraftID, details, err)
	}()
	return done
}

func (c *Controller) resolve(gen uint64, aircraftID string, details *flightapi.Details, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Generation != gen {
		c.logger.Debug("Discarding superseded detail result",
			logger.String("icao24", aircraftID),
			logger.Int64("generation", int64(gen)),
			logger.Int64("current_generation", int64(c.state.Generation)))
		return
	}

	if err != nil || details == nil {
		c.logger.Warn("Detail lookup failed", logger.String("icao24", aircraftID), logger.Error(err))
		c.state.Phase = Failed
		c.state.Departure = ErrorText
		c.state.Arrival = ErrorText
		return
	}

	c.state.Phase = Loaded
	c.state.Departure = details.Departure
	c.state.Arrival = details.Arrival
}
