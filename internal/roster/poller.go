package roster

import (
	"context"
	"sync"
	"time"

	"github.com/yegors/skytrail/internal/flightapi"
	"github.com/yegors/skytrail/pkg/logger"
)

// RefreshInterval is the fixed delay between roster refreshes
const RefreshInterval = 30 * time.Second

// Fetcher retrieves the full roster from the backend
type Fetcher interface {
	FetchRoster(ctx context.Context) ([]flightapi.Flight, error)
}

// UpdateHandler is called with a fresh snapshot after every successful refresh
type UpdateHandler func(aircraft []AircraftState)

// Poller keeps a Roster in sync with the backend
type Poller struct {
	fetcher  Fetcher
	roster   *Roster
	interval time.Duration
	logger   *logger.Logger
	now      func() time.Time
	onUpdate UpdateHandler
}

// NewPoller creates a poller that owns the given roster
func NewPoller(fetcher Fetcher, roster *Roster, log *logger.Logger) *Poller {
	return &Poller{
		fetcher:  fetcher,
		roster:   roster,
		interval: RefreshInterval,
		logger:   log.Named("roster"),
		now:      time.Now,
	}
}

// SetUpdateHandler registers the update callback. Call before Start.
func (p *Poller) SetUpdateHandler(h UpdateHandler) {
	p.onUpdate = h
}

// Roster returns the roster owned by this poller
func (p *Poller) Roster() *Roster {
	return p.roster
}

// Refresh performs one roster fetch. On success the roster is replaced wholesale;
// on any failure it is left untouched and the error is returned for logging only.
func (p *Poller) Refresh(ctx context.Context) error {
	start := p.now()

	flights, err := p.fetcher.FetchRoster(ctx)
	if err != nil {
		return err
	}

	// Teardown happened while the request was in flight
	if err := ctx.Err(); err != nil {
		return err
	}

	aircraft := make([]AircraftState, 0, len(flights))
	for _, f := range flights {
		aircraft = append(aircraft, FromFlight(f))
	}
	p.roster.Replace(aircraft, p.now())

	p.logger.Debug("Roster replaced",
		logger.Int("aircraft_count", p.roster.Len()),
		logger.Duration("duration", p.now().Sub(start)))

	if p.onUpdate != nil {
		p.onUpdate(p.roster.Snapshot())
	}
	return nil
}

// Handle controls a running polling schedule
type Handle struct {
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Stop cancels the schedule and waits for in-flight refreshes to finish.
// No refresh runs after Stop returns. Safe to call more than once.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()
		h.wg.Wait()
	})
}

// Start refreshes once immediately and then on every interval tick until the
// handle is stopped or ctx is cancelled. Ticks do not wait for earlier refreshes,
// so the response that completes last wins.
func (p *Poller) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel}

	p.logger.Info("Starting roster polling", logger.Duration("interval", p.interval))

	h.wg.Add(1)
	go p.pollLoop(ctx, h)

	return h
}

func (p *Poller) pollLoop(ctx context.Context, h *Handle) {
	defer h.wg.Done()

	p.spawnRefresh(ctx, h)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.spawnRefresh(ctx, h)
		case <-ctx.Done():
			p.logger.Info("Roster polling stopped")
			return
		}
	}
}

func (p *Poller) spawnRefresh(ctx context.Context, h *Handle) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			// Last known roster stays visible; the next tick retries
			p.logger.Warn("Roster refresh failed", logger.Error(err))
		}
	}()
}
