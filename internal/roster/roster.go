package roster

import (
	"sync"
	"time"

	"github.com/yegors/skytrail/internal/flightapi"
)

// AircraftState is the latest known state of one tracked aircraft
type AircraftState struct {
	ID            string   `json:"id"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Heading       float64  `json:"heading"`
	Callsign      string   `json:"callsign"`
	OriginCountry string   `json:"origin_country"`
}

// HasPosition reports whether both coordinates are known
func (a AircraftState) HasPosition() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// FromFlight converts a roster endpoint record
func FromFlight(f flightapi.Flight) AircraftState {
	return AircraftState{
		ID:            f.ICAO24,
		Latitude:      copyFloat(f.Latitude),
		Longitude:     copyFloat(f.Longitude),
		Heading:       f.Heading,
		Callsign:      f.Callsign,
		OriginCountry: f.OriginCountry,
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func (a AircraftState) clone() AircraftState {
	a.Latitude = copyFloat(a.Latitude)
	a.Longitude = copyFloat(a.Longitude)
	return a
}

// Roster is the set of currently tracked aircraft keyed by id.
// It is only ever replaced as a whole.
type Roster struct {
	mu          sync.RWMutex
	byID        map[string]AircraftState
	order       []string
	lastSuccess time.Time
}

// New creates an empty roster
func New() *Roster {
	return &Roster{
		byID: make(map[string]AircraftState),
	}
}

// Replace swaps the whole roster for the given aircraft.
// Iteration order follows the input; a duplicated id keeps its first position and its last value.
func (r *Roster) Replace(aircraft []AircraftState, at time.Time) {
	byID := make(map[string]AircraftState, len(aircraft))
	order := make([]string, 0, len(aircraft))
	for _, a := range aircraft {
		if _, seen := byID[a.ID]; !seen {
			order = append(order, a.ID)
		}
		byID[a.ID] = a.clone()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = byID
	r.order = order
	r.lastSuccess = at
}

// Snapshot returns a copy of all aircraft in stable order
func (r *Roster) Snapshot() []AircraftState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AircraftState, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].clone())
	}
	return out
}

// Get returns the aircraft with the given id
func (r *Roster) Get(id string) (AircraftState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return AircraftState{}, false
	}
	return a.clone(), true
}

// Len returns the number of aircraft
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// LastSuccess returns when the roster was last replaced; zero if never
func (r *Roster) LastSuccess() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSuccess
}
