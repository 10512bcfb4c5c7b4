package flightapi

// Roster envelope status markers. Only StatusSuccess carries usable data.
const (
	StatusSuccess   = "success"
	StatusEmpty     = "empty"
	StatusLimited   = "limited"
	StatusAuthError = "auth_error"
	StatusError     = "error"
)

// Fixed display strings used by the detail endpoint
const (
	DetailNotAvailable = "N/A"
	DetailUnknown      = "Unknown"
	DetailInFlight     = "In Flight"
	DetailError        = "Error"
)

// Flight is one aircraft record of the roster endpoint
type Flight struct {
	ICAO24        string   `json:"icao24"`
	Callsign      string   `json:"callsign"`
	OriginCountry string   `json:"origin_country"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Heading       float64  `json:"heading"`
}

// RosterResponse is the body of GET /api/flights
type RosterResponse struct {
	Status string   `json:"status"`
	Data   []Flight `json:"data"`
}

// Details is the body of GET /api/flights/{icao24}
type Details struct {
	Departure string `json:"departure"`
	Arrival   string `json:"arrival"`
}

// rosterPayload distinguishes a missing or null data field from an empty one
type rosterPayload struct {
	Status *string   `json:"status"`
	Data   *[]Flight `json:"data"`
}
