package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/yegors/skytrail/internal/detail"
	"github.com/yegors/skytrail/internal/geo"
	"github.com/yegors/skytrail/internal/roster"
)

// FallbackCountryCode is used for origin countries without a flag mapping
const FallbackCountryCode = "un"

const flagURLFormat = "https://flagcdn.com/w40/%s.png"

var countryCodes = map[string]string{
	"United States":  "us",
	"United Kingdom": "gb",
	"Germany":        "de",
	"France":         "fr",
	"Canada":         "ca",
	"China":          "cn",
	"Japan":          "jp",
	"Malaysia":       "my",
	"Singapore":      "sg",
	"Australia":      "au",
}

// CountryCode returns the flag code for an origin country
func CountryCode(country string) string {
	if code, ok := countryCodes[country]; ok {
		return code
	}
	return FallbackCountryCode
}

// FlagURL returns the flag image URL for an origin country
func FlagURL(country string) string {
	return fmt.Sprintf(flagURLFormat, strings.ToLower(CountryCode(country)))
}

// Popup is the content shown when a marker is opened
type Popup struct {
	Callsign        string  `json:"callsign"`
	Heading         float64 `json:"heading"`
	MagneticHeading float64 `json:"magnetic_heading"`
	Departure       string  `json:"departure"`
	Arrival         string  `json:"arrival"`
	OriginCountry   string  `json:"origin_country"`
	FlagURL         string  `json:"flag_url"`
	Selected        bool    `json:"selected"`
}

// Marker is everything needed to draw one aircraft
type Marker struct {
	ID       string       `json:"id"`
	Position geo.Point    `json:"position"`
	Rotation float64      `json:"rotation"`
	Trail    [2]geo.Point `json:"trail"`
	Popup    Popup        `json:"popup"`
}

// Project turns the roster and the current detail lookup into markers.
// Aircraft without both coordinates are skipped. Every popup carries the
// current lookup's display strings.
func Project(aircraft []roster.AircraftState, lookup detail.State, now time.Time) []Marker {
	markers := make([]Marker, 0, len(aircraft))
	for _, a := range aircraft {
		if !a.HasPosition() {
			continue
		}

		pos := geo.Point{Lat: *a.Latitude, Lng: *a.Longitude}
		markers = append(markers, Marker{
			ID:       a.ID,
			Position: pos,
			Rotation: a.Heading,
			Trail:    [2]geo.Point{pos, geo.TrailEndpoint(pos.Lat, pos.Lng, a.Heading)},
			Popup: Popup{
				Callsign:        a.Callsign,
				Heading:         a.Heading,
				MagneticHeading: geo.MagneticHeading(a.Heading, pos.Lat, pos.Lng, now),
				Departure:       lookup.Departure,
				Arrival:         lookup.Arrival,
				OriginCountry:   a.OriginCountry,
				FlagURL:         FlagURL(a.OriginCountry),
				Selected:        lookup.AircraftID != "" && lookup.AircraftID == a.ID,
			},
		})
	}
	return markers
}
