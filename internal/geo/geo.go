package geo

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// TrailLength is the trail length in coordinate degrees, independent of zoom and latitude
const TrailLength = 1.5

// Point is a latitude/longitude pair in degrees
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TrailEndpoint returns the point behind an aircraft along the reverse of its heading.
// This is a flat-plane approximation used for drawing only, not a navigational calculation.
func TrailEndpoint(lat, lng, heading float64) Point {
	rad := heading * math.Pi / 180
	return Point{
		Lat: lat - math.Cos(rad)*TrailLength,
		Lng: lng - math.Sin(rad)*TrailLength,
	}
}

// NormalizeHeading folds a heading into [0, 360)
func NormalizeHeading(heading float64) float64 {
	heading = math.Mod(heading, 360)
	if heading < 0 {
		heading += 360
	}
	return heading
}

// MagneticVariation returns the magnetic declination in degrees (+East, -West)
// at sea level for the given position and date. Returns 0 if the model cannot be evaluated.
func MagneticVariation(lat, lng float64, date time.Time) float64 {
	loc := egm96.NewLocationGeodetic(lat, lng, 0)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		return 0
	}

	return mag.D()
}

// MagneticHeading converts a true heading to magnetic using the local declination
func MagneticHeading(trueHeading, lat, lng float64, date time.Time) float64 {
	return NormalizeHeading(trueHeading - MagneticVariation(lat, lng, date))
}
