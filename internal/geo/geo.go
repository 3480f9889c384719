package geo

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// Constants
const (
	EarthRadiusM  = 6371000.0 // Mean Earth radius (m), spherical approximation
	MetersPerNM   = 1852.0    // Meters per nautical mile
	FeetPerMeter  = 3.28084   // Feet per meter
	degreesToRads = math.Pi / 180.0
)

// Coordinate is a position in signed decimal degrees
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate is finite and within [-90,90] x [-180,180]
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// IsZero reports whether the coordinate is the (0,0) sentinel used for "no position"
func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lon == 0
}

// Distance returns the great-circle distance in meters between a and b using the
// haversine formula. NaN inputs yield NaN.
func Distance(a, b Coordinate) float64 {
	lat1 := a.Lat * degreesToRads
	lat2 := b.Lat * degreesToRads
	dlat := lat2 - lat1
	dlon := b.Lon*degreesToRads - a.Lon*degreesToRads

	sinLat := math.Sin(dlat / 2)
	sinLon := math.Sin(dlon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	// Rounding can push h a hair past 1 for antipodal points.
	if h > 1 {
		h = 1
	}

	return 2 * EarthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Bearing returns the initial true bearing in degrees [0,360) from a to b
func Bearing(a, b Coordinate) float64 {
	lat1 := a.Lat * degreesToRads
	lat2 := b.Lat * degreesToRads
	dlon := (b.Lon - a.Lon) * degreesToRads

	y := math.Sin(dlon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)
	bearing := math.Atan2(y, x) / degreesToRads

	return math.Mod(bearing+360.0, 360.0)
}

// MagneticVariation calculates the magnetic declination for a given position and time.
// Returns declination in degrees (+East, -West), or 0 if the model cannot be evaluated.
func MagneticVariation(c Coordinate, altFt float64, date time.Time) float64 {
	loc := egm96.NewLocationGeodetic(c.Lat, c.Lon, altFt/FeetPerMeter)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		return 0.0
	}

	return mag.D()
}

// MagneticBearing converts a true bearing to a magnetic one at the given position
func MagneticBearing(trueBearing float64, c Coordinate, altFt float64, date time.Time) float64 {
	return math.Mod(trueBearing-MagneticVariation(c, altFt, date)+360.0, 360.0)
}

// MetersToNM converts meters to nautical miles
func MetersToNM(meters float64) float64 {
	return meters / MetersPerNM
}
