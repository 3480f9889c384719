package adsb

import (
	"strconv"
	"strings"
	"time"

	"github.com/yegors/planetracker/internal/geo"
)

// SpottedAtLayout is the time-of-day stamp producers write
const SpottedAtLayout = "15:04:05"

// SBS-1 BaseStation field positions
const (
	sbsMessageType = 0
	sbsHexIdent    = 4
	sbsAltitude    = 11
	sbsGroundSpeed = 12
	sbsTrack       = 13
	sbsLat         = 14
	sbsLon         = 15
	sbsMinFields   = 16
)

// ParseSBS parses one BaseStation "MSG" line into a partial record stamped with
// now's time of day. Non-MSG or short lines return false.
func ParseSBS(line string, now time.Time) (Record, bool) {
	parts := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	if len(parts) < sbsMinFields || parts[sbsMessageType] != "MSG" {
		return Record{}, false
	}

	hex := strings.ToUpper(strings.TrimSpace(parts[sbsHexIdent]))
	if hex == "" {
		return Record{}, false
	}

	num := func(i int) float64 {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return 0
		}
		return v
	}

	rec := Record{
		ICAO:     hex,
		Altitude: num(sbsAltitude),
		Speed:    num(sbsGroundSpeed),
		Track:    num(sbsTrack),
	}

	lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[sbsLat]), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(parts[sbsLon]), 64)
	if latErr == nil && lonErr == nil {
		c := geo.Coordinate{Lat: lat, Lon: lon}
		if c.Valid() {
			rec.Position = c
			rec.HasPosition = true
		}
	}

	return rec.WithObservedAt(now.Format(SpottedAtLayout)), true
}
