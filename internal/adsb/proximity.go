package adsb

import (
	"errors"
	"time"

	"github.com/yegors/planetracker/internal/geo"
	"github.com/yegors/planetracker/internal/timewindow"
)

// ErrInvalidLocation marks a selection made without a usable user position
var ErrInvalidLocation = errors.New("invalid user coordinates")

// Match is a record that passed the proximity and recency checks
type Match struct {
	Record    Record  `json:"record"`
	DistanceM float64 `json:"distance_m"`
	Bearing   float64 `json:"bearing"`
}

// Selection is the result of one proximity filter pass
type Selection struct {
	Matches         []Match `json:"matches"`
	InvalidLocation bool    `json:"invalid_location"`
	Considered      int     `json:"considered"`
	NoPosition      int     `json:"no_position"`
	NoTimestamp     int     `json:"no_timestamp"`
}

// Records returns the matched records in input order
func (s Selection) Records() []Record {
	out := make([]Record, 0, len(s.Matches))
	for _, m := range s.Matches {
		out = append(out, m.Record)
	}
	return out
}

// Err returns ErrInvalidLocation when the selection was made without a user position
func (s Selection) Err() error {
	if s.InvalidLocation {
		return ErrInvalidLocation
	}
	return nil
}

// Filter selects records within Radius meters of the user that were observed
// within Window of now.
type Filter struct {
	Radius float64
	Window time.Duration

	// Distance defaults to geo.Distance
	Distance func(a, b geo.Coordinate) float64
}

// Select applies the filter. Output order is input order. An invalid user position
// yields no matches and InvalidLocation set, whatever the records contain.
func (f Filter) Select(records []Record, user UserPosition, now time.Time) Selection {
	sel := Selection{Considered: len(records)}
	if !user.Valid() {
		sel.InvalidLocation = true
		return sel
	}

	distance := f.Distance
	if distance == nil {
		distance = geo.Distance
	}

	for _, rec := range records {
		if !rec.HasPosition {
			sel.NoPosition++
			continue
		}
		observed := rec.ObservedAt()
		if !observed.Valid {
			sel.NoTimestamp++
			continue
		}

		d := distance(user.Coordinate, rec.Position)
		// NaN fails this comparison and is treated as no match.
		if !(d <= f.Radius) {
			continue
		}
		if !timewindow.IsRecent(observed, now, f.Window) {
			continue
		}

		sel.Matches = append(sel.Matches, Match{
			Record:    rec,
			DistanceM: d,
			Bearing:   geo.Bearing(user.Coordinate, rec.Position),
		})
	}
	return sel
}

// Select is a convenience wrapper around Filter.Select
func Select(records []Record, user UserPosition, radius float64, window time.Duration, now time.Time) Selection {
	return Filter{Radius: radius, Window: window}.Select(records, user, now)
}
