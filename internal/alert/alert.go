// Package alert turns a proximity selection into a notification summary.
package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yegors/planetracker/internal/adsb"
	"github.com/yegors/planetracker/internal/geo"
)

// Fixed summary texts
const (
	TextInvalidLocation = "Invalid user coordinates"
	TextNoMatches       = "No planes found"

	DefaultTitleFormat = "%d Planes Found"
	separator          = ", "
)

// MatchDetail describes one aircraft in a summary
type MatchDetail struct {
	ICAO            string  `json:"icao"`
	Label           string  `json:"label"`
	Registration    string  `json:"registration"`
	Owner           string  `json:"owner"`
	DistanceM       float64 `json:"distance_m"`
	DistanceNM      float64 `json:"distance_nm"`
	Bearing         float64 `json:"bearing"`
	MagneticBearing float64 `json:"magnetic_bearing"`
	Altitude        float64 `json:"altitude"`
	SpottedAt       string  `json:"spotted_at"`
}

// Summary is the composed result of one alert cycle
type Summary struct {
	ID              uuid.UUID      `json:"id"`
	Count           int            `json:"count"`
	Text            string         `json:"text"`
	User            geo.Coordinate `json:"user"`
	InvalidLocation bool           `json:"invalid_location"`
	Matches         []MatchDetail  `json:"matches"`
	ComposedAt      time.Time      `json:"composed_at"`
}

// ShouldNotify reports whether the summary should be delivered
func (s Summary) ShouldNotify() bool {
	return s.Count > 0
}

// Composer builds summaries
type Composer struct {
	// ForceOnInvalid raises the count to at least 1 when the user position is
	// invalid, so the "invalid coordinates" text is still delivered.
	ForceOnInvalid bool

	// TitleFormat is a printf format taking the count
	TitleFormat string
}

// NewComposer creates a composer with the default title
func NewComposer(forceOnInvalid bool) *Composer {
	return &Composer{ForceOnInvalid: forceOnInvalid, TitleFormat: DefaultTitleFormat}
}

// Compose builds the summary for a selection. Text entries follow the selection's
// order and are joined by ", ".
func (c *Composer) Compose(sel adsb.Selection, user adsb.UserPosition, now time.Time) Summary {
	s := Summary{
		ID:              uuid.New(),
		Count:           len(sel.Matches),
		User:            user.Coordinate,
		InvalidLocation: sel.InvalidLocation,
		Matches:         make([]MatchDetail, 0, len(sel.Matches)),
		ComposedAt:      now,
	}

	labels := make([]string, 0, len(sel.Matches))
	for _, m := range sel.Matches {
		labels = append(labels, m.Record.Label())
		s.Matches = append(s.Matches, detail(m, user, now))
	}

	switch {
	case sel.InvalidLocation:
		s.Text = TextInvalidLocation
		if c.ForceOnInvalid && s.Count < 1 {
			s.Count = 1
		}
	case len(labels) == 0:
		s.Text = TextNoMatches
	default:
		s.Text = strings.Join(labels, separator)
	}
	return s
}

// Title formats the notification title for a summary
func (c *Composer) Title(s Summary) string {
	format := c.TitleFormat
	if format == "" {
		format = DefaultTitleFormat
	}
	return fmt.Sprintf(format, s.Count)
}

func detail(m adsb.Match, user adsb.UserPosition, now time.Time) MatchDetail {
	return MatchDetail{
		ICAO:            m.Record.ICAO,
		Label:           m.Record.Label(),
		Registration:    m.Record.Registration,
		Owner:           m.Record.Owner,
		DistanceM:       m.DistanceM,
		DistanceNM:      geo.MetersToNM(m.DistanceM),
		Bearing:         m.Bearing,
		MagneticBearing: geo.MagneticBearing(m.Bearing, user.Coordinate, m.Record.Altitude, now),
		Altitude:        m.Record.Altitude,
		SpottedAt:       m.Record.SpottedAt,
	}
}
