package adsb

import (
	"sort"
	"time"

	"github.com/yegors/planetracker/internal/geo"
	"github.com/yegors/planetracker/internal/timewindow"
)

// Raw field names used by producers and the record store
const (
	FieldICAO         = "icao"
	FieldLat          = "lat"
	FieldLon          = "lon"
	FieldAltitude     = "altitude"
	FieldSpeed        = "speed"
	FieldTrack        = "track"
	FieldManufacturer = "manufacturer"
	FieldModel        = "model"
	FieldOwner        = "owner"
	FieldRegistration = "registration"
	FieldTypeCode     = "icao_type_code"
	FieldModeS        = "code_mode_s"
	FieldOperatorFlag = "operator_flag"
	FieldSpottedAt    = "spotted_at"

	// FieldLocationHistory maps spotted_at to [lat, lon]. The store maintains it.
	FieldLocationHistory = "location_history"
)

// Record is one observed aircraft as read from the store for a single cycle
type Record struct {
	ICAO         string         `json:"icao"`
	Position     geo.Coordinate `json:"position"`
	HasPosition  bool           `json:"has_position"`
	Altitude     float64        `json:"altitude"`
	Speed        float64        `json:"speed"`
	Track        float64        `json:"track"`
	Manufacturer string         `json:"manufacturer"`
	Model        string         `json:"model"`
	Owner        string         `json:"owner"`
	Registration string         `json:"registration"`
	TypeCode     string         `json:"icao_type_code"`
	ModeS        string         `json:"code_mode_s"`
	OperatorFlag string         `json:"operator_flag"`
	SpottedAt    string         `json:"spotted_at"`
	History      []TrackPoint   `json:"location_history,omitempty"`

	observedAt timewindow.ObservedAt
}

// TrackPoint is one entry of an aircraft's location history
type TrackPoint struct {
	SpottedAt string         `json:"spotted_at"`
	Position  geo.Coordinate `json:"position"`
}

// ObservedAt returns the parsed "spotted at" timestamp
func (r Record) ObservedAt() timewindow.ObservedAt {
	return r.observedAt
}

// Label returns "{manufacturer} {model}" as used in alert text
func (r Record) Label() string {
	return r.Manufacturer + " " + r.Model
}

// Decode converts a raw store record into a Record. Absent or malformed fields fall
// back to "N/A" or 0; a missing or out-of-range coordinate leaves HasPosition false.
func Decode(raw RawRecord) Record {
	rec := Record{
		ICAO:         raw.Field(FieldICAO).StringOr(raw.Key),
		Altitude:     raw.Field(FieldAltitude).AltitudeOr(0),
		Speed:        raw.Field(FieldSpeed).Float64Or(0),
		Track:        raw.Field(FieldTrack).Float64Or(0),
		Manufacturer: raw.Field(FieldManufacturer).String(),
		Model:        raw.Field(FieldModel).String(),
		Owner:        raw.Field(FieldOwner).String(),
		Registration: raw.Field(FieldRegistration).String(),
		TypeCode:     raw.Field(FieldTypeCode).String(),
		ModeS:        raw.Field(FieldModeS).String(),
		OperatorFlag: raw.Field(FieldOperatorFlag).String(),
		SpottedAt:    raw.Field(FieldSpottedAt).StringOr(""),
	}
	if rec.ICAO == "" {
		rec.ICAO = NotAvailable
	}

	lat, latOK := raw.Field(FieldLat).Float64()
	lon, lonOK := raw.Field(FieldLon).Float64()
	if latOK && lonOK {
		c := geo.Coordinate{Lat: lat, Lon: lon}
		if c.Valid() {
			rec.Position = c
			rec.HasPosition = true
		}
	}

	rec.History = decodeHistory(raw.Field(FieldLocationHistory))
	rec.observedAt = timewindow.Parse(rec.SpottedAt)
	return rec
}

// decodeHistory reads a spotted_at -> [lat, lon] map, dropping malformed points.
// Points are ordered by spotted_at.
func decodeHistory(f Field) []TrackPoint {
	m, ok := f.value.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	points := make([]TrackPoint, 0, len(m))
	for spotted, v := range m {
		pair, ok := v.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		lat, latOK := NewField(pair[0]).Float64()
		lon, lonOK := NewField(pair[1]).Float64()
		c := geo.Coordinate{Lat: lat, Lon: lon}
		if !latOK || !lonOK || !c.Valid() {
			continue
		}
		points = append(points, TrackPoint{SpottedAt: spotted, Position: c})
	}
	sort.Slice(points, func(i, j int) bool {
		a, b := timewindow.Parse(points[i].SpottedAt), timewindow.Parse(points[j].SpottedAt)
		if a.Valid && b.Valid && a.TimeOnly == b.TimeOnly && !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return points[i].SpottedAt < points[j].SpottedAt
	})
	return points
}

// DecodeSnapshot decodes every child of a snapshot in order
func DecodeSnapshot(snap Snapshot) []Record {
	if !snap.Exists {
		return nil
	}
	records := make([]Record, 0, len(snap.Children))
	for _, raw := range snap.Children {
		records = append(records, Decode(raw))
	}
	return records
}

// Fields converts the record back into the store's raw field layout. Missing text
// is written as "-" the way producers mark unknown values.
func (r Record) Fields() map[string]any {
	text := func(s string) string {
		if s == "" || s == NotAvailable {
			return "-"
		}
		return s
	}
	fields := map[string]any{
		FieldICAO:         text(r.ICAO),
		FieldAltitude:     r.Altitude,
		FieldSpeed:        r.Speed,
		FieldTrack:        r.Track,
		FieldManufacturer: text(r.Manufacturer),
		FieldModel:        text(r.Model),
		FieldOwner:        text(r.Owner),
		FieldRegistration: text(r.Registration),
		FieldTypeCode:     text(r.TypeCode),
		FieldModeS:        text(r.ModeS),
		FieldOperatorFlag: text(r.OperatorFlag),
		FieldSpottedAt:    text(r.SpottedAt),
	}
	if r.HasPosition {
		fields[FieldLat] = r.Position.Lat
		fields[FieldLon] = r.Position.Lon
	} else {
		fields[FieldLat] = "-"
		fields[FieldLon] = "-"
	}
	return fields
}

// WithObservedAt sets the spotted-at text and its parsed form
func (r Record) WithObservedAt(raw string) Record {
	r.SpottedAt = raw
	r.observedAt = timewindow.Parse(raw)
	return r
}

// UserPosition is the user's last known position. The zero value (0,0) is the
// "unavailable" sentinel and never matches anything.
type UserPosition struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	AsOf       time.Time      `json:"as_of"`
}

// InvalidPosition is the sentinel for an unavailable user position
var InvalidPosition = UserPosition{}

// Valid reports whether the position can be used for proximity matching
func (u UserPosition) Valid() bool {
	return u.Coordinate.Valid() && !u.Coordinate.IsZero()
}
