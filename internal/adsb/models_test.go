package adsb

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDecodeDefaults(t *testing.T) {
	rec := Decode(RawRecord{Key: "ABC123", Fields: map[string]any{
		FieldLat:       "not-a-number",
		FieldLon:       1.5,
		FieldAltitude:  "-",
		FieldSpottedAt: "12:00:00",
	}})

	if rec.ICAO != "ABC123" {
		t.Errorf("ICAO = %q, want key fallback", rec.ICAO)
	}
	if rec.HasPosition {
		t.Error("malformed latitude should leave position unset")
	}
	if rec.Manufacturer != NotAvailable || rec.Model != NotAvailable || rec.Owner != NotAvailable {
		t.Errorf("text defaults = %q/%q/%q", rec.Manufacturer, rec.Model, rec.Owner)
	}
	if rec.Altitude != 0 {
		t.Errorf("Altitude = %f, want 0", rec.Altitude)
	}
	if !rec.ObservedAt().Valid {
		t.Error("spotted_at should parse")
	}
}

func TestDecodeFromJSON(t *testing.T) {
	var raw RawRecord
	payload := `{"key":"4CA123","fields":{"lat":"51.7","lon":0.1,"altitude":"ground","manufacturer":"Boeing","model":"737","spotted_at":"2025-05-14 12:00:00"}}`
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rec := Decode(raw)
	if !rec.HasPosition || rec.Position.Lat != 51.7 || rec.Position.Lon != 0.1 {
		t.Errorf("position = %+v (has=%v)", rec.Position, rec.HasPosition)
	}
	if rec.Label() != "Boeing 737" {
		t.Errorf("Label = %q", rec.Label())
	}
}

func TestDecodeGroundOnlyForAltitude(t *testing.T) {
	rec := Decode(RawRecord{Key: "ABC123", Fields: map[string]any{
		FieldLat:      "ground",
		FieldLon:      0.1,
		FieldAltitude: "ground",
		FieldSpeed:    "ground",
	}})
	if rec.HasPosition {
		t.Errorf("lat \"ground\" decoded as a position: %+v", rec.Position)
	}
	if rec.Altitude != 0 || rec.Speed != 0 {
		t.Errorf("altitude = %f speed = %f, want 0", rec.Altitude, rec.Speed)
	}
	if _, ok := rec.Fields()[FieldLat].(string); !ok {
		t.Errorf("lat should be marked unknown, got %v", rec.Fields()[FieldLat])
	}
	if v, ok := (Field{value: "ground"}).Float64(); ok {
		t.Errorf("Float64(\"ground\") = %f, true", v)
	}
	if got := (Field{value: "Ground"}).AltitudeOr(-1); got != 0 {
		t.Errorf("AltitudeOr(\"Ground\") = %f, want 0", got)
	}
}

func TestFieldsRoundTripMarksUnknown(t *testing.T) {
	rec := Record{ICAO: "ABC", Manufacturer: NotAvailable, Model: "A320"}
	fields := rec.Fields()
	if fields[FieldManufacturer] != "-" || fields[FieldLat] != "-" {
		t.Fatalf("unknown values not marked: %v", fields)
	}
	back := Decode(RawRecord{Key: "ABC", Fields: fields})
	if back.Manufacturer != NotAvailable || back.Model != "A320" || back.HasPosition {
		t.Fatalf("decoded = %+v", back)
	}
}

func TestFieldPresent(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{"", false},
		{" - ", false},
		{"N/A", false},
		{"x", true},
		{0.0, true},
		{false, true},
	}
	for _, tt := range tests {
		if got := NewField(tt.v).Present(); got != tt.want {
			t.Errorf("Present(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestUserPositionValid(t *testing.T) {
	if InvalidPosition.Valid() {
		t.Fatal("sentinel must be invalid")
	}
	u := UserPosition{AsOf: time.Now()}
	u.Coordinate.Lat, u.Coordinate.Lon = 51.7, 0.1
	if !u.Valid() {
		t.Fatal("real position reported invalid")
	}
}

func TestParseSBS(t *testing.T) {
	now := time.Date(2025, 5, 14, 12, 0, 5, 0, time.Local)
	line := "MSG,3,1,1,4CA123,1,2025/05/14,12:00:05.000,2025/05/14,12:00:05.000,,35000,450,270,51.70,0.10,,,0,0,0,0\r\n"

	rec, ok := ParseSBS(line, now)
	if !ok {
		t.Fatal("ParseSBS rejected a valid line")
	}
	if rec.ICAO != "4CA123" || rec.Altitude != 35000 || rec.Speed != 450 || rec.Track != 270 {
		t.Errorf("parsed = %+v", rec)
	}
	if !rec.HasPosition || rec.Position.Lat != 51.70 {
		t.Errorf("position = %+v", rec.Position)
	}
	if rec.SpottedAt != "12:00:05" {
		t.Errorf("SpottedAt = %q", rec.SpottedAt)
	}

	for _, bad := range []string{
		"",
		"MSG,3,1,1,4CA123",
		"STA,3,1,1,4CA123,1,,,,,,,,,,,",
		"MSG,3,1,1,,1,,,,,,,,,,,",
	} {
		if _, ok := ParseSBS(bad, now); ok {
			t.Errorf("ParseSBS(%q) accepted", bad)
		}
	}

	rec, ok = ParseSBS("MSG,1,1,1,ABCDEF,1,,,,,CALL123,,,,,,,,,,,", now)
	if !ok || rec.HasPosition || rec.Altitude != 0 {
		t.Errorf("identification message = %+v ok=%v", rec, ok)
	}
}

func TestAircraftDB(t *testing.T) {
	data := strings.Join([]string{
		"# hex;registration;type;manufacturer;model;owner;flag",
		"4ca123;EI-ABC;B738;Boeing;737-8AS;Ryanair;RYR",
		"3C6444;D-AIZZ;A320;Airbus;A320-214;Lufthansa;DLH",
		"ABCDEF;N1;AT76;Avions de Transport Regional;ATR 72-600;Air.Test, Inc;-",
		"short;line",
	}, "\n")

	db := NewAircraftDB()
	n, err := db.Read(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 3 || db.Len() != 3 {
		t.Fatalf("loaded %d entries, want 3", n)
	}

	meta, ok := db.Lookup("4CA123")
	if !ok || meta.Model != "737-8AS" || meta.Owner != "Ryanair" {
		t.Fatalf("lookup = %+v ok=%v", meta, ok)
	}

	meta, _ = db.Lookup("abcdef")
	if meta.Manufacturer != "ATR" {
		t.Errorf("manufacturer = %q, want ATR", meta.Manufacturer)
	}
	if meta.Owner != "Air Test  Inc" {
		t.Errorf("owner = %q, want cleaned text", meta.Owner)
	}

	rec := db.Enrich(Record{ICAO: "3C6444", Model: "A321", Manufacturer: "-"})
	if rec.Model != "A321" {
		t.Errorf("known model overwritten: %q", rec.Model)
	}
	if rec.Manufacturer != "Airbus" || rec.Owner != "Lufthansa" {
		t.Errorf("enriched = %+v", rec)
	}

	var nilDB *AircraftDB
	if got := nilDB.Enrich(Record{ICAO: "X"}); got.ICAO != "X" {
		t.Error("nil db should pass records through")
	}
}
