package alert

import (
	"testing"
	"time"

	"github.com/yegors/planetracker/internal/adsb"
	"github.com/yegors/planetracker/internal/geo"
)

var now = time.Date(2025, 5, 14, 12, 1, 0, 0, time.Local)

func match(manufacturer, model string) adsb.Match {
	return adsb.Match{Record: adsb.Record{ICAO: manufacturer + model, Manufacturer: manufacturer, Model: model}}
}

func TestComposeEndToEnd(t *testing.T) {
	spotted := now.Add(-30 * time.Second).Format(adsb.SpottedAtLayout)
	records := []adsb.Record{
		(adsb.Record{Manufacturer: "Boeing", Model: "737", Position: geo.Coordinate{Lat: 51.70, Lon: 0.10}, HasPosition: true}).WithObservedAt(spotted),
		(adsb.Record{Manufacturer: "Airbus", Model: "A320", Position: geo.Coordinate{Lat: 10, Lon: 10}, HasPosition: true}).WithObservedAt(spotted),
	}
	user := adsb.UserPosition{Coordinate: geo.Coordinate{Lat: 51.70, Lon: 0.10}}

	sel := adsb.Select(records, user, 8000, 2*time.Minute, now)
	c := NewComposer(true)
	s := c.Compose(sel, user, now)

	if s.Text != "Boeing 737" || s.Count != 1 {
		t.Fatalf("summary = %q count %d", s.Text, s.Count)
	}
	if !s.ShouldNotify() {
		t.Fatal("summary with a match should notify")
	}
	if got := c.Title(s); got != "1 Planes Found" {
		t.Fatalf("Title = %q", got)
	}
	if len(s.Matches) != 1 || s.Matches[0].MagneticBearing < 0 || s.Matches[0].MagneticBearing >= 360 {
		t.Fatalf("match details = %+v", s.Matches)
	}
}

func TestComposeJoinsInOrder(t *testing.T) {
	sel := adsb.Selection{Matches: []adsb.Match{match("Embraer", "E190"), match("Airbus", "A319"), match("Boeing", "777")}}
	user := adsb.UserPosition{Coordinate: geo.Coordinate{Lat: 1, Lon: 1}}

	s := NewComposer(true).Compose(sel, user, now)
	want := "Embraer E190, Airbus A319, Boeing 777"
	if s.Text != want {
		t.Fatalf("Text = %q, want %q", s.Text, want)
	}
	if s.Count != 3 {
		t.Fatalf("Count = %d", s.Count)
	}
}

func TestComposeNoMatches(t *testing.T) {
	user := adsb.UserPosition{Coordinate: geo.Coordinate{Lat: 1, Lon: 1}}
	s := NewComposer(true).Compose(adsb.Selection{}, user, now)
	if s.Text != TextNoMatches || s.Count != 0 {
		t.Fatalf("summary = %+v", s)
	}
	if s.ShouldNotify() {
		t.Fatal("zero count must not notify")
	}
}

func TestComposeInvalidLocation(t *testing.T) {
	sel := adsb.Selection{InvalidLocation: true}

	forced := NewComposer(true).Compose(sel, adsb.InvalidPosition, now)
	if forced.Text != TextInvalidLocation || forced.Count != 1 || !forced.ShouldNotify() {
		t.Fatalf("forced summary = %+v", forced)
	}
	if !forced.InvalidLocation {
		t.Fatal("InvalidLocation not carried")
	}

	quiet := NewComposer(false).Compose(sel, adsb.InvalidPosition, now)
	if quiet.Text != TextInvalidLocation || quiet.Count != 0 || quiet.ShouldNotify() {
		t.Fatalf("unforced summary = %+v", quiet)
	}
}

func TestComposeUniqueIDs(t *testing.T) {
	c := NewComposer(false)
	a := c.Compose(adsb.Selection{}, adsb.InvalidPosition, now)
	b := c.Compose(adsb.Selection{}, adsb.InvalidPosition, now)
	if a.ID == b.ID {
		t.Fatal("summaries share an ID")
	}
}

func TestTitleFormat(t *testing.T) {
	c := &Composer{TitleFormat: "Nearby: %d"}
	if got := c.Title(Summary{Count: 4}); got != "Nearby: 4" {
		t.Fatalf("Title = %q", got)
	}
	c.TitleFormat = ""
	if got := c.Title(Summary{Count: 2}); got != "2 Planes Found" {
		t.Fatalf("Title = %q", got)
	}
}
