package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yegors/planetracker/internal/adsb"
	"github.com/yegors/planetracker/internal/geo"
	"github.com/yegors/planetracker/pkg/logger"
)

func TestConfiguredPosition(t *testing.T) {
	p := NewProvider(Options{Configured: geo.Coordinate{Lat: 51.7, Lon: 0.1}}, logger.NewNop())
	pos, err := p.LastKnownPosition(context.Background())
	if err != nil {
		t.Fatalf("LastKnownPosition: %v", err)
	}
	if pos.Coordinate != (geo.Coordinate{Lat: 51.7, Lon: 0.1}) {
		t.Fatalf("position = %+v", pos)
	}
}

func TestUnconfiguredIsSentinel(t *testing.T) {
	p := NewProvider(Options{}, logger.NewNop())
	pos, err := p.LastKnownPosition(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if pos != adsb.InvalidPosition {
		t.Fatalf("position = %+v, want sentinel", pos)
	}
}

func TestOverride(t *testing.T) {
	now := time.Date(2025, 5, 14, 12, 0, 0, 0, time.UTC)
	p := NewProvider(Options{
		Configured:    geo.Coordinate{Lat: 10, Lon: 10},
		AllowOverride: true,
		MaxAge:        5 * time.Minute,
		Clock:         func() time.Time { return now },
	}, logger.NewNop())

	if err := p.SetOverride(geo.Coordinate{Lat: 95, Lon: 0}); err == nil {
		t.Fatal("out of range override accepted")
	}
	if err := p.SetOverride(geo.Coordinate{Lat: 51.7, Lon: 0.1}); err != nil {
		t.Fatalf("SetOverride: %v", err)
	}

	pos, err := p.LastKnownPosition(context.Background())
	if err != nil || pos.Coordinate.Lat != 51.7 {
		t.Fatalf("override position = %+v, %v", pos, err)
	}

	now = now.Add(10 * time.Minute)
	if _, err := p.LastKnownPosition(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("stale override err = %v", err)
	}

	p.ClearOverride()
	pos, err = p.LastKnownPosition(context.Background())
	if err != nil || pos.Coordinate.Lat != 10 {
		t.Fatalf("configured position = %+v, %v", pos, err)
	}
}

func TestOverrideDisabled(t *testing.T) {
	p := NewProvider(Options{Configured: geo.Coordinate{Lat: 1, Lon: 1}}, logger.NewNop())
	if err := p.SetOverride(geo.Coordinate{Lat: 2, Lon: 2}); err == nil {
		t.Fatal("override accepted while disabled")
	}
}

func TestCancelledContext(t *testing.T) {
	p := NewProvider(Options{Configured: geo.Coordinate{Lat: 1, Lon: 1}}, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.LastKnownPosition(ctx); err == nil {
		t.Fatal("cancelled context should fail")
	}
}
