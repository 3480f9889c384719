package feeder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/yegors/planetracker/internal/adsb"
	"github.com/yegors/planetracker/internal/geo"
	"github.com/yegors/planetracker/pkg/logger"
)

// aircraftJSON is the dump1090/tar1090 aircraft.json document
type aircraftJSON struct {
	Now      float64          `json:"now"`
	Messages int              `json:"messages"`
	Aircraft []aircraftTarget `json:"aircraft"`
}

// aircraftTarget is one entry of aircraft.json. Receivers disagree on types
// ("alt_baro" may be "ground"), so values are read through adsb.Field.
type aircraftTarget struct {
	Hex          string     `json:"hex"`
	Registration adsb.Field `json:"r"`
	TypeCode     adsb.Field `json:"t"`
	AltBaro      adsb.Field `json:"alt_baro"`
	Altitude     adsb.Field `json:"altitude"`
	GroundSpeed  adsb.Field `json:"gs"`
	Speed        adsb.Field `json:"speed"`
	Track        adsb.Field `json:"track"`
	Lat          adsb.Field `json:"lat"`
	Lon          adsb.Field `json:"lon"`
	Seen         adsb.Field `json:"seen"`
}

func (t aircraftTarget) record(now time.Time) (adsb.Record, bool) {
	hex := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(t.Hex, "~")))
	if hex == "" {
		return adsb.Record{}, false
	}

	alt := t.AltBaro
	if !alt.Present() {
		alt = t.Altitude
	}
	speed := t.GroundSpeed
	if !speed.Present() {
		speed = t.Speed
	}

	rec := adsb.Record{
		ICAO:         hex,
		Altitude:     alt.AltitudeOr(0),
		Speed:        speed.Float64Or(0),
		Track:        t.Track.Float64Or(0),
		Registration: t.Registration.StringOr(""),
		TypeCode:     t.TypeCode.StringOr(""),
	}

	lat, latOK := t.Lat.Float64()
	lon, lonOK := t.Lon.Float64()
	if latOK && lonOK {
		c := geo.Coordinate{Lat: lat, Lon: lon}
		if c.Valid() {
			rec.Position = c
			rec.HasPosition = true
		}
	}

	spotted := now
	if seen, ok := t.Seen.Float64(); ok && seen > 0 && !math.IsInf(seen, 0) {
		spotted = now.Add(-time.Duration(seen * float64(time.Second)))
	}
	return rec.WithObservedAt(spotted.Format(adsb.SpottedAtLayout)), true
}

func (f *Feeder) runJSON(ctx context.Context) error {
	interval := f.opts.JSONInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	f.logger.Info("Starting aircraft.json feeder",
		logger.String("url", f.opts.AircraftJSON),
		logger.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := f.PollJSON(ctx); err != nil {
			f.logger.Warn("Failed to poll aircraft.json", logger.Error(err))
		} else {
			f.logger.Debug("Polled aircraft.json", logger.Int("aircraft_count", n))
		}

		select {
		case <-ctx.Done():
			f.logger.Info("aircraft.json feeder stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// PollJSON fetches aircraft.json once and stores every aircraft in it. It returns
// the number of records written.
func (f *Feeder) PollJSON(ctx context.Context) (int, error) {
	data, err := f.fetchJSON(ctx)
	if err != nil {
		return 0, err
	}

	now := f.opts.Clock()
	written := 0
	for _, target := range data.Aircraft {
		rec, ok := target.record(now)
		if !ok {
			continue
		}
		if err := f.Ingest(ctx, rec); err != nil {
			f.logger.Debug("Failed to store aircraft",
				logger.String("icao", rec.ICAO),
				logger.Error(err))
			continue
		}
		written++
	}
	return written, nil
}

func (f *Feeder) fetchJSON(ctx context.Context) (*aircraftJSON, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.opts.AircraftJSON, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var data aircraftJSON
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &data, nil
}
