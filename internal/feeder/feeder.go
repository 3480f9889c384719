// Package feeder writes observations from a local ADS-B receiver into the record
// store. It reads either an SBS-1 BaseStation TCP stream or a dump1090/tar1090
// aircraft.json endpoint.
package feeder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/yegors/planetracker/internal/adsb"
	"github.com/yegors/planetracker/pkg/logger"
)

// Store is the write side of the record store
type Store interface {
	Put(ctx context.Context, key adsb.PartitionKey, icao string, fields map[string]any) error
}

// Options configure a feeder
type Options struct {
	SBSAddress     string
	AircraftJSON   string
	JSONInterval   time.Duration
	ReconnectDelay time.Duration
	BucketMinutes  int
	RequestTimeout time.Duration

	// Clock defaults to time.Now
	Clock func() time.Time
	// Dial defaults to a net.Dialer
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// Counters is a snapshot of feeder activity
type Counters struct {
	Lines    int64 `json:"lines"`
	Written  int64 `json:"written"`
	Failed   int64 `json:"failed"`
	Connects int64 `json:"connects"`
}

// Feeder reads a receiver and writes enriched observations into the store
type Feeder struct {
	opts       Options
	store      Store
	db         *adsb.AircraftDB
	httpClient *http.Client
	logger     *logger.Logger

	lines    atomic.Int64
	written  atomic.Int64
	failed   atomic.Int64
	connects atomic.Int64
}

// New creates a feeder. db may be nil, in which case records are not enriched.
func New(opts Options, store Store, db *adsb.AircraftDB, log *logger.Logger) *Feeder {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Dial == nil {
		d := &net.Dialer{Timeout: 10 * time.Second}
		opts.Dial = d.DialContext
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Feeder{
		opts:       opts,
		store:      store,
		db:         db,
		httpClient: &http.Client{Timeout: opts.RequestTimeout},
		logger:     log.Named("feeder"),
	}
}

// Counters returns the activity counters
func (f *Feeder) Counters() Counters {
	return Counters{
		Lines:    f.lines.Load(),
		Written:  f.written.Load(),
		Failed:   f.failed.Load(),
		Connects: f.connects.Load(),
	}
}

// Run reads the configured source until ctx is cancelled. The SBS stream takes
// precedence over aircraft.json.
func (f *Feeder) Run(ctx context.Context) error {
	switch {
	case f.opts.SBSAddress != "":
		return f.runSBS(ctx)
	case f.opts.AircraftJSON != "":
		return f.runJSON(ctx)
	default:
		return errors.New("no feeder source configured")
	}
}

func (f *Feeder) runSBS(ctx context.Context) error {
	f.logger.Info("Starting SBS feeder", logger.String("address", f.opts.SBSAddress))

	for {
		err := f.stream(ctx)
		if ctx.Err() != nil {
			f.logger.Info("SBS feeder stopped")
			return nil
		}
		f.logger.Warn("SBS stream ended, reconnecting",
			logger.Error(err),
			logger.Duration("delay", f.opts.ReconnectDelay))

		select {
		case <-ctx.Done():
			f.logger.Info("SBS feeder stopped")
			return nil
		case <-time.After(f.opts.ReconnectDelay):
		}
	}
}

func (f *Feeder) stream(ctx context.Context) error {
	conn, err := f.opts.Dial(ctx, "tcp", f.opts.SBSAddress)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", f.opts.SBSAddress, err)
	}
	f.connects.Add(1)
	f.logger.Info("Connected to SBS stream", logger.String("address", f.opts.SBSAddress))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	return f.Consume(ctx, conn)
}

// Consume reads SBS lines from r until EOF or ctx is cancelled
func (f *Feeder) Consume(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.lines.Add(1)
		if _, err := f.HandleLine(ctx, scanner.Text()); err != nil {
			f.logger.Debug("Failed to store SBS observation", logger.Error(err))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read SBS stream: %w", err)
	}
	return io.EOF
}

// HandleLine parses and stores one SBS line. Lines that are not position or
// identity messages are ignored and report false.
func (f *Feeder) HandleLine(ctx context.Context, line string) (bool, error) {
	rec, ok := adsb.ParseSBS(line, f.opts.Clock())
	if !ok {
		return false, nil
	}
	return true, f.Ingest(ctx, rec)
}

// Ingest enriches a record and merges it into the current bucket
func (f *Feeder) Ingest(ctx context.Context, rec adsb.Record) error {
	if rec.ICAO == "" || rec.ICAO == adsb.NotAvailable {
		f.failed.Add(1)
		return errors.New("record has no aircraft identifier")
	}
	rec = f.db.Enrich(rec)

	key := adsb.BucketKey(f.opts.Clock(), f.opts.BucketMinutes)
	if err := f.store.Put(ctx, key, rec.ICAO, observationFields(rec)); err != nil {
		f.failed.Add(1)
		return err
	}
	f.written.Add(1)
	return nil
}

// observationFields is the record's field layout with unreported kinematics marked
// as placeholders, so a partial message never erases values stored earlier.
func observationFields(rec adsb.Record) map[string]any {
	fields := rec.Fields()
	for _, name := range []string{adsb.FieldAltitude, adsb.FieldSpeed, adsb.FieldTrack} {
		if v, ok := fields[name].(float64); ok && v == 0 {
			fields[name] = "-"
		}
	}
	return fields
}
