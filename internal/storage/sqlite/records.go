package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/planetracker/internal/adsb"
	"github.com/yegors/planetracker/internal/geo"
	"github.com/yegors/planetracker/pkg/logger"
	_ "modernc.org/sqlite"
)

// FlagKey is the well-known key of the global "enabled" flag
const FlagKey = "device_stats/run"

// RecordStore is a SQLite-backed store of observation records partitioned by day
// and time bucket, plus the enabled flag.
type RecordStore struct {
	db     *sql.DB
	logger *logger.Logger
	clock  func() time.Time
}

// NewRecordStore opens (or creates) the database at dbPath
func NewRecordStore(dbPath string, log *logger.Logger) (*RecordStore, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "journal mode"},
		{"PRAGMA synchronous=NORMAL", "synchronous mode"},
		{"PRAGMA busy_timeout=5000", "busy timeout"},
		{"PRAGMA cache_size=10000", "cache size"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s: %w", p.what, err)
		}
	}

	if err := initDatabase(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &RecordStore{
		db:     db,
		logger: storageLogger,
		clock:  time.Now,
	}, nil
}

// SetClock replaces the clock used for row timestamps
func (s *RecordStore) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Close closes the database connection
func (s *RecordStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS observations (
			day TEXT NOT NULL,
			bucket TEXT NOT NULL,
			icao TEXT NOT NULL,
			fields TEXT NOT NULL,      -- JSON object of raw producer fields
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (day, bucket, icao)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create observations table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_observations_day_icao ON observations(day, icao, bucket)`)
	if err != nil {
		return fmt.Errorf("failed to create observations index: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS flags (
			key TEXT PRIMARY KEY,
			value INTEGER NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create flags table: %w", err)
	}

	return nil
}

// Get returns the snapshot stored under key. A bucket key returns that bucket's
// rows; a day key returns one row per aircraft, taken from its latest bucket.
// Children are ordered by aircraft identifier.
func (s *RecordStore) Get(ctx context.Context, key adsb.PartitionKey) (adsb.Snapshot, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if key.IsDay() {
		rows, err = s.db.QueryContext(ctx, `
			SELECT icao, fields FROM (
				SELECT icao, fields,
					ROW_NUMBER() OVER (PARTITION BY icao ORDER BY bucket DESC, updated_at DESC) AS rn
				FROM observations
				WHERE day = ?
			)
			WHERE rn = 1
			ORDER BY icao
		`, key.Day)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT icao, fields FROM observations
			WHERE day = ? AND bucket = ?
			ORDER BY icao
		`, key.Day, key.Bucket)
	}
	if err != nil {
		return adsb.Snapshot{}, fmt.Errorf("failed to query %s: %w", key, err)
	}
	defer rows.Close()

	var snap adsb.Snapshot
	for rows.Next() {
		var icao, rawFields string
		if err := rows.Scan(&icao, &rawFields); err != nil {
			return adsb.Snapshot{}, fmt.Errorf("failed to scan observation: %w", err)
		}

		fields := map[string]any{}
		if err := json.Unmarshal([]byte(rawFields), &fields); err != nil {
			// Keep the child; the decoder defaults every field.
			s.logger.Warn("Malformed observation fields",
				logger.String("key", key.String()),
				logger.String("icao", icao),
				logger.Error(err))
		}
		snap.Children = append(snap.Children, adsb.RawRecord{Key: icao, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return adsb.Snapshot{}, fmt.Errorf("failed to read %s: %w", key, err)
	}

	snap.Exists = len(snap.Children) > 0
	return snap, nil
}

// Put merges fields into the record for icao under a bucket key. Fields already
// known are not overwritten by placeholder values.
func (s *RecordStore) Put(ctx context.Context, key adsb.PartitionKey, icao string, fields map[string]any) error {
	if key.IsDay() {
		return errors.New("observations must be written to a bucket key")
	}
	if icao == "" {
		return errors.New("missing aircraft identifier")
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	existing := map[string]any{}
	var rawFields string
	err = tx.QueryRowContext(ctx,
		"SELECT fields FROM observations WHERE day = ? AND bucket = ? AND icao = ?",
		key.Day, key.Bucket, icao).Scan(&rawFields)
	switch {
	case err == sql.ErrNoRows:
		// A new bucket row continues the aircraft's history for the day
		history, err := s.dayHistory(ctx, tx, key.Day, icao)
		if err != nil {
			return err
		}
		if history != nil {
			existing[adsb.FieldLocationHistory] = history
		}
	case err != nil:
		return fmt.Errorf("failed to read observation %s/%s: %w", key, icao, err)
	default:
		if err := json.Unmarshal([]byte(rawFields), &existing); err != nil {
			s.logger.Warn("Replacing malformed observation",
				logger.String("key", key.String()),
				logger.String("icao", icao),
				logger.Error(err))
			existing = map[string]any{}
		}
	}

	merged, err := json.Marshal(MergeFields(existing, fields))
	if err != nil {
		return fmt.Errorf("failed to marshal observation: %w", err)
	}

	now := s.clock().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO observations (day, bucket, icao, fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(day, bucket, icao) DO UPDATE SET
			fields = excluded.fields,
			updated_at = excluded.updated_at
	`, key.Day, key.Bucket, icao, string(merged), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert observation %s/%s: %w", key, icao, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit observation: %w", err)
	}
	return nil
}

// dayHistory returns the location history of the aircraft's latest row for day, or nil
func (s *RecordStore) dayHistory(ctx context.Context, tx *sql.Tx, day, icao string) (map[string]any, error) {
	var rawFields string
	err := tx.QueryRowContext(ctx, `
		SELECT fields FROM observations
		WHERE day = ? AND icao = ?
		ORDER BY bucket DESC, updated_at DESC
		LIMIT 1
	`, day, icao).Scan(&rawFields)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history %s/%s: %w", day, icao, err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(rawFields), &fields); err != nil {
		return nil, nil
	}
	history, _ := fields[adsb.FieldLocationHistory].(map[string]any)
	return history, nil
}

// PutRecord stores a decoded record under a bucket key
func (s *RecordStore) PutRecord(ctx context.Context, key adsb.PartitionKey, rec adsb.Record) error {
	return s.Put(ctx, key, rec.ICAO, rec.Fields())
}

// beginTx begins a transaction, retrying with backoff while the database is busy
func (s *RecordStore) beginTx(ctx context.Context) (*sql.Tx, error) {
	var err error
	for i := 0; i < 3; i++ {
		var tx *sql.Tx
		tx, err = s.db.BeginTx(ctx, nil)
		if err == nil {
			return tx, nil
		}

		s.logger.Warn("Failed to begin transaction, retrying...",
			logger.Error(err),
			logger.Int("attempt", i+1))

		// Exponential backoff: 100ms, 200ms, 400ms
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(100*(1<<i)) * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("failed to begin transaction after retries: %w", err)
}

// MergeFields overlays incoming onto existing. An incoming placeholder ("-",
// "N/A", empty or null) only fills a field that is not yet known. An incoming
// position with a spotted_at stamp is appended to the location history.
func MergeFields(existing, incoming map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(incoming)+1)
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		if k == adsb.FieldLocationHistory {
			continue
		}
		if adsb.NewField(v).Present() {
			merged[k] = v
			continue
		}
		if !adsb.NewField(merged[k]).Present() {
			merged[k] = v
		}
	}

	history := map[string]any{}
	if prev, ok := existing[adsb.FieldLocationHistory].(map[string]any); ok {
		for k, v := range prev {
			history[k] = v
		}
	}
	lat, latOK := adsb.NewField(incoming[adsb.FieldLat]).Float64()
	lon, lonOK := adsb.NewField(incoming[adsb.FieldLon]).Float64()
	spotted := adsb.NewField(incoming[adsb.FieldSpottedAt]).StringOr("")
	if latOK && lonOK && spotted != "" && (geo.Coordinate{Lat: lat, Lon: lon}).Valid() {
		history[spotted] = []any{lat, lon}
	}
	if len(history) > 0 {
		merged[adsb.FieldLocationHistory] = history
	}
	return merged
}

// Prune deletes observations for days before the given day
func (s *RecordStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM observations WHERE day < ?", before.Format(adsb.DayLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune observations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned observations: %w", err)
	}
	if n > 0 {
		s.logger.Info("Pruned old observations",
			logger.Int64("rows", n),
			logger.String("before", before.Format(adsb.DayLayout)))
	}
	return n, nil
}
