package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/yegors/planetracker/pkg/logger"
)

// Flag reads a boolean flag. An absent flag reads as false.
func (s *RecordStore) Flag(ctx context.Context, key string) (bool, error) {
	var value int
	err := s.db.QueryRowContext(ctx, "SELECT value FROM flags WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read flag %s: %w", key, err)
	}
	return value != 0, nil
}

// SetFlag writes a boolean flag
func (s *RecordStore) SetFlag(ctx context.Context, key string, value bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flags (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, boolToInt(value), s.clock().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write flag %s: %w", key, err)
	}
	return nil
}

// Enabled reads the global enabled flag
func (s *RecordStore) Enabled(ctx context.Context) (bool, error) {
	return s.Flag(ctx, FlagKey)
}

// SetEnabled writes the global enabled flag without blocking the caller. done, if
// not nil, receives the write result.
func (s *RecordStore) SetEnabled(ctx context.Context, value bool, done func(error)) {
	go func() {
		err := s.SetFlag(ctx, FlagKey, value)
		if err != nil {
			s.logger.Error("Failed to write enabled flag",
				logger.Bool("value", value),
				logger.Error(err))
		}
		if done != nil {
			done(err)
		}
	}()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
