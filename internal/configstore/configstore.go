// Package configstore holds runtime tunables with delayed effect. Each key
// keeps two slots: the current value and an optional pending value that
// becomes active once its effective_at time passes. Promotion happens lazily
// on read, so no background job is needed and a restart never loses a staged
// change.
package configstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/answerlab/qaeval/internal/db"
)

// Store reads and writes tunables backed by the config_entries table.
type Store struct {
	pool db.Pool
	now  func() time.Time
}

// New creates a Store over the given pool.
func New(pool db.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Get returns the active value for a key. A pending value whose effective
// time has passed is promoted to current first; callers always observe the
// staged value exactly from its effective time onward.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var current string
	var pending *string
	var effectiveAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT current, pending, effective_at FROM config_entries WHERE key = $1`,
		key,
	).Scan(&current, &pending, &effectiveAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, eris.Wrapf(err, "configstore: get %s", key)
	}

	if pending != nil && effectiveAt != nil && !effectiveAt.After(s.now().UTC()) {
		_, err := s.pool.Exec(ctx,
			`UPDATE config_entries SET current = pending, pending = NULL, effective_at = NULL, updated_at = $1
			 WHERE key = $2 AND pending IS NOT NULL AND effective_at <= $1`,
			s.now().UTC(), key,
		)
		if err != nil {
			return "", false, eris.Wrapf(err, "configstore: promote %s", key)
		}
		return *pending, true, nil
	}

	return current, true, nil
}

// Set stores a value for a key. An effective time in the past applies the
// value immediately; a future time stages it without disturbing the current
// value.
func (s *Store) Set(ctx context.Context, key, value string, effectiveAt time.Time) error {
	now := s.now().UTC()

	if !effectiveAt.After(now) {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO config_entries (key, current, pending, effective_at, updated_at)
			 VALUES ($1, $2, NULL, NULL, $3)
			 ON CONFLICT (key) DO UPDATE SET current = $2, pending = NULL, effective_at = NULL, updated_at = $3`,
			key, value, now,
		)
		return eris.Wrapf(err, "configstore: set %s", key)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO config_entries (key, current, pending, effective_at, updated_at)
		 VALUES ($1, '', $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET pending = $2, effective_at = $3, updated_at = $4`,
		key, value, effectiveAt.UTC(), now,
	)
	return eris.Wrapf(err, "configstore: stage %s", key)
}

// Rollback discards a staged value that has not taken effect yet.
func (s *Store) Rollback(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE config_entries SET pending = NULL, effective_at = NULL, updated_at = $1 WHERE key = $2`,
		s.now().UTC(), key,
	)
	return eris.Wrapf(err, "configstore: rollback %s", key)
}

// GetInt returns the key's value parsed as an int, or def when the key is
// missing or unparseable.
func (s *Store) GetInt(ctx context.Context, key string, def int) int {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		logLookupMiss(key, err)
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		zap.L().Warn("configstore: unparseable int", zap.String("key", key), zap.String("value", raw))
		return def
	}
	return v
}

// GetFloat returns the key's value parsed as a float64, or def.
func (s *Store) GetFloat(ctx context.Context, key string, def float64) float64 {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		logLookupMiss(key, err)
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		zap.L().Warn("configstore: unparseable float", zap.String("key", key), zap.String("value", raw))
		return def
	}
	return v
}

// GetDuration returns the key's value parsed as a Go duration, or def.
func (s *Store) GetDuration(ctx context.Context, key string, def time.Duration) time.Duration {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		logLookupMiss(key, err)
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		zap.L().Warn("configstore: unparseable duration", zap.String("key", key), zap.String("value", raw))
		return def
	}
	return v
}

func logLookupMiss(key string, err error) {
	if err != nil {
		zap.L().Warn("configstore: lookup failed", zap.String("key", key), zap.Error(err))
	}
}
