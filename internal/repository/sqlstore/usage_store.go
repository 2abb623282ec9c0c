// Package sqlstore keeps usage records in a relational table. The same code
// serves PostgreSQL and SQLite; queries are written with ? placeholders and
// rebound for the connection's dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"

	"tripconcierge/internal/adapters/sqldb"
	"tripconcierge/pkg/errors"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// UsageStore implements usage.Store on a key/value table
type UsageStore struct {
	db    *sqlx.DB
	table string

	getQuery    string
	upsertQuery string
	insertQuery string
	swapQuery   string
	deleteQuery string
}

// NewUsageStore prepares queries for table; call Migrate before first use
func NewUsageStore(client *sqldb.Client, table string) (*UsageStore, error) {
	if !tableName.MatchString(table) {
		return nil, errors.NewValidationError("table", "must be a plain SQL identifier", table)
	}

	db := client.DB()
	return &UsageStore{
		db:       db,
		table:    table,
		getQuery: db.Rebind(fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, table)),
		upsertQuery: db.Rebind(fmt.Sprintf(`
			INSERT INTO %s (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, table)),
		insertQuery: db.Rebind(fmt.Sprintf(`
			INSERT INTO %s (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (key) DO NOTHING`, table)),
		swapQuery: db.Rebind(fmt.Sprintf(`
			UPDATE %s SET value = ?, updated_at = ? WHERE key = ? AND value = ?`, table)),
		deleteQuery: db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, table)),
	}, nil
}

// Migrate creates the table if it does not exist
func (s *UsageStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`, s.table)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrapf(err, "failed to create usage table %s", s.table)
	}
	return nil
}

func (s *UsageStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.GetContext(ctx, &value, s.getQuery, key)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "usage key %s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get usage: key=%s", key)
	}
	return []byte(value), nil
}

func (s *UsageStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.upsertQuery, key, string(value), time.Now().UnixMilli()); err != nil {
		return errors.Wrapf(err, "failed to save usage: key=%s", key)
	}
	return nil
}

func (s *UsageStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.deleteQuery, key); err != nil {
		return errors.Wrapf(err, "failed to delete usage: key=%s", key)
	}
	return nil
}

// CompareAndSwap writes value only if key still holds old (absent when old
// is nil). Each statement is atomic on its own, so replicas sharing the
// database cannot lose each other's increments.
func (s *UsageStore) CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error) {
	now := time.Now().UnixMilli()

	var (
		res sql.Result
		err error
	)
	if old == nil {
		res, err = s.db.ExecContext(ctx, s.insertQuery, key, string(value), now)
	} else {
		res, err = s.db.ExecContext(ctx, s.swapQuery, string(value), now, key, string(old))
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to swap usage: key=%s", key)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "failed to swap usage: key=%s", key)
	}
	return n == 1, nil
}
