package testsupport

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"tripconcierge/internal/adapters/config"
	"tripconcierge/internal/adapters/sqldb"
)

// NewPostgresClient opens the integration database; skipped without env.
func NewPostgresClient(t *testing.T) *sqldb.Client {
	t.Helper()

	client, err := sqldb.OpenPostgres(PostgresConfigFromEnv(t))
	if err != nil {
		t.Fatalf("failed to create postgres client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// NewSQLiteClient opens a throwaway SQLite file under t.TempDir().
func NewSQLiteClient(t *testing.T) *sqldb.Client {
	t.Helper()
	return OpenSQLiteAt(t, filepath.Join(t.TempDir(), "concierge.db"))
}

// OpenSQLiteAt opens its own connection to path, so several clients can
// share one database file the way separate processes would.
func OpenSQLiteAt(t *testing.T, path string) *sqldb.Client {
	t.Helper()

	client, err := sqldb.OpenSQLite(config.SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// TempTableName returns a unique table name and drops the table after the test.
func TempTableName(t *testing.T, client *sqldb.Client) string {
	t.Helper()

	table := fmt.Sprintf("tmp_usage_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = client.DB().ExecContext(context.Background(), "DROP TABLE IF EXISTS "+table)
	})
	return table
}
