// Package sqlstoretest opens migrated throwaway stores for tests.
package sqlstoretest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"usalli/internal/repository/sqlstore"
)

// DSN returns a SQLite file DSN inside dir with foreign keys enforced.
func DSN(dir string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		filepath.Join(dir, "bank.db"),
	)
}

// New opens a migrated SQLite store that is closed when the test ends.
func New(t testing.TB) *sqlstore.Store {
	t.Helper()

	store, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, DSN(t.TempDir()), sqlstore.Options{})
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate sqlite store: %v", err)
	}
	return store
}
