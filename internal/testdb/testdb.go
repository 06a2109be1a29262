// Package testdb provides helpers for integration tests that need a real
// PostgreSQL database. Tests using it carry the integration build tag and
// are skipped when DATABASE_URL is unset.
package testdb

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/phrazzld/metis/internal/platform/postgres"
)

// URLEnvVar names the environment variable holding the test database URL.
const URLEnvVar = "DATABASE_URL"

// GetTestDatabaseURL returns the configured test database URL, or "".
func GetTestDatabaseURL() string {
	return os.Getenv(URLEnvVar)
}

// ShouldSkipDatabaseTest reports whether no test database is configured.
func ShouldSkipDatabaseTest() bool {
	return GetTestDatabaseURL() == ""
}

// GetTestDBWithT opens the test database, applies migrations and registers
// cleanup. The test is skipped when no database is configured.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skipf("%s not set, skipping database test", URLEnvVar)
	}

	db, err := sql.Open(postgres.DriverName, dbURL)
	if err != nil {
		t.Fatalf("open test database %s: %v", MaskURL(dbURL), err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping test database %s: %v", MaskURL(dbURL), err)
	}
	if err := postgres.Migrate(ctx, db, "up"); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	return db
}

// MaskURL hides the password of a database URL for logging.
func MaskURL(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}
