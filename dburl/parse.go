// Package dburl handles PostgreSQL connection strings.
package dburl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotPostgres = errors.New("not a PostgreSQL URL")
	ErrInvalidURL  = errors.New("invalid database URL")
)

// Validate checks that dbURL is a PostgreSQL connection string, either a
// postgres:// URL or a keyword/value DSN such as "host=/tmp user=postgres".
func Validate(dbURL string) error {
	if strings.TrimSpace(dbURL) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if strings.Contains(dbURL, "://") {
		u, err := url.Parse(dbURL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		switch strings.ToLower(u.Scheme) {
		case "postgres", "postgresql":
		default:
			return fmt.Errorf("%w: %s", ErrNotPostgres, u.Scheme)
		}
	}
	if _, err := pgconn.ParseConfig(dbURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return nil
}

// IsLocalhost returns true if the URL points to localhost (127.0.0.1, localhost, or ::1)
// or to a Unix socket directory.
func IsLocalhost(dbURL string) bool {
	cfg, err := pgconn.ParseConfig(dbURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(cfg.Host)
	return host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasPrefix(host, "/")
}

// BuildPostgresURL constructs a PostgreSQL connection URL.
// Format: postgres://user@host:port/dbname
func BuildPostgresURL(dbname, user, host string, port int) string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", user, host, port, dbname)
}

// ParseDatabaseName extracts the database name from a URL or DSN.
// Returns an empty string if no database name is present.
func ParseDatabaseName(dbURL string) string {
	if !strings.Contains(dbURL, "://") {
		cfg, err := pgconn.ParseConfig(dbURL)
		if err != nil {
			return ""
		}
		return cfg.Database
	}
	u, err := url.Parse(dbURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// WithDatabaseName returns a new URL with the database name replaced.
func WithDatabaseName(dbURL, dbname string) (string, error) {
	u, err := url.Parse(dbURL)
	if err != nil || u.Scheme == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, dbURL)
	}

	u.Path = "/" + dbname
	return u.String(), nil
}

// TestDatabaseURL returns the test database URL for a given dev URL.
// Convention: test database is named {dev_db}_test
func TestDatabaseURL(devURL string) (string, error) {
	devDBName := ParseDatabaseName(devURL)
	if devDBName == "" {
		return "", fmt.Errorf("could not parse database name from URL")
	}
	return WithDatabaseName(devURL, devDBName+"_test")
}

// Redact hides the password of a URL for display.
func Redact(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil || u.User == nil {
		return dbURL
	}
	return u.Redacted()
}
