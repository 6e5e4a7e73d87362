package pg

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/pkg/errors"

	_ "github.com/newrelic/go-agent/v3/integrations/nrpgx"
)

// Config describes a password authenticated connection pool.
type Config struct {
	User     string
	Password string
	Host     string
	Port     int
	DbName   string

	// Defaults to "disable"
	SSLMode string

	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// DSN renders the config as a postgres URL.
func (c *Config) DSN() string {
	sslMode := c.SSLMode
	if len(sslMode) == 0 {
		sslMode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DbName,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

// New opens a pool through the New Relic instrumented pgx driver and checks
// that the database is reachable.
func New(config *Config) (*sql.DB, error) {
	return NewFromDSN(config.DSN(), config)
}

// NewFromDSN is New for an already assembled connection string. Pool limits
// are taken from config when it is non-nil.
func NewFromDSN(dsn string, config *Config) (*sql.DB, error) {
	db, err := sql.Open("nrpgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres connection pool")
	}

	if config != nil {
		if config.MaxOpenConnections > 0 {
			db.SetMaxOpenConns(config.MaxOpenConnections)
		}
		if config.MaxIdleConnections > 0 {
			db.SetMaxIdleConns(config.MaxIdleConnections)
		}
		if config.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(config.ConnMaxLifetime)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}

	return db, nil
}
