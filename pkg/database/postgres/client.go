package pg

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	_ "github.com/newrelic/go-agent/v3/integrations/nrpgx"
)

// Config describes a password authenticated postgres connection pool.
type Config struct {
	User     string
	Password string
	Host     string
	Port     int
	DbName   string
	SSLMode  string

	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// DSN returns the connection URL for the config.
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if len(sslMode) == 0 {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DbName, sslMode,
	)
}

// Open returns a DB connection pool using username/password credentials.
//
// Connections go through the New Relic instrumented pgx driver, so queries
// made with a context carrying a transaction are recorded as datastore
// segments.
func Open(config Config) (*sql.DB, error) {
	db, err := sql.Open("nrpgx", config.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "error opening db")
	}

	if config.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(config.MaxOpenConnections)
	}
	if config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(config.MaxIdleConnections)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	// Check if the connection was successful
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "error pinging db")
	}

	return db, nil
}
