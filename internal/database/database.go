// Package database provides the PostgreSQL connection pool used by the web service and the CLI.
// The Manager satisfies orm.Querier so repositories run their statements through it.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds the configuration for connecting to the PostgreSQL database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// ErrClosed is returned when using a manager whose pool was closed.
var ErrClosed = errors.New("database not initialized")

// Manager manages the PostgreSQL database connection pool.
type Manager struct {
	mu     sync.RWMutex
	dbpool dbPool
}

type options struct {
	newPool func(ctx context.Context, dsn string) (dbPool, error)
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// New creates database manager with a PostgreSQL connection pool using the provided configuration.
// Note: The connection is validated with a ping, but it is not maintained.
func New(ctx context.Context, cfg Config, args ...Options) (*Manager, error) {
	opts := options{
		newPool: func(ctx context.Context, dsn string) (dbPool, error) {
			return pgxpool.New(ctx, dsn)
		},
	}

	for _, opt := range args {
		opt(&opts)
	}

	dbpool, err := opts.newPool(ctx, cfg.URI("postgres"))
	if err != nil {
		return nil, fmt.Errorf("unable to create database connection pool: %w", err)
	}

	slog.Debug("Testing database connection", "host", cfg.Host, "port", cfg.Port)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %v", err)
	}

	slog.Info("Successfully pinged PostgreSQL database", "host", cfg.Host, "port", cfg.Port)
	return &Manager{dbpool: dbpool}, nil
}

func (db *Manager) pool() (dbPool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.dbpool == nil {
		return nil, ErrClosed
	}
	return db.dbpool, nil
}

// Exec runs a statement that returns no rows.
func (db *Manager) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p, err := db.pool()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return p.Exec(ctx, sql, args...)
}

// Query runs a statement returning rows.
func (db *Manager) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	p, err := db.pool()
	if err != nil {
		return nil, err
	}
	return p.Query(ctx, sql, args...)
}

// QueryRow runs a statement returning at most one row.
func (db *Manager) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	p, err := db.pool()
	if err != nil {
		return errRow{err: err}
	}
	return p.QueryRow(ctx, sql, args...)
}

// Ping checks the database is reachable.
func (db *Manager) Ping(ctx context.Context) error {
	p, err := db.pool()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("unable to ping database: %v", err)
	}
	return nil
}

// Close closes the database connection.
//
// If the connection is already closed, it does nothing.
// If the connection does not close within 10 seconds, it returns an error.
func (db *Manager) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.dbpool == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		db.dbpool.Close()
	}()

	select {
	case <-done:
		db.dbpool = nil
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timeout while closing database, connection may still be open")
	}
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error {
	return r.err
}

// URI is a helper method that returns a connection URI for PostgreSQL.
// It does not check the validity of the configuration values.
//
// Security warning: the returned string may include credentials.
func (c Config) URI(scheme string) string {
	host := c.Host
	if c.Port != 0 {
		host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}

	user := url.User(c.User)
	if c.Password != "" {
		user = url.UserPassword(c.User, c.Password)
	}

	u := &url.URL{
		Scheme: scheme,
		User:   user,
		Host:   host,
		Path:   c.DBName,
	}

	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
