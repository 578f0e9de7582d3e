// Package db provides a lazy, reconnecting handle to the MySQL store.
//
// The handle hands out cursor-scoped units of work. Before a cursor is
// issued the underlying pool is pinged and reopened once if the ping fails,
// so callers always receive a cursor backed by a live connection. Every
// statement auto-commits; this layer offers no multi-statement transactions.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-sql-driver/mysql"
)

// Config holds the connection parameters for the relational store.
type Config struct {
	// Host is the database address in host:port form.
	Host string

	// Name is the database (schema) name.
	Name string

	// User is the database user.
	User string

	// Password is the database password.
	Password string
}

// DSN formats the config as a go-sql-driver DSN. parseTime is enabled so
// date-time columns scan as time.Time values.
func (c Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = c.Host
	mc.DBName = c.Name
	mc.ParseTime = true
	return mc.FormatDSN()
}

// Handle is a shared, reconnecting handle to the store. It is safe for
// concurrent use; the database/sql pool underneath synchronizes access.
type Handle struct {
	cfg Config
	log *slog.Logger

	mu   sync.Mutex
	pool *sql.DB

	// open is swapped out by tests to inject a mock pool.
	open func() (*sql.DB, error)
}

// New creates a handle. No connection is made until Connect or the first
// Cursor call.
func New(cfg Config, log *slog.Logger) *Handle {
	h := &Handle{cfg: cfg, log: log}
	h.open = func() (*sql.DB, error) {
		return sql.Open("mysql", cfg.DSN())
	}
	return h
}

// NewFromPool wraps an existing pool, primarily for tests. The handle keeps
// the ping-before-use behavior but cannot reopen the pool on ping failure.
func NewFromPool(pool *sql.DB, log *slog.Logger) *Handle {
	h := &Handle{log: log, pool: pool}
	h.open = func() (*sql.DB, error) {
		return nil, fmt.Errorf("cannot reopen externally provided pool")
	}
	return h
}

// Connect opens the connection pool and verifies it with a ping.
func (h *Handle) Connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pool == nil {
		if err := h.reopenLocked(); err != nil {
			return err
		}
	}
	if err := h.pool.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	return nil
}

func (h *Handle) reopenLocked() error {
	if h.pool != nil {
		_ = h.pool.Close()
		h.pool = nil
	}
	pool, err := h.open()
	if err != nil {
		return fmt.Errorf("database open failed: %w", err)
	}
	h.pool = pool
	return nil
}

// Cursor returns a unit of work backed by a live connection. The pool is
// pinged first and reopened once on failure; if the reconnect ping also
// fails the error propagates to the caller.
func (h *Handle) Cursor(ctx context.Context) (*Cursor, error) {
	h.mu.Lock()
	if h.pool == nil {
		if err := h.reopenLocked(); err != nil {
			h.mu.Unlock()
			return nil, err
		}
	}
	if err := h.pool.PingContext(ctx); err != nil {
		h.log.Warn("Database ping failed, reconnecting", "err", err)
		if rerr := h.reopenLocked(); rerr != nil {
			h.mu.Unlock()
			return nil, rerr
		}
		if err := h.pool.PingContext(ctx); err != nil {
			h.mu.Unlock()
			return nil, fmt.Errorf("database reconnect failed: %w", err)
		}
	}
	pool := h.pool
	h.mu.Unlock()

	conn, err := pool.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return &Cursor{conn: conn}, nil
}

// Close releases the connection pool.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pool == nil {
		return nil
	}
	err := h.pool.Close()
	h.pool = nil
	return err
}

// Cursor is a single-connection unit of work. Callers must Close it when
// done to return the connection to the pool.
type Cursor struct {
	conn *sql.Conn
}

// Exec runs a statement that returns no rows.
func (c *Cursor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

// Query runs a statement that returns rows.
func (c *Cursor) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

// QueryRow runs a statement expected to return at most one row.
func (c *Cursor) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

// Close returns the connection to the pool.
func (c *Cursor) Close() error {
	return c.conn.Close()
}
