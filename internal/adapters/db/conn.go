// internal/adapters/db/conn.go
package db

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ammerola/pgsession/internal/core/ports"
)

// Config holds database connection configuration
type Config struct {
	Host           string
	Port           string
	User           string
	Password       string
	Database       string
	SSLMode        string
	ConnectTimeout time.Duration
}

// DefaultConfig returns default database configuration
func DefaultConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           "5432",
		User:           "pgsession",
		Password:       "pgsession_dev_2025",
		Database:       "pgsession",
		SSLMode:        "disable",
		ConnectTimeout: time.Second * 10,
	}
}

// DSN returns the keyword/value connection string for this config.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		c.Host, c.Port, c.User, c.Password,
		c.Database, c.SSLMode, int(c.ConnectTimeout.Seconds()),
	)
}

// Connector opens single wire connections. Pooling is deliberately not
// delegated to pgxpool: the pool layer owns connection reuse, so each
// ports.Conn wraps exactly one *pgx.Conn.
type Connector struct {
	config *Config
	logger *slog.Logger
}

// NewConnector creates a connector for the given configuration.
func NewConnector(config *Config, logger *slog.Logger) *Connector {
	if config == nil {
		config = DefaultConfig()
	}
	return &Connector{
		config: config,
		logger: logger.With(slog.String("component", "db")),
	}
}

// Connect dials a new database session.
func (c *Connector) Connect(ctx context.Context) (ports.Conn, error) {
	connConfig, err := pgx.ParseConfig(c.config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	pgxConn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	c.logger.DebugContext(ctx, "database connection established",
		slog.String("host", c.config.Host),
		slog.String("database", c.config.Database),
	)

	return &Conn{conn: pgxConn}, nil
}

// Postgres transaction status bytes as reported on the wire protocol.
const (
	txStatusIdle   = 'I'
	txStatusInTx   = 'T'
	txStatusFailed = 'E'
)

// Conn adapts a single *pgx.Conn to ports.Conn. A transaction is opened
// lazily before the first statement, so all statements issued within one
// request share a transaction that is committed (or rolled back) exactly
// once at request end.
type Conn struct {
	conn *pgx.Conn
}

// Exec runs a statement that returns no rows.
func (c *Conn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if err := c.ensureTx(ctx); err != nil {
		return pgconn.CommandTag{}, err
	}
	return c.conn.Exec(ctx, sql, args...)
}

// Query runs a statement that returns rows.
func (c *Conn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if err := c.ensureTx(ctx); err != nil {
		return nil, err
	}
	return c.conn.Query(ctx, sql, args...)
}

// QueryRow runs a statement that returns at most one row.
func (c *Conn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if err := c.ensureTx(ctx); err != nil {
		return errRow{err: err}
	}
	return c.conn.QueryRow(ctx, sql, args...)
}

// Commit commits the open transaction, if any.
func (c *Conn) Commit(ctx context.Context) error {
	if c.conn.PgConn().TxStatus() == txStatusIdle {
		return nil
	}
	if _, err := c.conn.Exec(ctx, "commit"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the open transaction, if any.
func (c *Conn) Rollback(ctx context.Context) error {
	if c.conn.PgConn().TxStatus() == txStatusIdle {
		return nil
	}
	if _, err := c.conn.Exec(ctx, "rollback"); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// Reset clears any pending transaction and probes server liveness. Either
// path performs one round trip, which is what makes Reset usable as a
// pre-reuse health probe.
func (c *Conn) Reset(ctx context.Context) error {
	if c.conn.IsClosed() {
		return fmt.Errorf("connection is closed: %w", net.ErrClosed)
	}
	if c.conn.PgConn().TxStatus() != txStatusIdle {
		_, err := c.conn.Exec(ctx, "rollback")
		return err
	}
	return c.conn.Ping(ctx)
}

// Close terminates the wire connection.
func (c *Conn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// ensureTx opens a transaction if the connection is idle. In a failed
// transaction the server rejects new statements with its own error, which
// is the behavior callers expect from an aborted transaction.
func (c *Conn) ensureTx(ctx context.Context) error {
	if c.conn.PgConn().TxStatus() != txStatusIdle {
		return nil
	}
	if _, err := c.conn.Exec(ctx, "begin"); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	return nil
}

// errRow satisfies pgx.Row for statements that failed before reaching the
// server.
type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
