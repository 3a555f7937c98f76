// internal/core/ports/database.go
package ports

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the driver capability set the core depends on: per-statement
// execution plus transaction and lifecycle control over a single live
// database session. A Conn is owned by exactly one holder at a time,
// either the pool (idle) or one request session (in use), and is never
// shared concurrently.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row

	// Commit commits any open transaction. No-op when none is open.
	Commit(ctx context.Context) error

	// Rollback aborts any open transaction. No-op when none is open.
	Rollback(ctx context.Context) error

	// Reset clears pending transaction state and probes that the server
	// is still reachable. A failing Reset is how dead connections are
	// detected before reuse.
	Reset(ctx context.Context) error

	// Close tears down the underlying session.
	Close(ctx context.Context) error
}

// Connector creates new connections. Any driver exposing the Conn
// capability set is substitutable behind this interface.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// HealthChecker decides whether an idle connection is still usable.
// The outcome is a three-way tag: (true, nil) healthy, (false, nil)
// unhealthy because of a connectivity-class failure, (false, err) an
// unexpected error that must be propagated rather than swallowed.
type HealthChecker interface {
	Check(ctx context.Context, conn Conn) (bool, error)
}

// ConnectionPool hands out live connections and takes them back. Release
// never fails from the caller's point of view: connections that cannot
// be pooled are closed internally.
type ConnectionPool interface {
	Acquire(ctx context.Context) (Conn, error)
	Release(ctx context.Context, conn Conn)
}
