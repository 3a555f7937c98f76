// internal/core/session/session.go

// Package session binds at most one database connection to the lifetime
// of a single request. The source of truth for "the" connection in a
// request is the Session stored in the request context, not any shared
// application state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ammerola/pgsession/internal/core/ports"
)

// ErrReleased is returned when a connection is requested from a session
// whose teardown already ran.
var ErrReleased = errors.New("session already released")

// Session moves through Unbound -> Bound -> Released. It binds lazily on
// the first connection request, caches the connection for the rest of
// the request, and releases it exactly once.
type Session struct {
	pool   ports.ConnectionPool
	logger *slog.Logger

	mu       sync.Mutex
	conn     ports.Conn
	released bool
}

// New creates an unbound session.
func New(pool ports.ConnectionPool, logger *slog.Logger) *Session {
	return &Session{
		pool:   pool,
		logger: logger.With(slog.String("component", "session")),
	}
}

// Conn returns the connection bound to this session, acquiring one from
// the pool on first use. Every later call within the request returns the
// identical connection; the pool is never re-entered once bound.
func (s *Session) Conn(ctx context.Context) (ports.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil, ErrReleased
	}
	if s.conn != nil {
		return s.conn, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	s.conn = conn
	return conn, nil
}

// Bound reports whether a connection is currently bound.
func (s *Session) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Commit commits the bound connection's transaction. When the session
// never touched the database this is a no-op: no connection is created
// just to commit nothing.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	s.logger.DebugContext(ctx, "committing")
	return conn.Commit(ctx)
}

// Rollback aborts the bound connection's transaction. No-op while
// unbound.
func (s *Session) Rollback(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Rollback(ctx)
}

// Teardown returns the bound connection to the pool. The first call wins;
// every later call is a no-op, so double teardown can never double-release
// a connection. After teardown the session refuses to bind again.
func (s *Session) Teardown(ctx context.Context) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		s.pool.Release(ctx, conn)
	}
}
