// internal/core/pool/pool.go

// Package pool implements a bounded LIFO cache of idle database
// connections. The bound applies to idle connections only: when the pool
// is empty a new connection is always created, so concurrently open
// connections are limited by request concurrency, not by the pool.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ammerola/pgsession/internal/core/ports"
	"github.com/ammerola/pgsession/internal/pkg/metrics"
)

// DefaultSize is the idle bound used when none is configured.
const DefaultSize = 2

// Pool is a mutex-guarded stack of idle, presumed-healthy connections.
// The lock guards membership only; dialing, probing, and closing happen
// outside it.
type Pool struct {
	connector ports.Connector
	checker   ports.HealthChecker
	size      int
	logger    *slog.Logger

	mu     sync.Mutex
	idle   []ports.Conn
	closed bool
}

// New creates a pool bounded at size idle connections.
func New(connector ports.Connector, checker ports.HealthChecker, size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	metrics.PoolCapacity.Set(float64(size))
	return &Pool{
		connector: connector,
		checker:   checker,
		size:      size,
		logger:    logger.With(slog.String("component", "pool")),
	}
}

// Acquire returns a live connection: the most recently returned idle one
// when it passes its health check, otherwise a freshly created one. A
// failed health check is taken to mean the server restarted and the whole
// idle pool is contaminated, so every idle connection is discarded before
// reconnecting.
func (p *Pool) Acquire(ctx context.Context) (ports.Conn, error) {
	if conn := p.popIdle(); conn != nil {
		healthy, err := p.checker.Check(ctx, conn)
		if err != nil {
			p.closeConn(ctx, conn, "check_error")
			return nil, fmt.Errorf("health check failed: %w", err)
		}
		if healthy {
			p.logger.DebugContext(ctx, "got connection from pool")
			metrics.AcquiresTotal.WithLabelValues("reused").Inc()
			return conn, nil
		}

		p.logger.DebugContext(ctx, "idle connection is dead, assuming pool dead")
		p.closeConn(ctx, conn, "unhealthy")
		p.invalidate(ctx)
	}

	conn, err := p.connector.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	metrics.AcquiresTotal.WithLabelValues("created").Inc()
	return conn, nil
}

// Release resets the connection and returns it to the idle pool, closing
// it instead when the reset fails, the pool is full, or the pool has been
// shut down. Release never reports an error: a connection that cannot be
// pooled is simply discarded.
func (p *Pool) Release(ctx context.Context, conn ports.Conn) {
	if conn == nil {
		return
	}

	if err := conn.Reset(ctx); err != nil {
		p.logger.DebugContext(ctx, "reset failed on release, closing connection",
			slog.String("error", err.Error()))
		p.closeConn(ctx, conn, "reset_failed")
		return
	}

	p.mu.Lock()
	if p.closed || len(p.idle) >= p.size {
		p.mu.Unlock()
		p.logger.DebugContext(ctx, "pool full, closing connection")
		p.closeConn(ctx, conn, "excess")
		return
	}
	p.idle = append(p.idle, conn)
	idle := len(p.idle)
	p.mu.Unlock()

	metrics.PoolIdleConnections.Set(float64(idle))
	p.logger.DebugContext(ctx, "connection returned to pool", slog.Int("idle", idle))
}

// Shutdown closes every idle connection and marks the pool closed. Later
// releases close their connection instead of pooling it; later acquires
// still work and always dial fresh.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	p.closed = true
	stale := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, conn := range stale {
		p.closeConn(ctx, conn, "shutdown")
	}
	metrics.PoolIdleConnections.Set(0)
	p.logger.InfoContext(ctx, "pool shut down", slog.Int("closed", len(stale)))
}

// Stats reports the current idle count and the configured bound.
type Stats struct {
	Idle     int  `json:"idle"`
	Capacity int  `json:"capacity"`
	Closed   bool `json:"closed"`
}

// Stats returns a snapshot of pool state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Idle: len(p.idle), Capacity: p.size, Closed: p.closed}
}

// popIdle removes and returns the most recently pushed idle connection,
// or nil when the pool is empty.
func (p *Pool) popIdle() ports.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.idle)
	if n == 0 {
		return nil
	}
	conn := p.idle[n-1]
	p.idle[n-1] = nil
	p.idle = p.idle[:n-1]
	metrics.PoolIdleConnections.Set(float64(n - 1))
	return conn
}

// invalidate empties the idle pool, closing every member.
func (p *Pool) invalidate(ctx context.Context) {
	p.mu.Lock()
	stale := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, conn := range stale {
		p.closeConn(ctx, conn, "invalidated")
	}
	metrics.PoolIdleConnections.Set(0)
	metrics.PoolInvalidationsTotal.Inc()
	p.logger.DebugContext(ctx, "idle pool invalidated", slog.Int("discarded", len(stale)))
}

// closeConn closes a connection being discarded. Closing a dead
// connection is expected to sometimes fail, so errors are logged and
// never propagated.
func (p *Pool) closeConn(ctx context.Context, conn ports.Conn, reason string) {
	if err := conn.Close(ctx); err != nil {
		p.logger.WarnContext(ctx, "error closing discarded connection",
			slog.String("reason", reason),
			slog.String("error", err.Error()))
	}
	metrics.ConnectionsClosedTotal.WithLabelValues(reason).Inc()
}
