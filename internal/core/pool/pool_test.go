package pool_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/pgsession/internal/core/pool"
	"github.com/ammerola/pgsession/internal/core/ports"
)

// fakeConn counts driver operations and can be told to fail Reset/Close.
type fakeConn struct {
	id int

	mu        sync.Mutex
	resets    int
	closes    int
	commits   int
	rollbacks int
	resetErr  error
	closeErr  error
}

func (c *fakeConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (c *fakeConn) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (c *fakeConn) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }

func (c *fakeConn) Commit(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits++
	return nil
}

func (c *fakeConn) Rollback(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbacks++
	return nil
}

func (c *fakeConn) Reset(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	return c.resetErr
}

func (c *fakeConn) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return c.closeErr
}

func (c *fakeConn) closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes > 0
}

// fakeConnector creates fakeConns and remembers every one it made.
type fakeConnector struct {
	mu      sync.Mutex
	created []*fakeConn
	err     error
}

func (f *fakeConnector) Connect(context.Context) (ports.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	conn := &fakeConn{id: len(f.created) + 1}
	f.created = append(f.created, conn)
	return conn, nil
}

func (f *fakeConnector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// fakeChecker pops queued outcomes; once the queue is empty every check
// reports healthy.
type fakeChecker struct {
	mu       sync.Mutex
	outcomes []checkOutcome
}

type checkOutcome struct {
	healthy bool
	err     error
}

func (f *fakeChecker) Check(_ context.Context, _ ports.Conn) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.outcomes) == 0 {
		return true, nil
	}
	out := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	return out.healthy, out.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestPool(size int) (*pool.Pool, *fakeConnector, *fakeChecker) {
	connector := &fakeConnector{}
	checker := &fakeChecker{}
	return pool.New(connector, checker, size, testLogger()), connector, checker
}

func TestPool_AcquireCreatesWhenEmpty(t *testing.T) {
	p, connector, _ := newTestPool(2)
	ctx := context.Background()

	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, 1, connector.count())
	assert.Equal(t, 0, p.Stats().Idle)
}

func TestPool_AcquireReusesMostRecentlyReleased(t *testing.T) {
	p, connector, _ := newTestPool(2)
	ctx := context.Background()

	first, err := p.Acquire(ctx)
	require.NoError(t, err)
	second, err := p.Acquire(ctx)
	require.NoError(t, err)

	p.Release(ctx, first)
	p.Release(ctx, second)

	// Stack discipline: the last connection returned is reused first.
	got, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Equal(t, 2, connector.count(), "no new connection should be created")
}

func TestPool_ThreeRequestsWithPoolSizeTwo(t *testing.T) {
	p, connector, _ := newTestPool(2)
	ctx := context.Background()

	conns := make([]ports.Conn, 3)
	for i := range conns {
		c, err := p.Acquire(ctx)
		require.NoError(t, err)
		conns[i] = c
	}
	require.Equal(t, 3, connector.count())

	for _, c := range conns {
		p.Release(ctx, c)
	}

	assert.Equal(t, 2, p.Stats().Idle)
	assert.False(t, connector.created[0].closed())
	assert.False(t, connector.created[1].closed())
	assert.True(t, connector.created[2].closed(), "third connection must be closed, not pooled")
}

func TestPool_ReleaseAtCapacityClosesConnection(t *testing.T) {
	p, connector, _ := newTestPool(1)
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	b, err := p.Acquire(ctx)
	require.NoError(t, err)

	p.Release(ctx, a)
	require.Equal(t, 1, p.Stats().Idle)

	p.Release(ctx, b)
	assert.Equal(t, 1, p.Stats().Idle, "idle count unchanged")
	assert.True(t, connector.created[1].closed())
}

func TestPool_UnhealthyConnectionInvalidatesWholePool(t *testing.T) {
	p, connector, checker := newTestPool(2)
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	b, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(ctx, a)
	p.Release(ctx, b)
	require.Equal(t, 2, p.Stats().Idle)

	checker.outcomes = []checkOutcome{{healthy: false}}

	got, err := p.Acquire(ctx)
	require.NoError(t, err)

	// The popped connection and the remaining idle one are both closed
	// and the returned connection is freshly created.
	assert.True(t, connector.created[0].closed())
	assert.True(t, connector.created[1].closed())
	assert.Equal(t, 3, connector.count())
	assert.Same(t, connector.created[2], got)
	assert.Equal(t, 0, p.Stats().Idle)
}

func TestPool_UnexpectedCheckErrorPropagates(t *testing.T) {
	p, connector, checker := newTestPool(2)
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(ctx, a)

	probeErr := errors.New("protocol desync")
	checker.outcomes = []checkOutcome{{healthy: false, err: probeErr}}

	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, probeErr)
	assert.True(t, connector.created[0].closed(), "failed connection is discarded")
	assert.Equal(t, 1, connector.count(), "no replacement is dialed on unexpected errors")
}

func TestPool_CloseErrorsAreSwallowed(t *testing.T) {
	p, connector, checker := newTestPool(1)
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(ctx, a)

	// A dead connection often fails to close cleanly as well.
	connector.created[0].closeErr = errors.New("broken pipe")
	checker.outcomes = []checkOutcome{{healthy: false}}

	got, err := p.Acquire(ctx)
	require.NoError(t, err, "close failure during invalidation must not surface")
	require.NotNil(t, got)
}

func TestPool_FailedResetOnReleaseClosesConnection(t *testing.T) {
	p, connector, _ := newTestPool(2)
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)

	connector.created[0].resetErr = errors.New("server closed the connection unexpectedly")
	p.Release(ctx, a)

	assert.Equal(t, 0, p.Stats().Idle)
	assert.True(t, connector.created[0].closed())
}

func TestPool_ShutdownClosesIdleAndStopsPooling(t *testing.T) {
	p, connector, _ := newTestPool(2)
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	b, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(ctx, a)

	p.Shutdown(ctx)
	assert.True(t, connector.created[0].closed())
	assert.Equal(t, 0, p.Stats().Idle)

	// A connection still out when shutdown happens is closed on release.
	p.Release(ctx, b)
	assert.True(t, connector.created[1].closed())
	assert.Equal(t, 0, p.Stats().Idle)
}

func TestPool_IdleBoundHoldsUnderConcurrency(t *testing.T) {
	const size = 2
	p, connector, _ := newTestPool(size)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				conn, err := p.Acquire(ctx)
				if err != nil {
					t.Error(err)
					return
				}
				p.Release(ctx, conn)
			}
		}()
	}
	wg.Wait()

	stats := p.Stats()
	assert.LessOrEqual(t, stats.Idle, size)

	// Every connection ever created is either idle in the pool or closed.
	open := 0
	for _, c := range connector.created {
		if !c.closed() {
			open++
		}
	}
	assert.Equal(t, stats.Idle, open, "no connection may leak")
}
