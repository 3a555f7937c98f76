package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/pgsession/internal/core/ports"
	"github.com/ammerola/pgsession/internal/core/services"
	"github.com/ammerola/pgsession/internal/core/session"
)

// scriptConn records executed SQL and serves canned rows/errors.
type scriptConn struct {
	execSQL   []string
	execArgs  [][]any
	execErr   error
	queryErr  error
	rows      *fakeRows
	rollbacks int
	commits   int
}

func (c *scriptConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.execSQL = append(c.execSQL, sql)
	c.execArgs = append(c.execArgs, args)
	return pgconn.CommandTag{}, c.execErr
}

func (c *scriptConn) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.execSQL = append(c.execSQL, sql)
	c.execArgs = append(c.execArgs, args)
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	if c.rows == nil {
		c.rows = &fakeRows{idx: -1}
	}
	return c.rows, nil
}

func (c *scriptConn) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (c *scriptConn) Reset(context.Context) error                      { return nil }
func (c *scriptConn) Close(context.Context) error                      { return nil }

func (c *scriptConn) Commit(context.Context) error {
	c.commits++
	return nil
}

func (c *scriptConn) Rollback(context.Context) error {
	c.rollbacks++
	return nil
}

// fakeRows implements pgx.Rows over in-memory values.
type fakeRows struct {
	fields []pgconn.FieldDescription
	data   [][]any
	idx    int
	closed bool
}

func (r *fakeRows) Close()                        { r.closed = true }
func (r *fakeRows) Err() error                    { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	return r.fields
}
func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}
func (r *fakeRows) Values() ([]any, error) { return r.data[r.idx], nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }
func (r *fakeRows) Scan(dest ...any) error {
	if len(dest) == 1 {
		if rs, ok := dest[0].(pgx.RowScanner); ok {
			return rs.ScanRow(r)
		}
	}
	return errors.New("fakeRows: unsupported scan target")
}

// singleConnPool hands out one fixed connection.
type singleConnPool struct {
	conn ports.Conn
}

func (p *singleConnPool) Acquire(context.Context) (ports.Conn, error) { return p.conn, nil }
func (p *singleConnPool) Release(context.Context, ports.Conn)         {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sessionContext(conn ports.Conn) context.Context {
	sess := session.New(&singleConnPool{conn: conn}, testLogger())
	return session.WithContext(context.Background(), sess)
}

func TestStorage_RewritesPlaceholders(t *testing.T) {
	conn := &scriptConn{}
	storage := services.NewStorage(testLogger())

	err := storage.Create(sessionContext(conn),
		"INSERT INTO expenses (id, description, amount) VALUES (?, ?, ?)",
		"id-1", "coffee", "3.50")
	require.NoError(t, err)

	require.Len(t, conn.execSQL, 1)
	assert.Equal(t, "INSERT INTO expenses (id, description, amount) VALUES ($1, $2, $3)", conn.execSQL[0])
	assert.Equal(t, []any{"id-1", "coffee", "3.50"}, conn.execArgs[0])
}

func TestStorage_GetReturnsRowsAsMaps(t *testing.T) {
	conn := &scriptConn{
		rows: &fakeRows{
			idx: -1,
			fields: []pgconn.FieldDescription{
				{Name: "id"},
				{Name: "description"},
			},
			data: [][]any{
				{"a", "coffee"},
				{"b", "lunch"},
			},
		},
	}
	storage := services.NewStorage(testLogger())

	results, err := storage.Get(sessionContext(conn), "SELECT id, description FROM expenses")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "coffee", results[0]["description"])
	assert.Equal(t, "b", results[1]["id"])
	assert.True(t, conn.rows.closed)
}

func TestStorage_GetField(t *testing.T) {
	conn := &scriptConn{
		rows: &fakeRows{
			idx:    -1,
			fields: []pgconn.FieldDescription{{Name: "total"}},
			data:   [][]any{{int64(42)}},
		},
	}
	storage := services.NewStorage(testLogger())

	value, err := storage.GetField(sessionContext(conn), "SELECT count(*) AS total FROM expenses", "total")
	require.NoError(t, err)
	assert.Equal(t, int64(42), value)
}

func TestStorage_GetFieldNoRows(t *testing.T) {
	conn := &scriptConn{rows: &fakeRows{idx: -1}}
	storage := services.NewStorage(testLogger())

	_, err := storage.GetField(sessionContext(conn), "SELECT id FROM expenses WHERE id = ?", "id", "missing")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestStorage_StatementErrorRollsBackAndSurfaces(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key value"}
	conn := &scriptConn{execErr: pgErr}
	storage := services.NewStorage(testLogger())

	err := storage.Create(sessionContext(conn), "INSERT INTO expenses (id) VALUES (?)", "dup")
	require.Error(t, err)
	assert.ErrorIs(t, err, pgErr, "the original error class must reach the caller")
	assert.Equal(t, 1, conn.rollbacks)
}

func TestStorage_ConnectivityErrorDoesNotRollback(t *testing.T) {
	connErr := &pgconn.PgError{Code: "57P01"}
	conn := &scriptConn{execErr: connErr}
	storage := services.NewStorage(testLogger())

	err := storage.Update(sessionContext(conn), "UPDATE expenses SET amount = ? WHERE id = ?", "1.00", "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, connErr)
	assert.Equal(t, 0, conn.rollbacks, "dead connections are not rolled back")
}

func TestStorage_NoSessionInContext(t *testing.T) {
	storage := services.NewStorage(testLogger())

	err := storage.Delete(context.Background(), "DELETE FROM expenses WHERE id = ?", "a")
	assert.ErrorIs(t, err, services.ErrNoSession)
}
