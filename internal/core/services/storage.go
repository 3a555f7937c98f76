// internal/core/services/storage.go

// Package services holds the per-statement execution helper that consumes
// the session/pool core. It substitutes driver-neutral placeholders,
// executes against the request's bound connection, and converts rows into
// plain maps.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ammerola/pgsession/internal/core/ports"
	"github.com/ammerola/pgsession/internal/core/session"
	"github.com/ammerola/pgsession/internal/pkg/metrics"
	"github.com/ammerola/pgsession/internal/pkg/sqlerr"
)

// ErrNoSession is returned when a statement is executed outside a
// request context carrying a database session.
var ErrNoSession = errors.New("no database session bound to context")

// Storage executes SQL templates written with `?` placeholders against
// the connection bound to the current request. All statements in one
// request observe the same connection and transaction.
type Storage struct {
	logger *slog.Logger
}

// NewStorage creates a storage service.
func NewStorage(logger *slog.Logger) *Storage {
	return &Storage{
		logger: logger.With(slog.String("service", "storage")),
	}
}

// Create executes an INSERT statement.
func (s *Storage) Create(ctx context.Context, query string, args ...any) error {
	return s.execute(ctx, query, args)
}

// CreateReturning executes an INSERT ... RETURNING statement and returns
// the named field from the inserted row.
func (s *Storage) CreateReturning(ctx context.Context, query, field string, args ...any) (any, error) {
	return s.GetField(ctx, query, field, args...)
}

// Update executes an UPDATE statement.
func (s *Storage) Update(ctx context.Context, query string, args ...any) error {
	return s.execute(ctx, query, args)
}

// Delete executes a DELETE statement.
func (s *Storage) Delete(ctx context.Context, query string, args ...any) error {
	return s.execute(ctx, query, args)
}

// Get executes a SELECT and returns every row as a column-name keyed map.
func (s *Storage) Get(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	sess, conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	rewritten, err := rewritePlaceholders(query)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "executing query", slog.String("sql", rewritten))

	rows, err := conn.Query(ctx, rewritten, args...)
	if err != nil {
		return nil, s.statementFailed(ctx, sess, err)
	}

	results, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, s.statementFailed(ctx, sess, err)
	}

	s.logger.DebugContext(ctx, "query returned rows", slog.Int("count", len(results)))
	return results, nil
}

// GetField executes a SELECT and returns the named field of the first
// row. pgx.ErrNoRows is returned when the result set is empty.
func (s *Storage) GetField(ctx context.Context, query, field string, args ...any) (any, error) {
	results, err := s.Get(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("field %q: %w", field, pgx.ErrNoRows)
	}
	value, ok := results[0][field]
	if !ok {
		return nil, fmt.Errorf("field %q not present in result row", field)
	}
	return value, nil
}

// execute runs a statement that returns no rows.
func (s *Storage) execute(ctx context.Context, query string, args []any) error {
	sess, conn, err := s.conn(ctx)
	if err != nil {
		return err
	}

	rewritten, err := rewritePlaceholders(query)
	if err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "executing statement", slog.String("sql", rewritten))

	if _, err := conn.Exec(ctx, rewritten, args...); err != nil {
		return s.statementFailed(ctx, sess, err)
	}
	return nil
}

// conn resolves the request's session and its bound connection.
func (s *Storage) conn(ctx context.Context) (*session.Session, ports.Conn, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, nil, ErrNoSession
	}
	conn, err := sess.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	return sess, conn, nil
}

// statementFailed rolls back the request transaction on server-reported
// statement errors so the connection stays reusable, then surfaces the
// original error class to the caller. Connectivity failures pass through
// untouched: the pool deals with those on release.
func (s *Storage) statementFailed(ctx context.Context, sess *session.Session, err error) error {
	if !sqlerr.IsStatement(err) {
		return fmt.Errorf("database error: %w", err)
	}

	s.logger.ErrorContext(ctx, "statement failed, rolling back",
		slog.String("error", err.Error()))
	metrics.RollbacksTotal.Inc()

	if rbErr := sess.Rollback(ctx); rbErr != nil {
		s.logger.ErrorContext(ctx, "rollback failed",
			slog.String("error", rbErr.Error()))
	}
	return fmt.Errorf("statement failed: %w", err)
}

// rewritePlaceholders converts driver-neutral `?` placeholders into the
// numbered `$n` form postgres expects.
func rewritePlaceholders(query string) (string, error) {
	rewritten, err := squirrel.Dollar.ReplacePlaceholders(query)
	if err != nil {
		return "", fmt.Errorf("failed to rewrite placeholders: %w", err)
	}
	return rewritten, nil
}
