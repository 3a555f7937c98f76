// Package sqlerr classifies database driver errors into the two classes
// the rest of the codebase cares about: connectivity failures, which make
// a connection (and likely the whole idle pool) unusable, and statement
// failures, which the server reported for one query and which leave the
// connection itself alive.
package sqlerr

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error classes and codes that indicate the session, not the
// statement, is broken. Class 08 covers connection exceptions; the 57P0x
// codes are reported when the server is shutting down or restarting.
const (
	classConnectionException = "08"

	codeAdminShutdown    = "57P01"
	codeCrashShutdown    = "57P02"
	codeCannotConnectNow = "57P03"
)

// IsConnectivity reports whether err is an operational, driver-level
// failure: the connection could not be established, was lost, or the
// server went away. These errors trigger pool-wide invalidation.
// Context cancellation and deadline errors are excluded even though they
// satisfy net.Error: they describe the caller's request, not the
// connection, and must not condemn a healthy pool.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, classConnectionException) ||
			pgErr.Code == codeAdminShutdown ||
			pgErr.Code == codeCrashShutdown ||
			pgErr.Code == codeCannotConnectNow
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}

// IsStatement reports whether err is a server-reported SQL error
// (malformed statement, constraint violation, bad cast, ...) raised while
// executing a query. The connection survives these; the transaction does
// not, so callers roll back and surface the original error.
func IsStatement(err error) bool {
	if err == nil || IsConnectivity(err) {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
