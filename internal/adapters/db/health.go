// internal/adapters/db/health.go
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ammerola/pgsession/internal/core/ports"
	"github.com/ammerola/pgsession/internal/pkg/sqlerr"
)

// Checker probes connections before reuse by issuing Reset, which costs a
// single round trip and clears any transaction state left on the
// connection as a side effect.
type Checker struct {
	logger *slog.Logger
}

// NewChecker creates a health checker.
func NewChecker(logger *slog.Logger) *Checker {
	return &Checker{
		logger: logger.With(slog.String("component", "health_checker")),
	}
}

// Check classifies the probe outcome. Connectivity-class failures mean
// the connection is dead and report unhealthy; anything else the server
// said is unexpected here and is propagated instead of swallowed.
func (c *Checker) Check(ctx context.Context, conn ports.Conn) (bool, error) {
	err := conn.Reset(ctx)
	if err == nil {
		return true, nil
	}

	if sqlerr.IsConnectivity(err) {
		c.logger.DebugContext(ctx, "connection failed liveness probe",
			slog.String("error", err.Error()))
		return false, nil
	}

	return false, fmt.Errorf("liveness probe failed unexpectedly: %w", err)
}
