// Package metrics defines Prometheus collectors for the connection pool
// and request lifecycle. Collectors are registered upfront so callers can
// use them without any wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolIdleConnections tracks the current number of idle connections.
	PoolIdleConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pgsession_pool_idle_connections",
		Help: "Number of idle connections currently held by the pool",
	})

	// PoolCapacity tracks the configured idle-pool bound.
	PoolCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pgsession_pool_capacity",
		Help: "Configured maximum number of idle connections",
	})

	// AcquiresTotal counts connections handed out, by source.
	AcquiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pgsession_acquires_total",
		Help: "Connections handed out to requests",
	}, []string{"source"}) // reused | created

	// ConnectionsClosedTotal counts connections discarded, by reason.
	ConnectionsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pgsession_connections_closed_total",
		Help: "Connections closed by the pool",
	}, []string{"reason"}) // unhealthy | invalidated | excess | reset_failed | shutdown | check_error

	// PoolInvalidationsTotal counts pool-wide invalidations triggered by a
	// failed health check.
	PoolInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pgsession_pool_invalidations_total",
		Help: "Times the entire idle pool was discarded after a failed health check",
	})

	// CommitsTotal counts end-of-request commits, by outcome.
	CommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pgsession_commits_total",
		Help: "End-of-request transaction commits",
	}, []string{"outcome"}) // ok | error | skipped

	// RollbacksTotal counts rollbacks issued after statement failures.
	RollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pgsession_rollbacks_total",
		Help: "Rollbacks issued after statement failures",
	})
)
