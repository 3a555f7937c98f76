// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ammerola/pgsession/internal/adapters/db"
	"github.com/ammerola/pgsession/internal/core/pool"
	"github.com/ammerola/pgsession/internal/core/services"
	"github.com/ammerola/pgsession/internal/handlers"
	"github.com/ammerola/pgsession/internal/handlers/middleware"
	"github.com/ammerola/pgsession/internal/pkg/config"
	"github.com/ammerola/pgsession/internal/pkg/logger"
)

// Build information injected at compile time
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	slogger := logger.Setup("debug", "json")

	slogger.Info("starting pgsession api",
		slog.String("version", Version),
		slog.String("build_time", BuildTime),
	)

	cfg, err := config.Load(slogger)
	if err != nil {
		slogger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Reconfigure logger with loaded settings
	slogger = logger.Setup(cfg.App.LogLevel, cfg.App.LogFormat)
	slogger.Info("configuration loaded",
		slog.String("environment", cfg.App.Environment),
		slog.Int("pool_size", cfg.Database.PoolSize),
	)

	ctx := context.Background()

	if cfg.Database.RunMigrations {
		if err := db.RunMigrations(ctx, cfg.GetDatabaseURL(), cfg.Database.MigrationPath, slogger); err != nil {
			slogger.Error("failed to run migrations", slog.String("error", err.Error()))
			if cfg.IsProduction() {
				os.Exit(1)
			}
		}
	}

	deps := initializeDependencies(cfg, slogger)

	server := setupHTTPServer(cfg, deps, slogger)

	serverErrors := make(chan error, 1)
	go func() {
		slogger.Info("starting HTTP server",
			slog.String("address", cfg.GetServerAddress()),
		)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogger.Error("server error", slog.String("error", err.Error()))
		}
	case sig := <-shutdown:
		slogger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer shutdownCancel()

		// Drain in-flight requests before closing pooled connections.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slogger.Error("failed to gracefully shutdown server", slog.String("error", err.Error()))
			server.Close()
		}
		deps.pool.Shutdown(shutdownCtx)

		slogger.Info("server shutdown complete")
	}
}

// dependencies holds all application dependencies
type dependencies struct {
	pool           *pool.Pool
	storage        *services.Storage
	expenseHandler *handlers.ExpenseHandler
	healthHandler  *handlers.HealthHandler
}

func initializeDependencies(cfg *config.Config, logger *slog.Logger) *dependencies {
	deps := &dependencies{}

	logger.Info("configuring database access",
		slog.String("host", cfg.Database.Host),
		slog.String("database", cfg.Database.Name),
	)

	connector := db.NewConnector(&db.Config{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		User:           cfg.Database.User,
		Password:       cfg.Database.Password,
		Database:       cfg.Database.Name,
		SSLMode:        cfg.Database.SSLMode,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}, logger)

	checker := db.NewChecker(logger)

	// Connections are dialed lazily, one per request that touches the
	// database; nothing connects at startup.
	deps.pool = pool.New(connector, checker, cfg.Database.PoolSize, logger)

	deps.storage = services.NewStorage(logger)

	deps.expenseHandler = handlers.NewExpenseHandler(deps.storage, logger)
	deps.healthHandler = handlers.NewHealthHandler(deps.pool, deps.storage, cfg, logger)

	logger.Info("all dependencies initialized successfully")
	return deps
}

func setupHTTPServer(cfg *config.Config, deps *dependencies, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	var handler http.Handler = mux

	// Apply middleware in reverse order (innermost first). Database sits
	// innermost so commit and teardown wrap only the handler itself.
	handler = middleware.Database(deps.pool, logger)(handler)

	if cfg.App.Environment != "test" {
		handler = middleware.RequestID(handler)
		handler = middleware.Logger(logger)(handler)
		handler = middleware.Recovery(logger)(handler)
	}

	if cfg.Security.RateLimitRequests > 0 {
		handler = middleware.RateLimit(cfg.Security.RateLimitRequests, cfg.Security.RateLimitDuration)(handler)
	}

	registerRoutes(mux, deps, cfg)

	return &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        handler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
}

func registerRoutes(mux *http.ServeMux, deps *dependencies, cfg *config.Config) {
	apiV1 := "/api/v1"

	mux.HandleFunc("GET /health", deps.healthHandler.Health)
	mux.HandleFunc("GET /ready", deps.healthHandler.Readiness)

	mux.HandleFunc("GET "+apiV1+"/expenses", deps.expenseHandler.ListExpenses)
	mux.HandleFunc("GET "+apiV1+"/expenses/total", deps.expenseHandler.TotalByCategory)
	mux.HandleFunc("GET "+apiV1+"/expenses/{id}", deps.expenseHandler.GetExpense)
	mux.HandleFunc("POST "+apiV1+"/expenses", deps.expenseHandler.CreateExpense)
	mux.HandleFunc("PUT "+apiV1+"/expenses/{id}", deps.expenseHandler.UpdateExpense)
	mux.HandleFunc("DELETE "+apiV1+"/expenses/{id}", deps.expenseHandler.DeleteExpense)

	if cfg.Server.EnableMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
}
