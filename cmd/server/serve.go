package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/auth"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/logging"
	"github.com/warp/leave-engine/metrics"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/sqlite"
)

const shutdownTimeout = 30 * time.Second

// recordStore is what serve needs from a store beyond the engine contract.
type recordStore interface {
	leave.TxStore
	Ping(ctx context.Context) error
	Close() error
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the leave engine HTTP API.
Configuration comes from the environment (and ./.env); flags override it.`,
		RunE: runServe,
	}
	cmd.Flags().Int("port", 0, "HTTP server port (overrides HTTP_PORT)")
	cmd.Flags().String("db", "", `SQLite database path, ":memory:" for in-memory (overrides DB_PATH)`)
	cmd.Flags().String("driver", "", "record store: sqlite or postgres (overrides DB_DRIVER)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(logging.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.DB.Driver, err)
	}
	defer store.Close()

	authSvc, err := auth.NewService(auth.Config{
		Secret:   cfg.Auth.Secret,
		Username: cfg.Auth.HRUsername,
		Password: cfg.Auth.HRPassword,
		TTL:      cfg.Auth.TokenTTL,
	})
	if err != nil {
		return err
	}
	if cfg.Auth.Secret == config.DefaultSecret {
		logger.Warn().Msg("SECRET_KEY is the default; set it before exposing this server")
	}

	m := metrics.New()
	engine := leave.NewEngine(store,
		leave.WithAuthorizer(authSvc.Authorizer()),
		leave.WithObserver(m.Observer()),
		leave.WithLogger(logger),
	)
	handler := api.NewHandler(engine, authSvc,
		api.WithMetrics(m),
		api.WithLogger(logger),
		api.WithReadiness(store.Ping),
	)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      api.NewRouter(handler, cfg.HTTP.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("driver", cfg.DB.Driver).
			Str("env", cfg.App.Env).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info().Msg("server stopped")
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.HTTP.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("db") {
		cfg.DB.Path, _ = flags.GetString("db")
	}
	if flags.Changed("driver") {
		cfg.DB.Driver, _ = flags.GetString("driver")
	}
}

func openStore(ctx context.Context, cfg config.DBConfig) (recordStore, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s, err := postgres.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
