package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vaultly/vaultly/internal/chain"
	"github.com/vaultly/vaultly/internal/config"
	"github.com/vaultly/vaultly/internal/routes"
	"github.com/vaultly/vaultly/internal/transfer"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app     *fiber.App
	cfg     config.Config
	sweeper *transfer.Sweeper
}

// New instantiates the HTTP server, delegates route wiring to routes.Setup,
// and builds the reconciliation sweeper over the same ledger the handlers use.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, chainClient chain.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Local development runs against the in-memory chain simulator.
	if chainClient == nil {
		chainClient = chain.NewSimulator()
	}

	reconciler, err := routes.Setup(app, routes.Deps{
		Cfg:    cfg,
		DB:     db,
		Cache:  cache,
		Chain:  chainClient,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	sweeper := transfer.NewSweeper(reconciler, chainClient, cfg.SweepInterval, cfg.SweepHorizon, logger)

	return &Server{app: app, cfg: cfg, sweeper: sweeper}, nil
}

// StartSweeper runs the pending-entry sweeper until ctx is cancelled.
func (s *Server) StartSweeper(ctx context.Context) {
	s.sweeper.Start(ctx)
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
