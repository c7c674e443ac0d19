package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vip-club/vip_club/internal/config"
	"github.com/vip-club/vip_club/internal/infra"
	"github.com/vip-club/vip_club/internal/notification"
	"github.com/vip-club/vip_club/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app     *fiber.App
	cfg     config.Config
	runtime *routes.Runtime
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, res *infra.Resources, notifier notification.Notifier, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    12 * 1024 * 1024,
	})

	rt, err := routes.Setup(app, routes.Deps{
		Cfg:      cfg,
		DB:       res.DB,
		Cache:    res.Cache,
		Logger:   logger,
		Notifier: notifier,
	})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, runtime: rt, logger: logger}, nil
}

// Listen starts the background workers and the HTTP server.
func (s *Server) Listen() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.runtime.Start(ctx)
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server, then the background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.app.ShutdownWithContext(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	return errors.Join(httpErr, s.runtime.Close(ctx))
}
