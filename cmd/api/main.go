package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vip-club/vip_club/internal/backend"
	"github.com/vip-club/vip_club/internal/config"
	"github.com/vip-club/vip_club/internal/infra"
	"github.com/vip-club/vip_club/internal/logging"
	"github.com/vip-club/vip_club/internal/notification"
	"github.com/vip-club/vip_club/internal/server"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	res, err := infra.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("connect infrastructure", "error", err)
		os.Exit(1)
	}
	defer res.Close(logger)

	if res.DB != nil {
		if err := backend.Migrate(ctx, res.DB); err != nil {
			logger.Error("migrate database", "error", err)
			os.Exit(1)
		}
	}

	var notifier notification.Notifier
	if cfg.TelegramBotToken != "" {
		tg, err := notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramModerator)
		if err != nil {
			logger.Error("create telegram notifier", "error", err)
			os.Exit(1)
		}
		notifier = notification.Fanout{notification.NewLoggerNotifier(logger), tg}
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, chat messages are only logged")
	}

	srv, err := server.New(cfg, res, notifier, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
