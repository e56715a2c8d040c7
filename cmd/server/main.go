package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	coreconfig "finbot/core/config"
	"finbot/core/logger"
	"finbot/server"
	"finbot/server/storage"

	"log/slog"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/server.yaml"
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := coreconfig.LoadServer(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if err := logger.InitLogger(cfg); err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	appLog := logger.L.With("component", "app")

	if err := storage.RunMigrations(cfg.Database); err != nil {
		appLog.Error("migrations failed",
			slog.String("event", "bootstrap"),
			slog.String("err", err.Error()),
		)
		os.Exit(1)
	}

	db, err := storage.Connect(cfg.Database)
	if err != nil {
		appLog.Error("db connect failed",
			slog.String("event", "bootstrap"),
			slog.String("err", err.Error()),
		)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	srv := server.New(cfg, storage.New(db))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Run(ctx); err != nil {
		appLog.Error("server stopped with error",
			slog.String("event", "shutdown"),
			slog.String("err", err.Error()),
		)
		os.Exit(1)
	}
}
