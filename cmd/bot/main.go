package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finbot/bot"
	coreconfig "finbot/core/config"
	"finbot/core/logger"
	coretelegram "finbot/core/telegram"

	"log/slog"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/bot.yaml"
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := coreconfig.LoadBot(cfgPath)
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

	app, err := bot.New(cfg)
	if err != nil {
		logger.L.With("component", "app").Error("bootstrap failed",
			slog.String("event", "bootstrap"),
			slog.String("err", err.Error()),
		)
		os.Exit(1)
	}

	runOpts := app.TelegramRunOptions()

	startedAt := time.Now()
	prevStart := runOpts.OnStart
	runOpts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if prevStart != nil {
			if err := prevStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.L.With("component", "app").Info("app ready",
			slog.String("event", "ready"),
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}

	prevStop := runOpts.OnStop
	runOpts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.L.With("component", "app").Info("shutting down...",
			slog.String("event", "shutdown"),
		)
		if prevStop != nil {
			return prevStop(ctx, rt)
		}
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := coretelegram.RunTelegram(ctx, runOpts); err != nil {
		logger.L.With("component", "app").Error("bot stopped with error",
			slog.String("event", "shutdown"),
			slog.String("err", err.Error()),
		)
		os.Exit(1)
	}
}
