package storage

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	coreconfig "finbot/core/config"
	"finbot/core/logger"
	"log/slog"
)

// RunMigrations applies pending schema migrations from the migrations directory.
// It waits for the database to accept connections first.
func RunMigrations(cfg coreconfig.DatabaseConfig) error {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
	)

	if err := WaitForPostgres(dsn, 30*time.Second); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working dir: %w", err)
	}
	source := "file://" + cwd + "/migrations"

	m, err := migrate.New(source, dsn)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			logger.MIG.Warn("migrate close",
				slog.String("event", "db.migrate"),
				slog.Any("source_err", srcErr),
				slog.Any("db_err", dbErr),
			)
		}
	}()

	start := time.Now()
	err = m.Up()
	switch {
	case err == nil:
		version, dirty, _ := m.Version()
		logger.MIG.Info("migrations applied",
			slog.String("event", "db.migrate"),
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	case errors.Is(err, migrate.ErrNoChange):
		logger.MIG.Info("schema up to date",
			slog.String("event", "db.migrate"),
		)
	default:
		logger.MIG.Error("migrations failed",
			slog.String("event", "db.migrate"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
