package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/geocoder89/sevico/internal/config"
	"github.com/geocoder89/sevico/internal/db"
	"github.com/geocoder89/sevico/internal/observability"
)

func main() {
	var direction string

	flag.StringVar(&direction, "direction", "up", "migration direction: up, down or version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)

	if err := migrate(cfg.DB.URL(), direction, log); err != nil {
		log.Error("migration failed", "direction", direction, "err", err)
		os.Exit(1)
	}
}

func migrate(url, direction string, log *slog.Logger) error {
	m, err := db.NewMigrator(url)
	if err != nil {
		return err
	}
	defer m.Close()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
	default:
		return fmt.Errorf("unknown direction %q", direction)
	}
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}

	log.Info("migrations done", "direction", direction, "version", version, "dirty", dirty)
	return nil
}
