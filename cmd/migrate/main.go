package main

import (
	"os"

	"github.com/carewire/hospital-router/internal/config"
	"github.com/carewire/hospital-router/internal/repository/postgres"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	source := os.Getenv("MIGRATIONS_PATH")
	if source == "" {
		source = "file://migrations"
	}

	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Msg("running call log migrations")

	if err := postgres.RunMigrations(cfg.Database.DSN(), source); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
}
