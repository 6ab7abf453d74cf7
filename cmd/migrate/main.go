// Command migrate applies the transcript archive schema.
//
//	migrate up      apply all pending migrations
//	migrate down    roll back one migration
//	migrate version print the current schema version
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/saludtb/tb-assistant/migrations"
	"github.com/saludtb/tb-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL"))

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate [up|down|version]")
		os.Exit(2)
	}
	cmd := os.Args[1]

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		logger.Error("migration driver failed", "error", err)
		os.Exit(1)
	}
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		logger.Error("migration source failed", "error", err)
		os.Exit(1)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		logger.Error("migrate init failed", "error", err)
		os.Exit(1)
	}

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			logger.Error("version lookup failed", "error", verr)
			os.Exit(1)
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
		return
	default:
		fmt.Fprintln(os.Stderr, "usage: migrate [up|down|version]")
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("migration failed", "command", cmd, "error", err)
		os.Exit(1)
	}
	logger.Info("migration complete", "command", cmd)
}
