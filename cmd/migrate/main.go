package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/storiqa/billing/internal/config"
	"github.com/storiqa/billing/internal/logger"
)

// Applies the .up.sql files under the migrations directory in order,
// recording each in schema_migrations so reruns are no-ops.
func main() {
	dir := flag.String("dir", "migrations", "directory with *.up.sql files")
	flag.Parse()

	log := logger.L

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	db, err := sqlx.Connect("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		log.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if err := run(db, *dir, log); err != nil {
		log.Fatalw("migration failed", "error", err)
	}
	log.Info("migrations up to date")
}

func run(db *sqlx.DB, dir string, log *logger.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, file := range files {
		version := strings.TrimSuffix(filepath.Base(file), ".up.sql")

		var applied bool
		if err := db.Get(&applied,
			"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", version); err != nil {
			return err
		}
		if applied {
			continue
		}

		sql, err := os.ReadFile(file)
		if err != nil {
			return err
		}

		tx, err := db.Beginx()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(sql)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply %s: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		log.Infow("applied migration", "version", version)
	}
	return nil
}
