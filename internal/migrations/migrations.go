// Package migrations carries the database schema and applies it with
// golang-migrate. The SQL files are embedded so the binary needs no
// migrations directory on disk.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var files embed.FS

// Source returns the embedded migration files as a golang-migrate source.
func Source() (source.Driver, error) {
	src, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return src, nil
}

type Runner struct {
	databaseURL string
	logger      *slog.Logger
	migrator    *migrate.Migrate
}

// NewRunner prepares a runner for a pgx5:// database URL.
func NewRunner(databaseURL string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{databaseURL: databaseURL, logger: logger}
}

func (r *Runner) initialize() error {
	if r.migrator != nil {
		return nil
	}
	src, err := Source()
	if err != nil {
		return err
	}
	migrator, err := migrate.NewWithSourceInstance("iofs", src, r.databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	r.migrator = migrator
	return nil
}

// Up applies every pending migration. A dirty schema is reported, not forced.
func (r *Runner) Up() error {
	if err := r.initialize(); err != nil {
		return err
	}

	if version, dirty, err := r.migrator.Version(); err == nil && dirty {
		return fmt.Errorf("schema version %d is dirty, fix it manually", version)
	}

	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, _, err := r.migrator.Version()
	switch {
	case err == nil:
		r.logger.Info("schema migrated", slog.Uint64("version", uint64(version)))
	case errors.Is(err, migrate.ErrNilVersion):
		r.logger.Info("schema has no migrations applied")
	default:
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	return nil
}

func (r *Runner) Close() error {
	if r.migrator == nil {
		return nil
	}
	sourceErr, databaseErr := r.migrator.Close()
	if sourceErr != nil {
		return fmt.Errorf("error closing migrator source: %w", sourceErr)
	}
	if databaseErr != nil {
		return fmt.Errorf("error closing migrator database: %w", databaseErr)
	}
	return nil
}
