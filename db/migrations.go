package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var fs embed.FS

// Migrate runs the database migrations for a SQL driver using golang-migrate
func Migrate(driver, dsn string) error {
	log.WithFields(log.Fields{
		"driver": driver,
	}).Info("Running migrations")

	m, err := migrator(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	return nil
}

// Rollback reverts the last applied migration
func Rollback(driver, dsn string) error {
	log.WithFields(log.Fields{
		"driver": driver,
	}).Info("Rolling back migration")

	m, err := migrator(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}

	return nil
}

func migrator(driver, dsn string) (*migrate.Migrate, error) {
	var dir, url string
	switch driver {
	case DriverSQLite:
		dir, url = "migrations/sqlite", "sqlite://"+dsn
	case DriverPostgres:
		dir, url = "migrations/postgres", pgx5URL(dsn)
	default:
		return nil, fmt.Errorf("driver %q has no migrations", driver)
	}

	// Create a new source instance using the embedded migrations
	d, err := iofs.New(fs, dir)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, url)
	if err != nil {
		return nil, fmt.Errorf("error creating migrate instance: %w", err)
	}
	return m, nil
}

// pgx5URL rewrites a postgres:// DSN to the scheme the pgx/v5 migrate driver registers
func pgx5URL(dsn string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme)
		}
	}
	return dsn
}
