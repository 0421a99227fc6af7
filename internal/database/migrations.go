package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// RunMigrations applies all pending schema migrations for the connection's driver
func (db *DB) RunMigrations() error {
	var (
		driver database.Driver
		err    error
	)
	switch db.driver {
	case DriverPostgres:
		driver, err = postgres.WithInstance(db.conn, &postgres.Config{})
	case DriverSQLite:
		driver, err = sqlite.WithInstance(db.conn, &sqlite.Config{})
	default:
		return fmt.Errorf("unsupported database driver: %s", db.driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationFiles, "migrations/"+string(db.driver))
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(db.driver), driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// m.Close would also close db.conn, which the caller still owns.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
