package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql "pgx" 드라이버
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all embedded migrations up to the latest version.
// Returns the resulting schema version.
func Migrate(databaseURL string) (uint, error) {
	m, cleanup, err := newMigrator(databaseURL)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// MigrateDown rolls back the given number of migrations
func MigrateDown(databaseURL string, steps int) error {
	m, cleanup, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return nil
}

func newMigrator(databaseURL string) (*migrate.Migrate, func(), error) {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open migration connection: %w", err)
	}

	driver, err := migratepgx.WithInstance(conn, &migratepgx.Config{})
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	cleanup := func() {
		_, _ = m.Close()
	}
	return m, cleanup, nil
}
