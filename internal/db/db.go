package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/sentinelpest/fieldsync/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open opens (or creates) the device database at dbPath and applies any
// pending schema migrations. A database that cannot be opened or migrated is
// reported as StoreUnavailable: callers must surface it instead of dropping
// user data.
func Open(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL&_foreign_keys=on", dbPath)
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, domain.NewStoreUnavailable(dbPath, fmt.Errorf("failed to open database: %w", err))
	}

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, domain.NewStoreUnavailable(dbPath, fmt.Errorf("failed to ping database: %w", err))
	}

	if err := runMigrations(database); err != nil {
		if cerr := database.Close(); cerr != nil {
			err = fmt.Errorf("%w (also failed to close db: %v)", err, cerr)
		}
		return nil, domain.NewStoreUnavailable(dbPath, fmt.Errorf("failed to run migrations: %w", err))
	}

	return database, nil
}

func runMigrations(database *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	drv, err := sqlitemigrate.WithInstance(database, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

var testSeq atomic.Int64

// OpenForTesting opens a uniquely named in-memory database with the full
// schema applied. Each call gets an independent database so parallel tests
// do not share state.
func OpenForTesting() (*sql.DB, error) {
	name := fmt.Sprintf("fieldsync_test_%d", testSeq.Add(1))
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}
	// A shared-cache memory database lives only while a connection is open.
	database.SetMaxIdleConns(1)
	if err := runMigrations(database); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}
