package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/vnetscan/vnetscan/utils/customlog"
	_ "modernc.org/sqlite" // The CGO-free SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the global connection pool for the application. It is initialized by InitDB.
var DB *sqlx.DB

// ErrNotInitialized is returned by queries issued before InitDB.
var ErrNotInitialized = errors.New("history database is not initialized")

// InitDB opens the SQLite history database, runs migrations, and sets up the global DB variable.
func InitDB(dbPath string) error {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	// foreign keys are off by default in SQLite; run deletion cascades rely on them
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between the probe service and API reads
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return fmt.Errorf("database migration failed: %w", err)
	}

	DB = db
	return nil
}

// CloseDB closes the global pool, if open.
func CloseDB() error {
	if DB == nil {
		return nil
	}
	err := DB.Close()
	DB = nil
	return err
}

func conn() (*sqlx.DB, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}
	return DB, nil
}

// runMigrations applies all pending database migrations.
func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source driver: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	before, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("could not get db version: %w", err)
	}
	if dirty {
		return fmt.Errorf("history database is in a dirty state (version %d); delete the file to start over", before)
	}

	if err := m.Up(); err != nil {
		// "no change" is the steady state
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	if after, _, err := m.Version(); err == nil {
		customlog.Printf(customlog.Info, "History schema migrated from version %d to %d\n", before, after)
	}
	return nil
}
