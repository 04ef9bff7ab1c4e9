package repository

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	gosqlite3 "github.com/mattn/go-sqlite3"
)

// ErrDuplicate reports an insert that collided with a unique key.
var ErrDuplicate = errors.New("duplicate key")

func isUniqueViolation(err error) bool {
	var se gosqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == gosqlite3.ErrConstraintUnique
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code.Name() == "unique_violation"
	}
	return false
}

//go:embed migrations/*.sql
var migrations embed.FS

// Open connects to the store. driver is "sqlite3" or "postgres".
func Open(driver, dsn string) (*sqlx.DB, error) {
	if driver == "sqlite3" {
		// Foreign keys are off by default in SQLite.
		dsn = dsn + sqliteParams(dsn)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if driver == "sqlite3" {
		// A single writer avoids SQLITE_BUSY under concurrent webhook delivery.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func sqliteParams(dsn string) string {
	if strings.Contains(dsn, "?") {
		return "&_foreign_keys=on"
	}
	return "?_foreign_keys=on"
}

// Migrate applies every pending embedded migration.
func Migrate(db *sqlx.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	var drv database.Driver
	switch db.DriverName() {
	case "sqlite3":
		drv, err = sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	case "postgres":
		drv, err = postgres.WithInstance(db.DB, &postgres.Config{})
	default:
		return fmt.Errorf("migrate: unsupported driver %q", db.DriverName())
	}
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, db.DriverName(), drv)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}
