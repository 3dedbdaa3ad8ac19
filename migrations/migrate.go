package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

// Driver names accepted by RunMigrations. They match the database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

//go:embed sqlite/*.sql postgres/*.sql
var schemas embed.FS

// RunMigrations applies all pending migrations to db.
// When migrationsPath is empty the schema embedded in the binary for driverName
// is used, otherwise migrations are read from that directory.
func RunMigrations(db *sql.DB, driverName, migrationsPath string, logger zerolog.Logger) error {
	driver, err := databaseDriver(db, driverName)
	if err != nil {
		return err
	}

	var m *migrate.Migrate
	if migrationsPath != "" {
		m, err = migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", migrationsPath), driverName, driver)
		logger.Info().Str("migrationsPath", migrationsPath).Msg("Running database migrations")
	} else {
		m, err = embeddedMigrations(driverName, driver)
		logger.Info().Str("driver", driverName).Msg("Running embedded database migrations")
	}
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info().Msg("Database is already up to date")
	case err != nil:
		return fmt.Errorf("failed to apply migrations: %w", err)
	default:
		logger.Info().Msg("Database migrations applied successfully")
	}
	return nil
}

func databaseDriver(db *sql.DB, driverName string) (database.Driver, error) {
	switch driverName {
	case DriverSQLite:
		driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite3 driver: %w", err)
		}
		return driver, nil
	case DriverPostgres:
		driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx driver: %w", err)
		}
		return driver, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driverName)
	}
}

func embeddedMigrations(driverName string, driver database.Driver) (*migrate.Migrate, error) {
	dir := "sqlite"
	if driverName == DriverPostgres {
		dir = "postgres"
	}
	src, err := iofs.New(schemas, dir)
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, driverName, driver)
}
