// Package store persists companies, jobs and users. Partial updates and
// filtered listings are compiled by sqlbuild; fixed-shape statements are built
// with squirrel. Both render $n placeholders, which SQLite and Postgres accept.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/rayjc/jobly/migrations"
	"github.com/rayjc/jobly/sqlbuild"
)

// maxPingRetries bounds the connection attempts made by Open.
const maxPingRetries = 5

// Store runs the resource queries against a database.
type Store struct {
	db      *sql.DB
	builder sqlbuild.Builder
	sb      sq.StatementBuilderType
	logger  zerolog.Logger
}

// New creates a Store on db. The dialect must match the driver db was opened with.
func New(db *sql.DB, dialect sqlbuild.Dialect, logger zerolog.Logger) *Store {
	logger = logger.With().Str("component", "store").Logger()
	return &Store{
		db:      db,
		builder: sqlbuild.New(dialect),
		sb:      sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger:  logger,
	}
}

// DialectFor returns the sqlbuild dialect for a database/sql driver name.
func DialectFor(driver string) (sqlbuild.Dialect, error) {
	switch driver {
	case migrations.DriverSQLite:
		return sqlbuild.SQLite{}, nil
	case migrations.DriverPostgres:
		return sqlbuild.Postgres{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open opens the database and waits for it to answer a ping, retrying with
// exponential backoff.
func Open(ctx context.Context, driver, dsn string, logger zerolog.Logger) (*sql.DB, error) {
	if _, err := DialectFor(driver); err != nil {
		return nil, err
	}
	if driver == migrations.DriverSQLite {
		dsn = withForeignKeys(dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == migrations.DriverSQLite {
		// One connection keeps writes serialized and :memory: databases shared.
		db.SetMaxOpenConns(1)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxPingRetries), ctx)
	err = backoff.RetryNotify(func() error {
		return db.PingContext(ctx)
	}, b, func(err error, wait time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", wait).Str("driver", driver).Msg("Database not ready, retrying")
	})
	if err != nil {
		_ = db.Close() //nolint:errcheck // Cleanup on error
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	logger.Info().Str("driver", driver).Msg("Database connection established")
	return db, nil
}

// withForeignKeys turns on SQLite foreign key enforcement unless the DSN
// already sets it. Job references and cascading deletes rely on it.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

func (s *Store) debugQuery(method, query string, args []any) {
	// Arguments may hold password hashes, so only their count is logged.
	s.logger.Debug().
		Str("method", method).
		Str("query", query).
		Int("args", len(args)).
		Msg("executing")
}

// execOne runs a statement that must affect exactly one row. what names the
// operation in returned errors.
func (s *Store) execOne(ctx context.Context, query string, args []any, what string) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// timestamp scans a time column from either driver. SQLite hands back text
// when the column type is unknown to go-sqlite3, as for RETURNING columns.
type timestamp struct {
	t *time.Time
}

func (ts timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*ts.t = v.UTC()
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	case nil:
		*ts.t = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into a timestamp", src)
	}
}

func (ts timestamp) parse(s string) error {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*ts.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}

// checkColumns rejects assignments to columns outside the allow-list.
func checkColumns(assignments []sqlbuild.Assignment, allowed []string) error {
	for _, a := range assignments {
		if !lo.Contains(allowed, a.Column) {
			return validationErrorf("%s cannot be updated", a.Column)
		}
	}
	return nil
}
