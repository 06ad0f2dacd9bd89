// Package catalog is the relational metadata store of the vault: users,
// folders, files, file versions, shares and the download log.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"coffrefort/pkg/catalog/migrations"
	"coffrefort/pkg/log"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"

	sqliteBusyTimeoutMillis = 5000
	pgUniqueViolation       = "23505"
)

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

// Store manages the vault metadata in SQLite or PostgreSQL.
// Statements are written with "?" placeholders and rebound per driver.
type Store struct {
	db     *sql.DB
	driver string
	mu     sync.RWMutex
	now    func() time.Time
}

// Open connects to the database, applies the embedded migrations and returns the store.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrDatabaseError, driver)
	}

	if driver == DriverSQLite {
		ensureSQLiteDir(dsn)
		dsn = sqliteDSN(dsn)
	}

	database, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDatabaseError, err)
	}

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("%w: failed to reach database: %w", ErrDatabaseError, err)
	}

	store := New(database, driver)
	if err := store.Migrate(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}

	if driver == DriverSQLite {
		// A single connection serializes SQLite writers.
		database.SetMaxOpenConns(1)
	}

	log.Info().Str("driver", driver).Msg("Catalog ready")
	return store, nil
}

// ensureSQLiteDir creates the directory holding a file-backed SQLite
// database. Failures surface when the database is reached.
func ensureSQLiteDir(dsn string) {
	path := sqlitePath(dsn)
	if path == "" {
		return
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Failed to create database directory")
	}
}

// sqlitePath returns the file path of a SQLite DSN, or "" for in-memory databases.
func sqlitePath(dsn string) string {
	if strings.Contains(dsn, "mode=memory") {
		return ""
	}
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}

// sqliteDSN adds the busy timeout and WAL pragmas unless the DSN sets its own.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator +
		"_pragma=busy_timeout(" + strconv.Itoa(sqliteBusyTimeoutMillis) + ")&_pragma=journal_mode(WAL)"
}

// New wraps an already opened database without running migrations.
func New(database *sql.DB, driver string) *Store {
	return &Store{
		db:     database,
		driver: driver,
		now:    time.Now,
	}
}

// Migrate applies pending schema migrations for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	dialect, dir := "sqlite3", "sqlite"
	if s.driver == DriverPostgres {
		dialect, dir = "postgres", "postgres"
	}

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := goose.UpContext(ctx, s.db, dir); err != nil {
		return fmt.Errorf("%w: failed to migrate schema: %w", ErrDatabaseError, err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

// rebind rewrites "?" placeholders to "$n" for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var (
		builder strings.Builder
		n       int
	)
	builder.Grow(len(query) + 8)
	for _, char := range query {
		if char == '?' {
			n++
			builder.WriteByte('$')
			builder.WriteString(strconv.Itoa(n))
			continue
		}
		builder.WriteRune(char)
	}
	return builder.String()
}

func (s *Store) timestamp(value time.Time) time.Time {
	if value.IsZero() {
		return s.now().UTC()
	}
	return value.UTC()
}

// insertReturningID runs an INSERT ... RETURNING id statement.
func (s *Store) insertReturningID(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullableInt64(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	v := value.Int64
	return &v
}

func nullableTime(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	v := value.Time
	return &v
}
