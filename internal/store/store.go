package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/i474232898/weather-diary/internal/weather"
)

const table = "weather_records"

// Dialect holds what differs between the supported SQL backends.
type Dialect struct {
	Name   string
	schema []string
	// dollar placeholders ($1, $2...) instead of '?'
	dollar bool
	// copy uses COPY FROM STDIN for bulk inserts
	copy bool
}

var (
	Postgres = Dialect{
		Name:   "postgres",
		dollar: true,
		copy:   true,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS weather_records (
				id             BIGSERIAL PRIMARY KEY,
				city           TEXT NOT NULL,
				day            DATE NOT NULL,
				max_temp       INTEGER NOT NULL,
				min_temp       INTEGER NOT NULL,
				avg_temp       NUMERIC(6,2) NOT NULL,
				weather        TEXT,
				wind_direction TEXT NOT NULL,
				wind_speed     INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_weather_records_city_day ON weather_records (city, day)`,
		},
	}

	SQLite = Dialect{
		Name: "sqlite",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS weather_records (
				id             INTEGER PRIMARY KEY AUTOINCREMENT,
				city           TEXT NOT NULL,
				day            TEXT NOT NULL,
				max_temp       INTEGER NOT NULL,
				min_temp       INTEGER NOT NULL,
				avg_temp       REAL NOT NULL,
				weather        TEXT,
				wind_direction TEXT NOT NULL,
				wind_speed     INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_weather_records_city_day ON weather_records (city, day)`,
		},
	}
)

// DialectFor returns the dialect registered under a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case Postgres.Name:
		return Postgres, nil
	case SQLite.Name:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported store driver %q", driver)
	}
}

// SQLStore is the only component that reads and writes weather records.
// It is safe for concurrent use; every call borrows its own pooled connection.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect

	schemaMu    sync.Mutex
	schemaReady bool
}

// Open opens a store on driver ("postgres" or "sqlite"). No connection is
// made until the first query.
func Open(driver, dsn string) (*SQLStore, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if dialect.Name == SQLite.Name && !strings.HasPrefix(dsn, ":memory:") && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if dialect.Name == SQLite.Name {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}
	return New(db, dialect), nil
}

// New wraps an already opened database.
func New(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Close releases the underlying pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the table and its index if they are absent. It only
// touches the database until the first success.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	if s.schemaReady {
		return nil
	}
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	s.schemaReady = true
	return nil
}

// Count returns the number of stored records.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// rebind rewrites '?' placeholders for dialects that number them.
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.dollar {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func dayArg(t time.Time) string {
	return t.Format(weather.DayLayout)
}

// dayValue scans a day column whichever way the driver hands it back.
type dayValue struct {
	t time.Time
}

func (d *dayValue) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		d.t = time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into day", src)
	}
}

func (d *dayValue) parse(s string) error {
	if len(s) > len(weather.DayLayout) {
		s = s[:len(weather.DayLayout)]
	}
	t, err := weather.ParseDay(s)
	if err != nil {
		return err
	}
	d.t = t
	return nil
}
