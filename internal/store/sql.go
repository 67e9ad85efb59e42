package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

func detectDialect(dsn string) dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return dialectPostgres
	}
	return dialectSQLite
}

// IsPostgresDSN reports whether dsn selects the Postgres backend.
func IsPostgresDSN(dsn string) bool {
	return detectDialect(dsn) == dialectPostgres
}

// SQLStore implements Store on database/sql. SQLite (modernc) and Postgres
// (pgx) share the same queries; placeholders are rebound per dialect.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	profile WriteProfile
}

// Open migrates the schema to the latest version and opens the store.
// dsn is either a SQLite file path or a postgres:// URL.
func Open(dsn string) (*SQLStore, error) {
	if err := Migrate(dsn, "up"); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return OpenExisting(dsn)
}

// OpenExisting opens the store without touching the schema. The lock write
// profile is negotiated from whatever columns the schema has.
func OpenExisting(dsn string) (*SQLStore, error) {
	d := detectDialect(dsn)

	driver, source := "pgx", dsn
	if d == dialectSQLite {
		driver, source = "sqlite", sqliteSource(dsn)
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d == dialectSQLite {
		// Enable WAL mode
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s := &SQLStore{db: db, dialect: d}
	if err := s.negotiateProfile(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func sqliteSource(dsn string) string {
	path := strings.TrimPrefix(dsn, "sqlite://")
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)"
}

// negotiateProfile inspects winner_locks once so lock writes never have to
// guess at the schema.
func (s *SQLStore) negotiateProfile(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT * FROM winner_locks WHERE 1 = 0`)
	if err != nil {
		return fmt.Errorf("failed to inspect winner_locks: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to read winner_locks columns: %w", err)
	}

	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[strings.ToLower(c)] = true
	}

	s.profile = WriteProfileMinimal
	if have["reason"] && have["expires_at"] && have["metadata"] {
		s.profile = WriteProfileFull
	}
	return nil
}

func (s *SQLStore) WriteProfile() WriteProfile {
	return s.profile
}

// Dialect returns "sqlite" or "postgres".
func (s *SQLStore) Dialect() string {
	return s.dialect.String()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for health checks
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
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

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func encodeJSON(v map[string]any) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeJSON(ns sql.NullString) map[string]any {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil
	}
	return out
}

func nullableString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullableInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullableFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullableUnixMilli(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
