package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/psantana5/dreamina/pkg/models"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore is a Store over database/sql, backed by SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// NewSQLiteStore opens (creating if needed) a SQLite database at path.
func NewSQLiteStore(path string) (*SQLStore, error) {
	if path == "" {
		path = "history.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	// WAL and a busy timeout let the CLI and the gateway share one file.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	return newSQLStore(db, dialectSQLite)
}

// NewPostgresStore connects to cfg.DSN and ensures the schema exists.
func NewPostgresStore(cfg Config) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(lifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return newSQLStore(db, dialectPostgres)
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	timestamp := "DATETIME"
	if s.dialect == dialectPostgres {
		timestamp = "TIMESTAMPTZ"
	}
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS job_history (
		id TEXT PRIMARY KEY,
		handle TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		urls TEXT NOT NULL DEFAULT '[]',
		created_at %[1]s NOT NULL,
		updated_at %[1]s NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_job_history_created ON job_history(created_at);
	`, timestamp)

	_, err := s.db.Exec(schema)
	return err
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Record(ctx context.Context, e Entry) (Entry, error) {
	fillDefaults(&e, s.now())
	urls, err := json.Marshal(nonNil(e.URLs))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal urls: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO job_history (id, handle, kind, prompt, state, reason, urls, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), e.ID, string(e.Handle), string(e.Kind), e.Prompt, e.State, e.Reason, string(urls), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to record job %s: %w", e.Handle, err)
	}
	return e, nil
}

func (s *SQLStore) UpdateOutcome(ctx context.Context, handle models.JobHandle, state, reason string, urls []string) error {
	encoded, err := json.Marshal(nonNil(urls))
	if err != nil {
		return fmt.Errorf("failed to marshal urls: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE job_history SET state = ?, reason = ?, urls = ?, updated_at = ? WHERE handle = ?
	`), state, reason, string(encoded), s.now().UTC(), string(handle))
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", handle, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectColumns = `SELECT id, handle, kind, prompt, state, reason, urls, created_at, updated_at FROM job_history`

func (s *SQLStore) Get(ctx context.Context, handle models.JobHandle) (Entry, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectColumns+` WHERE handle = ?`), string(handle))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]Entry, error) {
	query := selectColumns + ` ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e            Entry
		handle, kind string
		urls         string
	)
	if err := sc.Scan(&e.ID, &handle, &kind, &e.Prompt, &e.State, &e.Reason, &urls, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Entry{}, err
	}
	e.Handle = models.JobHandle(handle)
	e.Kind = models.Kind(kind)
	if urls != "" {
		if err := json.Unmarshal([]byte(urls), &e.URLs); err != nil {
			return Entry{}, fmt.Errorf("failed to unmarshal urls: %w", err)
		}
	}
	if len(e.URLs) == 0 {
		e.URLs = nil
	}
	return e, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
