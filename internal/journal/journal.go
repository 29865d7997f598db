// Package journal keeps a SQLite history of sync outcomes: which remote
// operation ran, for which kind, and whether it worked. It never stores the
// collections themselves.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"caixa/internal/remote"
	"caixa/internal/services"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultLimit is used by Recent when the caller passes a non-positive limit.
const DefaultLimit = 50

// Entry is one recorded operation.
type Entry struct {
	ID            int64
	RequestID     string
	Kind          string
	Operation     string
	TransactionID string
	Success       bool
	Error         string
	ErrorType     string
	Count         int
	DurationMs    int64
	RecordedAt    time.Time
}

type Journal struct {
	db  *sql.DB
	now func() time.Time
}

var _ services.Recorder = (*Journal)(nil)

// Open creates the database file if needed and runs migrations.
func Open(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrateSchema(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db, now: time.Now}, nil
}

// migrateSchema applies the embedded migrations through a second handle on
// dbPath; closing the migrator closes that handle, not the journal's pool.
func migrateSchema(dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Record implements services.Recorder.
func (j *Journal) Record(ctx context.Context, r services.Result) error {
	var errText string
	if r.Err != nil {
		errText = r.Err.Error()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sync_journal
			(request_id, kind, operation, transaction_id, success, error, error_type, entry_count, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RequestID.String(),
		r.Kind.String(),
		string(r.Op),
		r.ID.String(),
		boolToInt(r.Err == nil),
		errText,
		remote.ErrorType(r.Err),
		r.Count,
		r.Duration.Milliseconds(),
		j.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, request_id, kind, operation, transaction_id, success, error, error_type, entry_count, duration_ms, recorded_at
		FROM sync_journal
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			success    int64
			recordedAt string
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Kind, &e.Operation, &e.TransactionID,
			&success, &e.Error, &e.ErrorType, &e.Count, &e.DurationMs, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Success = success != 0
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			e.RecordedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return out, nil
}

// FailureCount returns how many recorded operations failed.
func (j *Journal) FailureCount(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_journal WHERE success = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
