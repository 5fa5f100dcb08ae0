// Package sqlite is the SQLite-backed store for shared plans and
// notifications.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dailycompanion/companion/internal/notify"
	"github.com/dailycompanion/companion/internal/sharedplan"
	"github.com/dailycompanion/companion/internal/storage/sqlite/migrations"
	"github.com/dailycompanion/companion/internal/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

var (
	_ sharedplan.Store = (*Store)(nil)
	_ notify.Store     = (*Store)(nil)
)

// pragmas are applied to every pooled connection. modernc.org/sqlite only
// honors _pragma and _txlock query keys.
const pragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"

// Store provides SQLite-backed persistence. Writes go through a single
// connection that takes the write lock at BEGIN; reads use a separate pool
// of deferred transactions so they never wait on the writer.
type Store struct {
	sqlDB  *sql.DB
	readDB *sql.DB
}

// Open opens a SQLite store at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage path is required")
	}

	sqlDB, err := openPool(ctx, path+"?"+pragmas+"&_txlock=immediate")
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := ensureForeignKeysEnabled(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if _, err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	readDB, err := openPool(ctx, path+"?"+pragmas)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &Store{sqlDB: sqlDB, readDB: readDB}, nil
}

func openPool(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}
	return db, nil
}

// Close closes both database pools.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return errors.Join(s.readDB.Close(), s.sqlDB.Close())
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := s.readDB.PingContext(ctx); err != nil {
		return err
	}
	return s.sqlDB.PingContext(ctx)
}

// ensureForeignKeysEnabled verifies the cascade on plan delete is live.
func ensureForeignKeysEnabled(ctx context.Context, sqlDB *sql.DB) error {
	var enabled int
	if err := sqlDB.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return fmt.Errorf("check foreign keys: %w", err)
	}
	if enabled != 1 {
		return errors.New("sqlite foreign keys are disabled")
	}
	return nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return errors.New("storage is not configured")
	}
	return nil
}

// inTx runs fn in a write transaction. fn must only use tx: the writer pool
// holds one connection.
func (s *Store) inTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	return runTx(ctx, s.sqlDB, name, fn)
}

// readTx runs fn in a deferred transaction on the reader pool, so every
// query in fn sees the same snapshot.
func (s *Store) readTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	return runTx(ctx, s.readDB, name, fn)
}

func runTx(ctx context.Context, db *sql.DB, name string, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", name, err)
	}
	rollbackWith := func(cause error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w: rollback %s tx: %v", cause, name, rbErr)
		}
		return cause
	}
	if err := fn(tx); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s tx: %w", name, err)
	}
	return nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// touchPlan bumps updated_at so plan lists order by recent activity.
func touchPlan(ctx context.Context, q queryer, planID string, at time.Time) error {
	res, err := q.ExecContext(ctx, "UPDATE plans SET updated_at = ? WHERE id = ?", toNanos(at), planID)
	if err != nil {
		return fmt.Errorf("touch plan: %w", err)
	}
	return expectRow(res, "plan "+planID)
}

// expectRow maps a zero-row write to ErrNotFound.
func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, sharedplan.ErrNotFound)
	}
	return nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// sinceNanos maps a zero time to the lowest stored value.
func sinceNanos(t time.Time) int64 {
	if t.IsZero() {
		return math.MinInt64
	}
	return toNanos(t)
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "constraint failed: unique")
}

func isForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}
