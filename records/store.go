package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonwraymond/offlinekit/records/migrations"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// Store persists conversation snapshots and sync registrations in SQLite.
//
// Contract:
// - Concurrency: safe for concurrent use; concurrent Puts of the same ID
//   resolve last-write-wins.
// - Context: all methods honor cancellation.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a SQLite record store at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("records: storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("records: open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("records: ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("records: run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	return nil
}

// Put upserts a record keyed by its ID. A zero timestamp is set to now.
func (s *Store) Put(ctx context.Context, record Record) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := record.Validate(); err != nil {
		return err
	}
	ts := record.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	var payload []byte
	if len(record.Payload) > 0 {
		payload = record.Payload
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO conversation_snapshots (id, timestamp, category, payload)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   timestamp = excluded.timestamp,
		   category = excluded.category,
		   payload = excluded.payload`,
		strings.TrimSpace(record.ID), toMillis(ts), strings.TrimSpace(record.Category), payload,
	)
	if err != nil {
		return fmt.Errorf("records: put %q: %w", record.ID, err)
	}
	return nil
}

// Get fetches a record by ID.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	if err := s.ready(ctx); err != nil {
		return Record{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, timestamp, category, payload FROM conversation_snapshots WHERE id = ?`,
		strings.TrimSpace(id),
	)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("records: get %q: %w", id, err)
	}
	return record, nil
}

// Delete removes a record. Idempotent - no error on miss.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM conversation_snapshots WHERE id = ?`, strings.TrimSpace(id)); err != nil {
		return fmt.Errorf("records: delete %q: %w", id, err)
	}
	return nil
}

// All returns every record ordered by timestamp (full-table scan).
func (s *Store) All(ctx context.Context) ([]Record, error) {
	return s.query(ctx,
		`SELECT id, timestamp, category, payload FROM conversation_snapshots ORDER BY timestamp, id`,
	)
}

// ByCategory returns the records of one category ordered by timestamp.
func (s *Store) ByCategory(ctx context.Context, category string) ([]Record, error) {
	return s.query(ctx,
		`SELECT id, timestamp, category, payload FROM conversation_snapshots
		 WHERE category = ? ORDER BY timestamp, id`,
		strings.TrimSpace(category),
	)
}

// Range returns records with from <= timestamp < to, ordered by timestamp.
func (s *Store) Range(ctx context.Context, from, to time.Time) ([]Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	return s.query(ctx,
		`SELECT id, timestamp, category, payload FROM conversation_snapshots
		 WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp, id`,
		toMillis(from), toMillis(to),
	)
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversation_snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("records: count: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("records: query: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("records: scan: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: iterate: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		record  Record
		ts      int64
		payload []byte
	)
	if err := row.Scan(&record.ID, &ts, &record.Category, &payload); err != nil {
		return Record{}, err
	}
	record.Timestamp = fromMillis(ts)
	if len(payload) > 0 {
		record.Payload = append([]byte(nil), payload...)
	}
	return record, nil
}

// PutTask registers a sync task. Reports whether a new registration was
// created; registering an existing tag is a no-op.
func (s *Store) PutTask(ctx context.Context, tag string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false, ErrMissingTag
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO sync_tasks (tag, registered_at) VALUES (?, ?)`,
		tag, toMillis(s.now()),
	)
	if err != nil {
		return false, fmt.Errorf("records: put task %q: %w", tag, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("records: put task %q: %w", tag, err)
	}
	return n > 0, nil
}

// Tasks lists pending sync tasks in registration order.
func (s *Store) Tasks(ctx context.Context) ([]Task, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT tag, registered_at FROM sync_tasks ORDER BY registered_at, tag`)
	if err != nil {
		return nil, fmt.Errorf("records: list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// TakeTasks atomically removes and returns every pending sync task.
func (s *Store) TakeTasks(ctx context.Context) ([]Task, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("records: take tasks: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT tag, registered_at FROM sync_tasks ORDER BY registered_at, tag`)
	if err != nil {
		return nil, fmt.Errorf("records: take tasks: %w", err)
	}
	tasks, err := scanTasks(rows)
	_ = rows.Close()
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return tasks, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_tasks`); err != nil {
		return nil, fmt.Errorf("records: take tasks: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("records: take tasks: %w", err)
	}
	return tasks, nil
}

// DeleteTask removes a single registration. Idempotent.
func (s *Store) DeleteTask(ctx context.Context, tag string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sync_tasks WHERE tag = ?`, strings.TrimSpace(tag)); err != nil {
		return fmt.Errorf("records: delete task %q: %w", tag, err)
	}
	return nil
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	tasks := []Task{}
	for rows.Next() {
		var (
			task Task
			at   int64
		)
		if err := rows.Scan(&task.Tag, &at); err != nil {
			return nil, fmt.Errorf("records: scan task: %w", err)
		}
		task.RegisteredAt = fromMillis(at)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: iterate tasks: %w", err)
	}
	return tasks, nil
}
