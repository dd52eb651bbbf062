package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Lllllllleong/expenseflow/internal/models"
	"github.com/mattn/go-sqlite3"
)

// SQLiteBackend persists records in a local SQLite database, for deployments
// without a Firestore project. The record body is stored as a JSON blob; the
// id and created_at columns exist for keying and retention scans.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode so the review UI can read while a batch writes.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		body BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, record *models.Record) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", record.ID, err)
	}

	query := `
	INSERT INTO records (id, kind, status, created_at, body)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		kind = excluded.kind,
		status = excluded.status,
		created_at = excluded.created_at,
		body = excluded.body
	`
	if _, err := b.db.ExecContext(ctx, query, record.ID, record.Kind, record.Status, record.CreatedAt, body); err != nil {
		return fmt.Errorf("sqlite put %s: %w", record.ID, translateSQLiteErr(err))
	}
	return nil
}

func (b *SQLiteBackend) Get(ctx context.Context, id string) (*models.Record, error) {
	var body []byte
	err := b.db.QueryRowContext(ctx, "SELECT body FROM records WHERE id = ?", id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", id, err)
	}

	var rec models.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("sqlite decode %s: %w", id, err)
	}
	return &rec, nil
}

func (b *SQLiteBackend) List(ctx context.Context) ([]*models.Record, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT body FROM records ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		var rec models.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("sqlite decode: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (b *SQLiteBackend) Delete(ctx context.Context, id string) error {
	if _, err := b.db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", id, err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// translateSQLiteErr maps SQLITE_FULL (database or disk full) and
// SQLITE_TOOBIG (row exceeds the size limit) onto ErrCapacityExceeded.
func translateSQLiteErr(err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && (serr.Code == sqlite3.ErrFull || serr.Code == sqlite3.ErrTooBig) {
		return fmt.Errorf("%w: %w", ErrCapacityExceeded, err)
	}
	return err
}
