package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FranksOps/critic/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS fetch_records (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	company TEXT NOT NULL,
	source TEXT NOT NULL,
	page INTEGER NOT NULL,
	attempt INTEGER NOT NULL,
	rendered BOOLEAN NOT NULL,
	status_code INTEGER NOT NULL,
	status TEXT NOT NULL,
	block_vendor TEXT,
	headers TEXT NOT NULL,
	body BLOB,
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	error TEXT
);
`

// New creates a SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, rec *storage.FetchRecord) error {
	headersJSON, err := json.Marshal(rec.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	query := `
	INSERT INTO fetch_records (
		id, url, company, source, page, attempt, rendered, status_code, status, block_vendor, headers, body, duration_ms, created_at, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = b.db.ExecContext(ctx, query,
		rec.ID,
		rec.URL,
		rec.Company,
		rec.Source,
		rec.Page,
		rec.Attempt,
		rec.Rendered,
		rec.StatusCode,
		rec.Status,
		rec.BlockVendor,
		string(headersJSON),
		rec.Body,
		rec.Duration.Milliseconds(),
		rec.CreatedAt,
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.FetchRecord, error) {
	query := `SELECT id, url, company, source, page, attempt, rendered, status_code, status, block_vendor, headers, body, duration_ms, created_at, error FROM fetch_records WHERE 1=1`
	args := []any{}

	if filter.URL != "" {
		query += ` AND url = ?`
		args = append(args, filter.URL)
	}
	if filter.Company != "" {
		query += ` AND company = ?`
		args = append(args, filter.Company)
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.Blocked != nil {
		if *filter.Blocked {
			query += ` AND status = 'blocked'`
		} else {
			query += ` AND status != 'blocked'`
		}
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		// OFFSET requires a LIMIT clause; -1 means unbounded.
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var results []*storage.FetchRecord
	for rows.Next() {
		var r storage.FetchRecord
		var headersJSON string
		var durationMs int64

		err := rows.Scan(
			&r.ID, &r.URL, &r.Company, &r.Source, &r.Page, &r.Attempt, &r.Rendered,
			&r.StatusCode, &r.Status, &r.BlockVendor, &headersJSON, &r.Body,
			&durationMs, &r.CreatedAt, &r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal([]byte(headersJSON), &r.Headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}

		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return results, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
