package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FranksOps/critic/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
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
	headers JSONB NOT NULL,
	body BYTEA,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	error TEXT
);
`

// New creates a Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, rec *storage.FetchRecord) error {
	headersJSON, err := json.Marshal(rec.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	query := `
	INSERT INTO fetch_records (
		id, url, company, source, page, attempt, rendered, status_code, status, block_vendor, headers, body, duration_ms, created_at, error
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = b.pool.Exec(ctx, query,
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
		headersJSON,
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

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.FetchRecord, error) {
	query := `SELECT id, url, company, source, page, attempt, rendered, status_code, status, block_vendor, headers, body, duration_ms, created_at, error FROM fetch_records WHERE 1=1`
	args := []any{}
	param := 1

	if filter.URL != "" {
		query += fmt.Sprintf(` AND url = $%d`, param)
		args = append(args, filter.URL)
		param++
	}
	if filter.Company != "" {
		query += fmt.Sprintf(` AND company = $%d`, param)
		args = append(args, filter.Company)
		param++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, param)
		args = append(args, filter.Source)
		param++
	}
	if filter.Blocked != nil {
		if *filter.Blocked {
			query += ` AND status = 'blocked'`
		} else {
			query += ` AND status != 'blocked'`
		}
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, param)
		args = append(args, *filter.Since)
		param++
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, param)
		args = append(args, filter.Limit)
		param++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, param)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var results []*storage.FetchRecord
	for rows.Next() {
		var r storage.FetchRecord
		var headersJSON []byte
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
		if err := json.Unmarshal(headersJSON, &r.Headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}

		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return results, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
