package idempotency

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const rowColumns = `idempotency_key, request_hash, method, path, response_status, response_body, content_type, in_progress`

// PostgresBackend stores keys in the idempotency_keys table.
type PostgresBackend struct {
	db *pgxpool.Pool
}

func NewPostgresBackend(db *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (p *PostgresBackend) Name() string { return "postgres" }

func (p *PostgresBackend) Get(ctx context.Context, key string) (*Row, error) {
	row := p.db.QueryRow(ctx, `SELECT `+rowColumns+` FROM idempotency_keys WHERE idempotency_key = $1`, key)
	return scanRow(row)
}

func (p *PostgresBackend) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	var reserved string
	err := p.db.QueryRow(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING idempotency_key`,
		key, requestHash, method, path,
	).Scan(&reserved)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}

func (p *PostgresBackend) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Row, error) {
	if body == nil {
		body = []byte{}
	}
	row := p.db.QueryRow(ctx, `
		UPDATE idempotency_keys
		SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE, updated_at = NOW()
		WHERE idempotency_key = $4 AND request_hash = $5 AND in_progress
		RETURNING `+rowColumns,
		int32(status), body, contentType, key, requestHash,
	)
	return scanRow(row)
}

func (p *PostgresBackend) Release(ctx context.Context, key, requestHash string) error {
	_, err := p.db.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE idempotency_key = $1 AND request_hash = $2 AND in_progress`,
		key, requestHash)
	return err
}

func scanRow(row pgx.Row) (*Row, error) {
	var (
		r      Row
		status int32
	)
	if err := row.Scan(&r.Key, &r.RequestHash, &r.Method, &r.Path, &status, &r.Body, &r.ContentType, &r.InProgress); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Status = int(status)
	return &r, nil
}
