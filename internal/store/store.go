// Package store implements the tenant-scoped document store (C1): per-tenant
// isolated persistence over Postgres/pgx, a JSONB document body per
// collection, and a monotonic entity_tag column for optimistic concurrency.
// Grounded on the teacher's internal/db/db_extensions.go (DBTX accessor) and
// internal/handlers/common.go's BeginTx/WithTx transaction helpers.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"poscore/internal/apperr"
)

// Document is the envelope every collection row carries: a tenant scope, a
// collection name, a JSON body, and the CAS tag.
type Document struct {
	TenantID   string
	Collection string
	Key        string
	Body       []byte
	EntityTag  int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ErrConflict is returned when a write's expected entity tag does not match
// the row currently stored (lost-update / concurrent modification, §4.1).
var ErrConflict = apperr.Conflict(apperr.Code(10, 1, 1), "the record changed concurrently, please retry", "entity tag mismatch")

// ErrNotFound is returned when Get finds no matching document.
var ErrNotFound = apperr.NotFound(apperr.Code(10, 1, 2), "record not found", "no document for key")

// DBTX is the subset of *pgxpool.Pool (or a pgx.Tx) the store needs. Tests
// substitute a fake implementing this instead of a real connection.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the document-store client. One Store is shared process-wide over
// a pooled connection (§5 "pooled client with bounded concurrency").
type Store struct {
	pool DBTX
}

// New builds a Store over an already-configured pool. Pool tuning
// (MaxConns/MinConns/MaxConnLifetime/MaxConnIdleTime) happens at the call
// site, mirroring every teacher cmd/*/main.go.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewWithDBTX builds a Store over an arbitrary DBTX, used by tests.
func NewWithDBTX(pool DBTX) *Store {
	return &Store{pool: pool}
}

// Get fetches the current document for (tenantID, collection, key).
func (s *Store) Get(ctx context.Context, tenantID, collection, key string, out any) (entityTag int64, err error) {
	row := s.pool.QueryRow(ctx, `
		SELECT body, entity_tag FROM documents
		WHERE tenant_id = $1 AND collection = $2 AND key = $3`,
		tenantID, collection, key)

	var body []byte
	if err := row.Scan(&body, &entityTag); err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, apperr.Upstream(apperr.Code(10, 1, 3), "could not read record", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return 0, apperr.Internal(apperr.Code(10, 1, 4), "could not decode record", err)
	}
	return entityTag, nil
}

// Insert creates a new document with entity_tag 1. Fails with ErrConflict
// if the key already exists.
func (s *Store) Insert(ctx context.Context, tenantID, collection, key string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return apperr.Internal(apperr.Code(10, 1, 5), "could not encode record", err)
	}
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO documents (tenant_id, collection, key, body, entity_tag, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, now(), now())
		ON CONFLICT (tenant_id, collection, key) DO NOTHING`,
		tenantID, collection, key, body)
	if err != nil {
		return apperr.Upstream(apperr.Code(10, 1, 6), "could not write record", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// CAS performs an optimistic-concurrency update: the write succeeds only if
// the row's current entity_tag still equals expectedTag, and the tag is
// incremented atomically. Returns ErrConflict on a tag mismatch.
func (s *Store) CAS(ctx context.Context, tenantID, collection, key string, expectedTag int64, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return apperr.Internal(apperr.Code(10, 1, 7), "could not encode record", err)
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE documents SET body = $1, entity_tag = entity_tag + 1, updated_at = now()
		WHERE tenant_id = $2 AND collection = $3 AND key = $4 AND entity_tag = $5`,
		body, tenantID, collection, key, expectedTag)
	if err != nil {
		return apperr.Upstream(apperr.Code(10, 1, 8), "could not write record", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// RetryCAS retries fn (which should re-read, mutate, and CAS) on ErrConflict
// using the exact schedule from §6.4: initial 10ms, factor 2, cap 1s, max 5
// attempts (the first call plus at most four retries).
func RetryCAS(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	bctx := backoff.WithContext(backoff.WithMaxRetries(b, 4), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, bctx)
}

// Query fetches every document in a collection matching a key prefix,
// decoding each into a fresh value via decode. Used by the report aggregator
// (C11) to stream transaction documents for a businessDate.
func (s *Store) Query(ctx context.Context, tenantID, collection, keyPrefix string, decode func(body []byte) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT body FROM documents
		WHERE tenant_id = $1 AND collection = $2 AND key LIKE $3
		ORDER BY key`,
		tenantID, collection, keyPrefix+"%")
	if err != nil {
		return apperr.Upstream(apperr.Code(10, 1, 9), "could not query records", err)
	}
	defer rows.Close()

	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return apperr.Upstream(apperr.Code(10, 1, 10), "could not read record", err)
		}
		if err := decode(body); err != nil {
			return err
		}
	}
	return rows.Err()
}

// NextCounter atomically increments and returns the next value for a named
// monotonic counter (transaction/receipt numbering per terminal-date, §4.4,
// §5). Counters live in their own table so the CAS loop never contends with
// document writes.
func (s *Store) NextCounter(ctx context.Context, tenantID, counterName string) (int, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO counters (tenant_id, name, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, name) DO UPDATE SET value = counters.value + 1
		RETURNING value`,
		tenantID, counterName)

	var value int
	if err := row.Scan(&value); err != nil {
		return 0, apperr.Upstream(apperr.Code(10, 1, 11), "could not advance counter", err)
	}
	return value, nil
}

// txBeginner is implemented by *pgxpool.Pool but not by every test DBTX
// fake; TxInsertMany falls back to sequential inserts when unavailable.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Write is one document to create as part of a TxInsertMany batch.
type Write struct {
	Collection string
	Key        string
	Value      any
}

// TxInsertMany inserts every write atomically: either all documents land or
// none do. Used by the journal consumer (C10, §4.6 step 3) to write the
// type-specific log and the unified journal entry together. Falls back to
// sequential (non-atomic) inserts against a DBTX that cannot begin a
// transaction, which is acceptable for the in-memory fakes unit tests use.
func (s *Store) TxInsertMany(ctx context.Context, tenantID string, writes []Write) error {
	beginner, ok := s.pool.(txBeginner)
	if !ok {
		for _, w := range writes {
			if err := s.Insert(ctx, tenantID, w.Collection, w.Key, w.Value); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return apperr.Upstream(apperr.Code(10, 1, 12), "could not start transaction", err)
	}
	defer tx.Rollback(ctx)

	for _, w := range writes {
		body, err := json.Marshal(w.Value)
		if err != nil {
			return apperr.Internal(apperr.Code(10, 1, 13), "could not encode record", err)
		}
		ct, err := tx.Exec(ctx, `
			INSERT INTO documents (tenant_id, collection, key, body, entity_tag, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 1, now(), now())
			ON CONFLICT (tenant_id, collection, key) DO NOTHING`,
			tenantID, w.Collection, w.Key, body)
		if err != nil {
			return apperr.Upstream(apperr.Code(10, 1, 14), "could not write record", err)
		}
		if ct.RowsAffected() == 0 {
			return ErrConflict
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Upstream(apperr.Code(10, 1, 15), "could not commit transaction", err)
	}
	return nil
}

// Schema returns the DDL this store expects. Callers run it once at
// provisioning time (tenant database provisioning is glue, not core, per
// spec's own scoping — this is exposed for test setup and operator tooling).
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	tenant_id  TEXT NOT NULL,
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	body       JSONB NOT NULL,
	entity_tag BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, collection, key)
);

CREATE TABLE IF NOT EXISTS counters (
	tenant_id TEXT NOT NULL,
	name      TEXT NOT NULL,
	value     BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (tenant_id, name)
);
`
