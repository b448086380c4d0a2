package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createBlobsTableSQL = `CREATE TABLE IF NOT EXISTS feed_blobs (
        key          TEXT PRIMARY KEY,
        body         BYTEA NOT NULL,
        content_type TEXT NOT NULL,
        updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	upsertBlobSQL = `INSERT INTO feed_blobs (
        key,
        body,
        content_type,
        updated_at
    ) VALUES (
        $1,$2,$3,now()
    )
    ON CONFLICT (key) DO UPDATE
    SET
        body         = EXCLUDED.body,
        content_type = EXCLUDED.content_type,
        updated_at   = EXCLUDED.updated_at;`

	getBlobSQL = `SELECT body FROM feed_blobs WHERE key = $1;`

	statBlobSQL = `SELECT octet_length(body), updated_at FROM feed_blobs WHERE key = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PostgresStore keeps blobs in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the blob table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createBlobsTableSQL); err != nil {
		return fmt.Errorf("create feed_blobs: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the lock is dropped with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// Get reads the blob stored under key.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	var body []byte
	if err := pool.QueryRow(ctx, getBlobSQL, key).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get blob %s: %w", key, err)
	}
	return body, nil
}

// Put persists or replaces the blob under key.
func (s *PostgresStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = contentTypeJSON
	}
	if _, err := pool.Exec(ctx, upsertBlobSQL, key, body, contentType); err != nil {
		return fmt.Errorf("upsert blob %s: %w", key, err)
	}
	return nil
}

// Stat reports size and last update.
func (s *PostgresStore) Stat(ctx context.Context, key string) (BlobInfo, error) {
	pool, err := s.getPool()
	if err != nil {
		return BlobInfo{}, err
	}
	info := BlobInfo{Key: key}
	if err := pool.QueryRow(ctx, statBlobSQL, key).Scan(&info.Size, &info.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BlobInfo{}, ErrNotFound
		}
		return BlobInfo{}, fmt.Errorf("stat blob %s: %w", key, err)
	}
	return info, nil
}

var (
	_ BlobStore      = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
)
