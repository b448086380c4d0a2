package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested key does not exist.
	ErrNotFound = errors.New("storage: object not found")
)

const contentTypeJSON = "application/json"

// BlobStore persists opaque JSON documents by key.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Stat(ctx context.Context, key string) (BlobInfo, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}
