// Package store provides keyed byte storage for term dictionaries and the
// write-ahead log. FSStore keeps blobs as files under a root directory and
// also hands out append handles for WAL segments; RedisStore keeps blobs in
// Redis for deployments that share dictionaries between hosts.
package store

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/redis"
)

// BlobStore is keyed, whole-value byte storage.
type BlobStore interface {
	// Put writes data under key, replacing any previous value. It returns
	// only once the data is durable.
	Put(key string, data []byte) error
	// Get reads the whole value stored under key. A missing key yields an
	// error matching ErrNotFound.
	Get(key string) ([]byte, error)
	// Delete removes key.
	Delete(key string) error
	Exists(key string) bool
}

// AppendHandle is an append-only writer that can be flushed to stable
// storage.
type AppendHandle interface {
	io.WriteCloser
	Sync() error
}

// New opens the backend selected by cfg.Backend.
func New(cfg config.StoreConfig, redisCfg config.RedisConfig) (BlobStore, error) {
	switch cfg.Backend {
	case "", "fs":
		return NewFSStore(cfg.Root)
	case "redis":
		client, err := redis.NewClient(redisCfg)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStore, err, "connecting to redis")
		}
		return NewRedisStore(client, cfg.RedisKeyPrefix), nil
	default:
		return nil, apperrors.Newf(apperrors.ErrConfiguration, "unknown store backend %q", cfg.Backend)
	}
}

// Close releases whatever s holds open, such as the Redis connection pool
// behind a redis backend. Stores without resources are left alone.
func Close(s BlobStore) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// cleanKey normalises key to a slash-separated relative path and rejects
// keys that would escape the store root.
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", apperrors.New(apperrors.ErrInvalidKey, "empty key")
	}
	k := strings.ReplaceAll(key, "\\", "/")
	if strings.HasPrefix(k, "/") {
		return "", apperrors.Newf(apperrors.ErrInvalidKey, "absolute key %q", key)
	}
	k = path.Clean(k)
	if k == "." || k == ".." || strings.HasPrefix(k, "../") {
		return "", apperrors.Newf(apperrors.ErrInvalidKey, "key %q escapes the store root", key)
	}
	return k, nil
}

func notFound(key string) error {
	return fmt.Errorf("%w: %w", apperrors.ErrStore, apperrors.Newf(apperrors.ErrNotFound, "key %q", key))
}
