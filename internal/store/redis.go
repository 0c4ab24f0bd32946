package store

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/redis"
)

const redisOpTimeout = 5 * time.Second

// RedisStore keeps each blob as a single Redis string under prefix+key.
// Redis SET replaces a value atomically, so no extra locking is needed.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: slog.Default().With("component", "redis-store"),
	}
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) redisKey(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return s.prefix + k, nil
}

func (s *RedisStore) Put(key string, data []byte) error {
	rk, err := s.redisKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := s.client.Set(ctx, rk, data, 0); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, err, "setting "+key)
	}
	s.logger.Debug("blob written", "key", key, "bytes", len(data))
	return nil
}

func (s *RedisStore) Get(key string) ([]byte, error) {
	rk, err := s.redisKey(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	data, err := s.client.Get(ctx, rk)
	if err != nil {
		if redis.IsNilError(err) {
			return nil, notFound(key)
		}
		return nil, apperrors.Wrap(apperrors.ErrStore, err, "getting "+key)
	}
	return data, nil
}

func (s *RedisStore) Delete(key string) error {
	rk, err := s.redisKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	n, err := s.client.Del(ctx, rk)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, err, "deleting "+key)
	}
	if n == 0 {
		return notFound(key)
	}
	return nil
}

func (s *RedisStore) Exists(key string) bool {
	rk, err := s.redisKey(key)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	ok, err := s.client.Exists(ctx, rk)
	return err == nil && ok
}

// Clean removes key and every key below it.
func (s *RedisStore) Clean(key string) error {
	rk, err := s.redisKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if _, err := s.client.Del(ctx, rk); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, err, "cleaning "+key)
	}
	if _, err := s.client.FlushByPattern(ctx, escapeGlob(rk)+"/*"); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, err, "cleaning "+key)
	}
	return nil
}

// List returns every key below prefix, sorted.
func (s *RedisStore) List(prefix string) ([]string, error) {
	pattern := escapeGlob(s.prefix) + "*"
	if prefix != "" {
		rk, err := s.redisKey(prefix)
		if err != nil {
			return nil, err
		}
		pattern = escapeGlob(rk) + "/*"
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	raw, err := s.client.Keys(ctx, pattern)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, err, "listing "+prefix)
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, s.prefix))
	}
	sort.Strings(keys)
	return keys, nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
