// Package redisstore provides a Redis-backed kvstore.Store for server-side
// deployments of the session layer.
package redisstore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/omnibrand/go-session-kit/kvstore"
)

const defaultPrefix = "sessionkit:"

// Store is a Redis implementation of kvstore.Store. Keys are namespaced with
// a prefix so the session records can share a Redis database with other data.
type Store struct {
	client *redis.Client
	prefix string
}

var _ kvstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides the key namespace prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis-backed store over an existing client.
func New(client *redis.Client, options ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("[redisstore.New] client is required")
	}
	s := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "[redisstore.Get] client.Get")
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	// No TTL: session records live until explicitly removed.
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return errors.Wrap(err, "[redisstore.Set] client.Set")
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "[redisstore.Remove] client.Del")
	}
	return nil
}

func (s *Store) MultiRemove(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, s.prefix+key)
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return errors.Wrap(err, "[redisstore.MultiRemove] client.Del")
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
