package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fentz26/tripassist/internal/models"
)

// RedisStore keeps sessions in Redis with native key expiry. Every instance pointed
// at the same server sees the same sessions.
type RedisStore struct {
	client *redis.Client
	opts   options
	owned  bool
}

// NewRedisStore creates a Redis-backed store over an existing client.
func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	return &RedisStore{client: client, opts: buildOptions(opts)}
}

// DialRedis connects to a redis:// or rediss:// URL. The store owns the client and
// closes it on Close.
func DialRedis(url string, opts ...Option) (*RedisStore, error) {
	ro, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	s := NewRedisStore(redis.NewClient(ro), opts...)
	s.owned = true
	return s, nil
}

// Client returns the underlying client so the notifier can share the connection pool.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Prefix returns the key namespace.
func (s *RedisStore) Prefix() string {
	return s.opts.prefix
}

func (s *RedisStore) sessionKey(id string) string {
	return s.opts.prefix + ":session:" + id
}

func (s *RedisStore) Create(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	data, err := json.Marshal(pendingSession(id, s.opts.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.SetNX(ctx, s.sessionKey(id), data, s.opts.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Complete(ctx context.Context, id string, itinerary json.RawMessage) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return s.set(ctx, completedSession(id, itinerary, s.opts.now()))
}

func (s *RedisStore) Fail(ctx context.Context, id, message string, code models.FailureCode) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return s.set(ctx, failedSession(id, message, code, s.opts.now()))
}

func (s *RedisStore) FailPending(ctx context.Context, id, message string, code models.FailureCode) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	key := s.sessionKey(id)
	applied := false

	// WATCH aborts the write if a callback lands between the read and the SET.
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("redis get failed: %w", err)
		}
		cur, err := decodeSession(id, data)
		if err != nil {
			return err
		}
		now := s.opts.now()
		if settledOrGone(cur, true, now, s.opts.ttl) {
			return nil
		}

		next := failedSession(id, message, code, now)
		next.CreatedAt = cur.CreatedAt
		out, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.opts.ttl)
			return nil
		})
		if err == nil {
			applied = true
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// Another write won; the session is no longer pending.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *RedisStore) set(ctx context.Context, next models.Session) error {
	if cur, err := s.get(ctx, next.ID); err == nil && cur.Found {
		next.CreatedAt = cur.CreatedAt
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.sessionKey(next.ID), data, s.opts.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, id string) (models.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return absent(id), nil
		}
		return models.Session{}, fmt.Errorf("redis get failed: %w", err)
	}
	return decodeSession(id, data)
}

func decodeSession(id string, data []byte) (models.Session, error) {
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return models.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	sess.ID = id
	sess.Found = true
	return sess, nil
}

func (s *RedisStore) Read(ctx context.Context, id string) (models.Session, error) {
	if err := ValidateID(id); err != nil {
		return models.Session{}, err
	}
	return s.get(ctx, id)
}

// Expire is a no-op: Redis drops keys when their TTL elapses.
func (s *RedisStore) Expire(_ context.Context) (int, error) {
	return 0, nil
}

func (s *RedisStore) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}
