// Package sessionstore holds session state shared between submission and delivery.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/tripassist/internal/config"
	"github.com/fentz26/tripassist/internal/models"
)

// MaxIDLength bounds session identifiers.
const MaxIDLength = 128

// DefaultTTL is used when no TTL option is given.
const DefaultTTL = 10 * time.Minute

// ErrInvalidID is returned for ids that are empty, too long or contain path separators.
var ErrInvalidID = errors.New("invalid session id")

// Store is a keyed session store with TTL-based expiry.
//
// Read never fails for an unknown or expired id: it returns a pending session with
// Found set to false. Create does not overwrite a live entry. Complete and Fail
// accept ids that were never created, and the last write wins.
type Store interface {
	Create(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, itinerary json.RawMessage) error
	Fail(ctx context.Context, id, message string, code models.FailureCode) error
	// FailPending fails id only while it holds a live pending entry, and reports
	// whether it wrote. A result recorded first is never replaced.
	FailPending(ctx context.Context, id, message string, code models.FailureCode) (bool, error)
	Read(ctx context.Context, id string) (models.Session, error)
	// Expire drops entries whose last write is older than the TTL and reports how many.
	Expire(ctx context.Context) (int, error)
	Close() error
}

// Option configures a store backend.
type Option func(*options)

type options struct {
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// WithTTL sets how long an entry lives after its last write.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithPrefix sets the key namespace of the redis backend.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{
		ttl:    DefaultTTL,
		prefix: "tripassist",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ValidateID rejects identifiers that cannot be used as keys or file names.
func ValidateID(id string) error {
	if id == "" || len(id) > MaxIDLength {
		return ErrInvalidID
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." || strings.ContainsRune(id, 0) {
		return ErrInvalidID
	}
	return nil
}

// Open builds the backend selected by cfg.
func Open(cfg config.StoreConfig) (Store, error) {
	opts := []Option{WithTTL(cfg.TTL), WithPrefix(cfg.Prefix)}

	switch cfg.Backend {
	case config.BackendMemory, "":
		return NewMemoryStore(opts...), nil
	case config.BackendFile:
		return NewFileStore(cfg.Dir, opts...)
	case config.BackendSQLite:
		return NewSQLiteStore(cfg.SQLitePath, opts...)
	case config.BackendRedis:
		return DialRedis(cfg.RedisURL, opts...)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// absent is what Read returns for unknown or expired ids.
func absent(id string) models.Session {
	return models.Session{ID: id, Status: models.SessionStatusPending}
}

func pendingSession(id string, now time.Time) models.Session {
	return models.Session{
		ID:        id,
		Status:    models.SessionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Found:     true,
	}
}

func completedSession(id string, itinerary json.RawMessage, now time.Time) models.Session {
	return models.Session{
		ID:        id,
		Status:    models.SessionStatusCompleted,
		Itinerary: itinerary,
		CreatedAt: now,
		UpdatedAt: now,
		Found:     true,
	}
}

func failedSession(id, message string, code models.FailureCode, now time.Time) models.Session {
	return models.Session{
		ID:        id,
		Status:    models.SessionStatusFailed,
		Error:     message,
		Code:      code,
		CreatedAt: now,
		UpdatedAt: now,
		Found:     true,
	}
}

// settledOrGone reports whether a conditional failure must leave cur alone.
func settledOrGone(cur models.Session, ok bool, now time.Time, ttl time.Duration) bool {
	return !ok || expired(cur, now, ttl) || cur.Status != models.SessionStatusPending
}

func expired(s models.Session, now time.Time, ttl time.Duration) bool {
	return now.Sub(s.UpdatedAt) > ttl
}
