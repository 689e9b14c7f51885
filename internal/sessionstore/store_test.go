package sessionstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/tripassist/internal/config"
	"github.com/fentz26/tripassist/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const testTTL = 10 * time.Minute

var sampleItinerary = json.RawMessage(`{"destination":"Lisbon","startDate":"2025-06-01","endDate":"2025-06-02","days":[]}`)

type backend struct {
	name string
	open func(t *testing.T, clock *fakeClock) Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T, clock *fakeClock) Store {
			return NewMemoryStore(WithTTL(testTTL), WithClock(clock.Now))
		}},
		{"file", func(t *testing.T, clock *fakeClock) Store {
			s, err := NewFileStore(t.TempDir(), WithTTL(testTTL), WithClock(clock.Now))
			require.NoError(t, err)
			return s
		}},
		{"sqlite", func(t *testing.T, clock *fakeClock) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), WithTTL(testTTL), WithClock(clock.Now))
			require.NoError(t, err)
			return s
		}},
		{"redis", func(t *testing.T, clock *fakeClock) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return NewRedisStore(client, WithTTL(testTTL), WithClock(clock.Now))
		}},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store, clock *fakeClock)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := newFakeClock()
			s := b.open(t, clock)
			t.Cleanup(func() { s.Close() })
			fn(t, s, clock)
		})
	}
}

func TestStore_ReadUnknownIsPending(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ *fakeClock) {
		sess, err := s.Read(context.Background(), "never-created")
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusPending, sess.Status)
		assert.False(t, sess.Found)
	})
}

func TestStore_Lifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ *fakeClock) {
		ctx := context.Background()

		require.NoError(t, s.Create(ctx, "abc"))
		sess, err := s.Read(ctx, "abc")
		require.NoError(t, err)
		assert.True(t, sess.Found)
		assert.Equal(t, models.SessionStatusPending, sess.Status)

		require.NoError(t, s.Complete(ctx, "abc", sampleItinerary))
		sess, err = s.Read(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCompleted, sess.Status)
		assert.JSONEq(t, string(sampleItinerary), string(sess.Itinerary))
		assert.Empty(t, sess.Error)
	})
}

func TestStore_Fail(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ *fakeClock) {
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, "abc"))
		require.NoError(t, s.Fail(ctx, "abc", "engine exploded", models.FailureEngine))

		sess, err := s.Read(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusFailed, sess.Status)
		assert.Equal(t, "engine exploded", sess.Error)
		assert.Equal(t, models.FailureEngine, sess.Code)
		assert.Empty(t, sess.Itinerary)
	})
}

func TestStore_CreateDoesNotResurrectPending(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ *fakeClock) {
		ctx := context.Background()
		require.NoError(t, s.Complete(ctx, "early", sampleItinerary))
		require.NoError(t, s.Create(ctx, "early"))

		sess, err := s.Read(ctx, "early")
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCompleted, sess.Status)
	})
}

func TestStore_ReadIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ *fakeClock) {
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, "waiting"))
		require.NoError(t, s.Create(ctx, "done"))
		require.NoError(t, s.Complete(ctx, "done", sampleItinerary))

		for _, id := range []string{"waiting", "done", "never-created"} {
			first, err := s.Read(ctx, id)
			require.NoError(t, err)
			second, err := s.Read(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, first, second, id)
		}
	})
}

func TestStore_FailPending(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()

		require.NoError(t, s.Create(ctx, "waiting"))
		clock.Advance(time.Second)
		applied, err := s.FailPending(ctx, "waiting", "engine down", models.FailureEngine)
		require.NoError(t, err)
		assert.True(t, applied)
		sess, err := s.Read(ctx, "waiting")
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusFailed, sess.Status)
		assert.Equal(t, "engine down", sess.Error)
		assert.Equal(t, models.FailureEngine, sess.Code)
		assert.True(t, sess.UpdatedAt.After(sess.CreatedAt), "creation time is kept")

		// A second failure does not replace the first.
		applied, err = s.FailPending(ctx, "waiting", "again", models.FailureEngine)
		require.NoError(t, err)
		assert.False(t, applied)
	})
}

func TestStore_FailPendingKeepsCallbackResult(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ *fakeClock) {
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, "abc"))
		require.NoError(t, s.Complete(ctx, "abc", sampleItinerary))

		applied, err := s.FailPending(ctx, "abc", "engine answered 502", models.FailureEngine)
		require.NoError(t, err)
		assert.False(t, applied)

		sess, err := s.Read(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCompleted, sess.Status)
		assert.JSONEq(t, string(sampleItinerary), string(sess.Itinerary))
	})
}

func TestStore_FailPendingSkipsUnknownAndExpired(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, clock *fakeClock) {
		ctx := context.Background()

		applied, err := s.FailPending(ctx, "never-created", "x", models.FailureEngine)
		require.NoError(t, err)
		assert.False(t, applied)
		sess, err := s.Read(ctx, "never-created")
		require.NoError(t, err)
		assert.False(t, sess.Found)

		require.NoError(t, s.Create(ctx, "stale"))
		clock.Advance(testTTL + time.Second)
		applied, err = s.FailPending(ctx, "stale", "x", models.FailureEngine)
		require.NoError(t, err)
		assert.False(t, applied)

		_, err = s.FailPending(ctx, "../escape", "x", models.FailureEngine)
		assert.ErrorIs(t, err, ErrInvalidID)
	})
}

func TestStore_FailPendingRacingComplete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ *fakeClock) {
		ctx := context.Background()
		const n = 20

		applied := make([]bool, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			id := "race-" + string(rune('a'+i))
			require.NoError(t, s.Create(ctx, id))
			wg.Add(2)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Complete(ctx, id, sampleItinerary))
			}()
			go func(i int) {
				defer wg.Done()
				ok, err := s.FailPending(ctx, id, "late failure", models.FailureEngine)
				assert.NoError(t, err)
				applied[i] = ok
			}(i)
		}
		wg.Wait()

		for i := 0; i < n; i++ {
			id := "race-" + string(rune('a'+i))
			sess, err := s.Read(ctx, id)
			require.NoError(t, err)
			if !applied[i] {
				assert.Equal(t, models.SessionStatusCompleted, sess.Status, id)
			}
		}
	})
}

func TestStore_CompleteAcceptsUnseenKey(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ *fakeClock) {
		ctx := context.Background()
		require.NoError(t, s.Complete(ctx, "engine-minted", sampleItinerary))

		sess, err := s.Read(ctx, "engine-minted")
		require.NoError(t, err)
		assert.True(t, sess.Found)
		assert.Equal(t, models.SessionStatusCompleted, sess.Status)
	})
}

func TestStore_LastWriteWins(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ *fakeClock) {
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, "abc"))
		require.NoError(t, s.Complete(ctx, "abc", sampleItinerary))
		require.NoError(t, s.Fail(ctx, "abc", "late duplicate", models.FailureValidation))

		sess, err := s.Read(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusFailed, sess.Status)
		assert.Equal(t, models.FailureValidation, sess.Code)
		assert.Empty(t, sess.Itinerary)
	})
}

func TestStore_InvalidIDs(t *testing.T) {
	bad := []string{"", "../etc/passwd", `a\b`, strings.Repeat("x", MaxIDLength+1)}
	forEachBackend(t, func(t *testing.T, s Store, _ *fakeClock) {
		ctx := context.Background()
		for _, id := range bad {
			assert.ErrorIs(t, s.Create(ctx, id), ErrInvalidID, "create %q", id)
			assert.ErrorIs(t, s.Complete(ctx, id, sampleItinerary), ErrInvalidID, "complete %q", id)
			assert.ErrorIs(t, s.Fail(ctx, id, "x", models.FailureEngine), ErrInvalidID, "fail %q", id)
			_, err := s.Read(ctx, id)
			assert.ErrorIs(t, err, ErrInvalidID, "read %q", id)
		}
	})
}

func TestStore_ConcurrentWriters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ *fakeClock) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if i%2 == 0 {
					assert.NoError(t, s.Complete(ctx, "race", sampleItinerary))
				} else {
					assert.NoError(t, s.Create(ctx, "race"))
				}
			}(i)
		}
		wg.Wait()

		sess, err := s.Read(ctx, "race")
		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusCompleted, sess.Status)
	})
}

func TestStore_ExpiryByClock(t *testing.T) {
	for _, b := range backends() {
		if b.name == "redis" {
			continue
		}
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			s := b.open(t, clock)
			defer s.Close()

			require.NoError(t, s.Complete(ctx, "old", sampleItinerary))
			clock.Advance(testTTL / 2)
			require.NoError(t, s.Create(ctx, "young"))

			clock.Advance(testTTL/2 + time.Second)

			sess, err := s.Read(ctx, "old")
			require.NoError(t, err)
			assert.False(t, sess.Found, "expired entries read as absent before the sweep")
			assert.Equal(t, models.SessionStatusPending, sess.Status)

			n, err := s.Expire(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			sess, err = s.Read(ctx, "young")
			require.NoError(t, err)
			assert.True(t, sess.Found)

			// an expired key can be created afresh
			require.NoError(t, s.Create(ctx, "old"))
			sess, err = s.Read(ctx, "old")
			require.NoError(t, err)
			assert.True(t, sess.Found)
			assert.Equal(t, models.SessionStatusPending, sess.Status)
		})
	}
}

func TestRedisStore_NativeTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStore(client, WithTTL(time.Minute), WithPrefix("trips"))
	ctx := context.Background()

	require.NoError(t, s.Complete(ctx, "abc", sampleItinerary))
	assert.True(t, mr.Exists("trips:session:abc"))
	assert.Equal(t, time.Minute, mr.TTL("trips:session:abc"))

	mr.FastForward(2 * time.Minute)
	sess, err := s.Read(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, sess.Found)

	n, err := s.Expire(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Create(context.Background(), "abc"))
	assert.FileExists(t, filepath.Join(dir, "abc.json"))

	matches, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp files are cleaned up")
}

func TestIDFromPath(t *testing.T) {
	assert.Equal(t, "abc", IDFromPath("/tmp/sessions/abc.json"))
	assert.Equal(t, "", IDFromPath("/tmp/sessions/.abc.123.tmp"))
	assert.Equal(t, "", IDFromPath("/tmp/sessions/abc.txt"))
}

func TestNewIDCarriesTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id, err := NewID()
	require.NoError(t, err)
	require.NoError(t, ValidateID(id))

	created, ok := IDTime(id)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), created, 2*time.Second)
	assert.True(t, created.After(before))

	_, ok = IDTime("engine-session-42")
	assert.False(t, ok)
	_, ok = IDTime("6ba7b810-9dad-11d1-80b4-00c04fd430c8") // v1
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		cfg  config.StoreConfig
		want interface{}
	}{
		{config.StoreConfig{Backend: config.BackendMemory}, &MemoryStore{}},
		{config.StoreConfig{Backend: config.BackendFile, Dir: t.TempDir()}, &FileStore{}},
		{config.StoreConfig{Backend: config.BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "s.db")}, &SQLiteStore{}},
		{config.StoreConfig{Backend: config.BackendRedis, RedisURL: "redis://" + mr.Addr()}, &RedisStore{}},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Backend, func(t *testing.T) {
			s, err := Open(tt.cfg)
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}

	_, err := Open(config.StoreConfig{Backend: "etcd"})
	assert.Error(t, err)
}
