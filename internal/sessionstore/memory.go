package sessionstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/fentz26/tripassist/internal/models"
)

// MemoryStore keeps sessions in process memory. It is not visible to other processes.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	opts     options
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]models.Session),
		opts:     buildOptions(opts),
	}
}

func (s *MemoryStore) Create(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	now := s.opts.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[id]; ok && !expired(cur, now, s.opts.ttl) {
		return nil
	}
	s.sessions[id] = pendingSession(id, now)
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, itinerary json.RawMessage) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	s.put(completedSession(id, append(json.RawMessage(nil), itinerary...), s.opts.now()))
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, id, message string, code models.FailureCode) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	s.put(failedSession(id, message, code, s.opts.now()))
	return nil
}

func (s *MemoryStore) FailPending(_ context.Context, id, message string, code models.FailureCode) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	now := s.opts.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[id]
	if settledOrGone(cur, ok, now, s.opts.ttl) {
		return false, nil
	}
	next := failedSession(id, message, code, now)
	next.CreatedAt = cur.CreatedAt
	s.sessions[id] = next
	return true, nil
}

func (s *MemoryStore) put(next models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[next.ID]; ok && !expired(cur, next.UpdatedAt, s.opts.ttl) {
		next.CreatedAt = cur.CreatedAt
	}
	s.sessions[next.ID] = next
}

func (s *MemoryStore) Read(_ context.Context, id string) (models.Session, error) {
	if err := ValidateID(id); err != nil {
		return models.Session{}, err
	}
	s.mu.Lock()
	cur, ok := s.sessions[id]
	s.mu.Unlock()

	if !ok || expired(cur, s.opts.now(), s.opts.ttl) {
		return absent(id), nil
	}
	return cur, nil
}

func (s *MemoryStore) Expire(_ context.Context) (int, error) {
	now := s.opts.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, cur := range s.sessions {
		if expired(cur, now, s.opts.ttl) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of entries held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MemoryStore) Close() error {
	return nil
}
