package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fentz26/tripassist/internal/models"
)

// FileSuffix is the extension of session documents.
const FileSuffix = ".json"

// FileStore keeps one JSON document per session in a directory, so that separate
// processes sharing the directory see each other's writes. Writers in one process
// are serialized; conditional writes from separate processes are not.
type FileStore struct {
	dir  string
	opts options
	mu   sync.Mutex
}

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{dir: dir, opts: buildOptions(opts)}, nil
}

// Dir returns the session directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// IDFromPath returns the session id for a document path, or "" when path is not a
// session document.
func IDFromPath(path string) string {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, FileSuffix) {
		return ""
	}
	id := strings.TrimSuffix(name, FileSuffix)
	if ValidateID(id) != nil {
		return ""
	}
	return id
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+FileSuffix)
}

func (s *FileStore) Create(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	now := s.opts.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp, err := s.writeTemp(pendingSession(id, now))
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	// Link fails when the target exists, which keeps Create from clobbering a
	// result that arrived first.
	err = os.Link(tmp, s.path(id))
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create session: %w", err)
	}

	cur, ok, err := s.load(id)
	if err != nil {
		return err
	}
	if ok && !expired(cur, now, s.opts.ttl) {
		return nil
	}
	if err := os.Rename(tmp, s.path(id)); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *FileStore) Complete(_ context.Context, id string, itinerary json.RawMessage) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return s.replace(completedSession(id, itinerary, s.opts.now()))
}

func (s *FileStore) Fail(_ context.Context, id, message string, code models.FailureCode) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return s.replace(failedSession(id, message, code, s.opts.now()))
}

func (s *FileStore) FailPending(_ context.Context, id, message string, code models.FailureCode) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	now := s.opts.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok, err := s.load(id)
	if err != nil {
		return false, err
	}
	if settledOrGone(cur, ok, now, s.opts.ttl) {
		return false, nil
	}
	next := failedSession(id, message, code, now)
	next.CreatedAt = cur.CreatedAt
	if err := s.write(next); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) replace(next models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok, err := s.load(next.ID); err == nil && ok && !expired(cur, next.UpdatedAt, s.opts.ttl) {
		next.CreatedAt = cur.CreatedAt
	}
	return s.write(next)
}

func (s *FileStore) write(next models.Session) error {
	tmp, err := s.writeTemp(next)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path(next.ID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (s *FileStore) writeTemp(sess models.Session) (string, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	f, err := os.CreateTemp(s.dir, "."+sess.ID+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), nil
}

func (s *FileStore) load(id string) (models.Session, bool, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Session{}, false, nil
		}
		return models.Session{}, false, fmt.Errorf("read session: %w", err)
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return models.Session{}, false, fmt.Errorf("decode session %s: %w", id, err)
	}
	sess.ID = id
	sess.Found = true
	return sess, true, nil
}

func (s *FileStore) Read(_ context.Context, id string) (models.Session, error) {
	if err := ValidateID(id); err != nil {
		return models.Session{}, err
	}
	cur, ok, err := s.load(id)
	if err != nil {
		return models.Session{}, err
	}
	if !ok || expired(cur, s.opts.now(), s.opts.ttl) {
		return absent(id), nil
	}
	return cur, nil
}

func (s *FileStore) Expire(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	now := s.opts.now()
	n := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		id := IDFromPath(entry.Name())
		if entry.IsDir() || id == "" {
			continue
		}
		cur, ok, err := s.load(id)
		if err != nil || !ok {
			continue
		}
		if expired(cur, now, s.opts.ttl) {
			if err := os.Remove(s.path(id)); err == nil {
				n++
			}
		}
	}
	return n, nil
}

func (s *FileStore) Close() error {
	return nil
}
