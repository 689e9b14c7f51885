package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/tripassist/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps sessions in a SQLite database file. Processes on one host that
// open the same file share sessions.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, opts: buildOptions(opts)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Ping checks the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		itinerary TEXT,
		error TEXT,
		code TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// cutoff is the oldest updated_at (unix ms) still considered live.
func (s *SQLiteStore) cutoff(now time.Time) int64 {
	return now.Add(-s.opts.ttl).UnixMilli()
}

func (s *SQLiteStore) Create(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	now := s.opts.now()
	ms := now.UnixMilli()

	// An expired row is replaced; a live one is left alone.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, itinerary = NULL, error = NULL, code = NULL,
			created_at = excluded.created_at, updated_at = excluded.updated_at
		WHERE sessions.updated_at < ?`,
		id, string(models.SessionStatusPending), ms, ms, s.cutoff(now))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Complete(ctx context.Context, id string, itinerary json.RawMessage) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return s.upsert(ctx, id, models.SessionStatusCompleted, string(itinerary), "", "")
}

func (s *SQLiteStore) Fail(ctx context.Context, id, message string, code models.FailureCode) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return s.upsert(ctx, id, models.SessionStatusFailed, "", message, string(code))
}

func (s *SQLiteStore) FailPending(ctx context.Context, id, message string, code models.FailureCode) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	now := s.opts.now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, itinerary = NULL, error = NULLIF(?, ''), code = NULLIF(?, ''), updated_at = ?
		WHERE id = ? AND status = ? AND updated_at >= ?`,
		string(models.SessionStatusFailed), message, string(code), now.UnixMilli(),
		id, string(models.SessionStatusPending), s.cutoff(now))
	if err != nil {
		return false, fmt.Errorf("fail pending session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) upsert(ctx context.Context, id string, status models.SessionStatus, itinerary, message, code string) error {
	now := s.opts.now()
	ms := now.UnixMilli()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, status, itinerary, error, code, created_at, updated_at)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, itinerary = excluded.itinerary,
			error = excluded.error, code = excluded.code,
			created_at = CASE WHEN sessions.updated_at < ? THEN excluded.created_at ELSE sessions.created_at END,
			updated_at = excluded.updated_at`,
		id, string(status), itinerary, message, code, ms, ms, s.cutoff(now))
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Read(ctx context.Context, id string) (models.Session, error) {
	if err := ValidateID(id); err != nil {
		return models.Session{}, err
	}

	var (
		sess                     models.Session
		status                   string
		itinerary, message, code sql.NullString
		createdAt, updatedAt     int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT status, itinerary, error, code, created_at, updated_at FROM sessions WHERE id = ?", id,
	).Scan(&status, &itinerary, &message, &code, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return absent(id), nil
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("query session: %w", err)
	}

	sess.ID = id
	sess.Found = true
	sess.Status = models.SessionStatus(status)
	sess.CreatedAt = time.UnixMilli(createdAt)
	sess.UpdatedAt = time.UnixMilli(updatedAt)
	if itinerary.Valid {
		sess.Itinerary = json.RawMessage(itinerary.String)
	}
	sess.Error = message.String
	sess.Code = models.FailureCode(code.String)

	if expired(sess, s.opts.now(), s.opts.ttl) {
		return absent(id), nil
	}
	return sess, nil
}

func (s *SQLiteStore) Expire(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE updated_at < ?", s.cutoff(s.opts.now()))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
