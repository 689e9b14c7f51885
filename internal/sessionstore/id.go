package sessionstore

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh time-ordered session identifier.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IDTime returns the creation time embedded in a session id. ok is false for ids
// that carry no timestamp, such as ids minted by the engine.
func IDTime(id string) (t time.Time, ok bool) {
	u, err := uuid.Parse(id)
	if err != nil || u.Version() != 7 {
		return time.Time{}, false
	}
	ms := int64(binary.BigEndian.Uint64(u[:8]) >> 16)
	return time.UnixMilli(ms), true
}
