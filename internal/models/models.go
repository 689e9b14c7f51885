// Package models defines the core domain types for tripassist.
package models

import (
	"encoding/json"
	"time"
)

// SessionStatus represents the current state of a planning session.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusNotFound  SessionStatus = "not_found"
)

// Terminal reports whether no further transition is expected.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// FailureCode distinguishes why a session ended without an itinerary.
type FailureCode string

const (
	FailureEngine     FailureCode = "engine_error"
	FailureValidation FailureCode = "validation_error"
	FailureTimeout    FailureCode = "timeout"
	FailureNotFound   FailureCode = "not_found"
)

// Session is the unit of coordination between submission and delivery.
type Session struct {
	ID        string          `json:"id"`
	Status    SessionStatus   `json:"status"`
	Itinerary json.RawMessage `json:"itinerary,omitempty"`
	Error     string          `json:"error,omitempty"`
	Code      FailureCode     `json:"code,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	// Found is false when the store holds no live entry for ID.
	Found bool `json:"-"`
}

// Result returns the client-facing view of the session.
func (s Session) Result() Result {
	return Result{
		Status:    s.Status,
		Itinerary: s.Itinerary,
		Error:     s.Error,
		Code:      s.Code,
	}
}

// Result is the wire shape returned by the result and stream endpoints.
type Result struct {
	Status    SessionStatus   `json:"status"`
	Itinerary json.RawMessage `json:"itinerary,omitempty"`
	Error     string          `json:"error,omitempty"`
	Code      FailureCode     `json:"code,omitempty"`
}

// PendingResult is returned while no terminal state is known.
func PendingResult() Result {
	return Result{Status: SessionStatusPending}
}

// CompletedResult wraps a finished itinerary.
func CompletedResult(itinerary json.RawMessage) Result {
	return Result{Status: SessionStatusCompleted, Itinerary: itinerary}
}

// FailedResult wraps a failure message.
func FailedResult(code FailureCode, message string) Result {
	return Result{Status: SessionStatusFailed, Error: message, Code: code}
}

// SubmissionMode tells the caller where the itinerary will come from.
type SubmissionMode string

const (
	// SubmissionAsync returns a session id; the result arrives via callback.
	SubmissionAsync SubmissionMode = "async"
	// SubmissionSync returns the itinerary from the engine's response body.
	SubmissionSync SubmissionMode = "sync"
)

// Submission is the outcome of Submit. Exactly one of SessionID or Itinerary is set,
// depending on Mode.
type Submission struct {
	Mode      SubmissionMode  `json:"mode"`
	SessionID string          `json:"sessionId,omitempty"`
	Itinerary json.RawMessage `json:"itinerary,omitempty"`
}
