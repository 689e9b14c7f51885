// Package audit writes decision records for state-changing session actions.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fentz26/tripassist/internal/logging"
)

// Actions recorded by the delivery core.
const (
	ActionSubmit   = "session.submit"
	ActionCallback = "session.callback"
	ActionExpire   = "session.expire"
)

// Record is one decision record. Inputs are kept only as a hash so that traveller
// preferences and itineraries never reach the log.
type Record struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	SessionID  string    `json:"session_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Recorder emits records through a structured logger.
type Recorder struct {
	logger *logrus.Entry
}

// NewRecorder creates a recorder. A nil logger uses the "audit" component logger.
func NewRecorder(logger *logrus.Entry) *Recorder {
	if logger == nil {
		logger = logging.NewLogger("audit")
	}
	return &Recorder{logger: logger}
}

// Record writes an entry for a state-mutating action.
func (r *Recorder) Record(action string, inputs interface{}, outcome, sessionID, details string) Record {
	rec := Record{
		ID:         uuid.NewString(),
		Action:     action,
		InputsHash: hashInputs(inputs),
		Outcome:    outcome,
		SessionID:  sessionID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	r.logger.WithFields(logrus.Fields{
		"pdr_id":      rec.ID,
		"action":      rec.Action,
		"inputs_hash": rec.InputsHash,
		"outcome":     rec.Outcome,
		"session_id":  rec.SessionID,
		"details":     rec.Details,
	}).Info("Decision recorded")

	return rec
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	if raw, ok := inputs.([]byte); ok {
		hash := sha256.Sum256(raw)
		return hex.EncodeToString(hash[:])
	}
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
