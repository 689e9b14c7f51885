package apperr

import "fmt"

// ConfigMissing creates an error for a required configuration value that is not set.
func ConfigMissing(name string) *Error {
	return New(CodeConfigInvalid, fmt.Sprintf("the %s setting is not configured", name)).
		WithDetail("setting", name)
}

// ConfigInvalid creates an invalid configuration error.
func ConfigInvalid(reason string) *Error {
	return New(CodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// SubmissionFailed wraps an outbound call failure.
func SubmissionFailed(err error) *Error {
	return Wrap(err, CodeSubmissionFailed, "the itinerary service could not be reached")
}

// EngineStatus creates an error for a non-success engine response.
func EngineStatus(status int, text string) *Error {
	return New(CodeSubmissionFailed,
		fmt.Sprintf("the itinerary generation service failed with status: %d %s", status, text)).
		WithDetail("status", status)
}

// Timeout creates an error for a result that never arrived.
func Timeout(sessionID string) *Error {
	return New(CodeTimeout, "the itinerary service did not respond in time").
		WithDetail("sessionId", sessionID)
}

// NotFound creates an error for a session that does not exist.
func NotFound(sessionID string) *Error {
	return New(CodeNotFound, fmt.Sprintf("session %s not found", sessionID)).
		WithDetail("sessionId", sessionID)
}
