package gateway

import (
	"errors"
	"net/http"

	"github.com/fentz26/tripassist/internal/apperr"
	"github.com/fentz26/tripassist/internal/sessionstore"
)

// Sentinel errors for gateway operations.
var (
	ErrMissingSessionID  = errors.New("session id is required")
	ErrUnknownDiscipline = errors.New("unknown submission discipline")
)

// httpStatus maps an error to the status code the API answers with.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrMissingSessionID), errors.Is(err, sessionstore.ErrInvalidID):
		return http.StatusBadRequest
	}

	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidInput:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeSubmissionFailed, apperr.CodeEngineError, apperr.CodeValidationFailed:
		return http.StatusBadGateway
	case apperr.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse is the JSON body of a failed API call.
type errorResponse struct {
	Error   string                 `json:"error"`
	Code    apperr.Code            `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func newErrorResponse(err error) errorResponse {
	resp := errorResponse{Error: apperr.Message(err), Code: apperr.CodeOf(err)}
	var e *apperr.Error
	if errors.As(err, &e) {
		resp.Details = e.Details
	}
	if resp.Code == "" && httpStatus(err) == http.StatusBadRequest {
		resp.Code = apperr.CodeInvalidInput
	}
	return resp
}
