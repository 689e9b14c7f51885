package itinerary

import (
	"encoding/json"
	"fmt"

	"github.com/fentz26/tripassist/internal/apperr"
	"github.com/fentz26/tripassist/internal/models"
)

// DefaultEngineErrorMessage is used when the engine flags an error without text.
const DefaultEngineErrorMessage = "the itinerary service reported an error"

// Outcome is what a callback payload resolves to: either a validated itinerary or
// a failure with its code.
type Outcome struct {
	Itinerary json.RawMessage
	Code      models.FailureCode
	Message   string
}

// Failed reports whether the outcome carries a failure.
func (o Outcome) Failed() bool {
	return o.Code != ""
}

// Result converts the outcome to the client-facing shape.
func (o Outcome) Result() models.Result {
	if o.Failed() {
		return models.FailedResult(o.Code, o.Message)
	}
	return models.CompletedResult(o.Itinerary)
}

// ParseCallback resolves a webhook body. The accepted shapes, tried in order:
//
//  1. an error payload: "error" is a non-empty string, an object, or true with a "message"
//  2. {"itinerary": {...}}
//  3. a single-element array wrapping either of the object forms
//  4. the itinerary fields inlined at the top level
//
// Anything else is a validation failure.
func (v *Validator) ParseCallback(body []byte) Outcome {
	value, err := decode(body)
	if err != nil {
		return validationFailure(err)
	}

	obj, err := unwrapObject(value)
	if err != nil {
		return validationFailure(err)
	}

	if msg, ok := engineError(obj); ok {
		return Outcome{Code: models.FailureEngine, Message: msg}
	}

	candidate := interface{}(obj)
	if nested, ok := obj["itinerary"]; ok {
		candidate = nested
	}

	raw, err := v.Validate(candidate)
	if err != nil {
		return validationFailure(err)
	}
	return Outcome{Itinerary: raw}
}

// ParseEngineResponse extracts the itinerary from a synchronous engine response.
// The itinerary is read from the "data" key, falling back to the body itself. When
// dates is non-nil the itinerary's start and end dates are replaced by the
// requested range.
func (v *Validator) ParseEngineResponse(body []byte, dates *models.DateRange) (json.RawMessage, error) {
	value, err := decode(body)
	if err != nil {
		return nil, err
	}

	obj, err := unwrapObject(value)
	if err != nil {
		return nil, err
	}

	if msg, ok := engineError(obj); ok {
		return nil, apperr.New(apperr.CodeEngineError, msg)
	}

	if data, ok := obj["data"].(map[string]interface{}); ok {
		obj = data
	}

	if dates != nil {
		obj["startDate"] = dates.From
		obj["endDate"] = dates.To
	}

	return v.Validate(obj)
}

// unwrapObject accepts an object or a one-element array holding an object.
func unwrapObject(value interface{}) (map[string]interface{}, error) {
	if list, ok := value.([]interface{}); ok {
		if len(list) != 1 {
			return nil, apperr.Newf(apperr.CodeValidationFailed,
				"expected a single itinerary, got an array of %d elements", len(list))
		}
		value = list[0]
	}
	obj, ok := value.(map[string]interface{})
	if !ok {
		return nil, apperr.New(apperr.CodeValidationFailed, "expected a JSON object")
	}
	return obj, nil
}

// engineError reports whether obj is the engine describing its own failure.
func engineError(obj map[string]interface{}) (string, bool) {
	raw, ok := obj["error"]
	if !ok {
		return "", false
	}
	switch e := raw.(type) {
	case string:
		if e == "" {
			return "", false
		}
		return e, true
	case bool:
		if !e {
			return "", false
		}
		if msg, ok := obj["message"].(string); ok && msg != "" {
			return msg, true
		}
		return DefaultEngineErrorMessage, true
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Sprint(e), true
		}
		return string(data), true
	default:
		return "", false
	}
}

func validationFailure(err error) Outcome {
	return Outcome{Code: models.FailureValidation, Message: apperr.Message(err)}
}
