// Package itinerary validates and normalizes itineraries produced by the engine.
package itinerary

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/fentz26/tripassist/internal/apperr"
)

//go:embed itinerary.schema.json
var embeddedSchemaData []byte

// Activity defaults applied when the engine omits or mistypes a field.
const (
	DefaultActivityType = "activity"
	DefaultActivityIcon = "default"
)

// Validator checks raw itineraries against the embedded JSON Schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("itinerary.json", bytes.NewReader(embeddedSchemaData)); err != nil {
		return nil, fmt.Errorf("failed to add embedded schema resource: %w", err)
	}

	schema, err := compiler.Compile("itinerary.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile embedded schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// Validate checks a decoded JSON value and returns it normalized and re-encoded.
// A shape mismatch is reported as a VALIDATION_FAILED error listing each violation.
func (v *Validator) Validate(value interface{}) (json.RawMessage, error) {
	if err := v.schema.Validate(value); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			var violations []string
			collectErrors(validationErr, &violations)
			return nil, apperr.New(apperr.CodeValidationFailed,
				"the itinerary data has an invalid format:\n"+strings.Join(violations, "\n")).
				WithDetail("violations", violations)
		}
		return nil, apperr.Wrap(err, apperr.CodeValidationFailed, "the itinerary data has an invalid format")
	}

	normalize(value)

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode itinerary: %w", err)
	}
	return data, nil
}

// collectErrors gathers the leaf violations, which carry the specific messages.
func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if len(err.Causes) == 0 {
		location := err.InstanceLocation
		if location == "" {
			location = "/"
		}
		*messages = append(*messages, fmt.Sprintf("- %s: %s", location, err.Message))
		return
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}

var templateSlots = []string{"startOfDay", "breakfast", "lunch", "dinner", "endOfDay"}

var templateLists = []string{"morningActivities", "middayActivities", "eveningActivities", "nightlifeActivities"}

// normalize fills activity type and icon defaults in place.
func normalize(value interface{}) {
	root, ok := value.(map[string]interface{})
	if !ok {
		return
	}
	days, _ := root["days"].([]interface{})
	for _, d := range days {
		day, ok := d.(map[string]interface{})
		if !ok {
			continue
		}
		normalizeList(day["activities"])

		template, ok := day["template"].(map[string]interface{})
		if !ok {
			continue
		}
		for _, slot := range templateSlots {
			normalizeActivity(template[slot])
		}
		for _, list := range templateLists {
			normalizeList(template[list])
		}
	}
}

func normalizeList(value interface{}) {
	list, _ := value.([]interface{})
	for _, a := range list {
		normalizeActivity(a)
	}
}

func normalizeActivity(value interface{}) {
	activity, ok := value.(map[string]interface{})
	if !ok {
		return
	}
	if s, ok := activity["type"].(string); !ok || s == "" {
		activity["type"] = DefaultActivityType
	}
	if s, ok := activity["icon"].(string); !ok || s == "" {
		activity["icon"] = DefaultActivityIcon
	}
}

// decode parses JSON keeping numbers exact.
func decode(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidationFailed, "the payload is not valid JSON")
	}
	if dec.More() {
		return nil, apperr.New(apperr.CodeValidationFailed, "the payload has trailing data after the JSON value")
	}
	return value, nil
}
