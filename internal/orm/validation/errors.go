package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrValidation is wrapped by every Errors value
var ErrValidation = errors.New("validation failed")

// Errors contains the failed rules of a record, keyed by field
type Errors struct {
	Entity    string              `json:"-"`
	Operation Operation           `json:"-"`
	Fields    map[string][]string `json:"fields"`
}

// NewErrors creates an empty error set
func NewErrors(entity string, op Operation) *Errors {
	return &Errors{
		Entity:    entity,
		Operation: op,
		Fields:    make(map[string][]string),
	}
}

// Add adds a validation error for a specific field
func (ve *Errors) Add(field, message string) {
	if ve.Fields == nil {
		ve.Fields = make(map[string][]string)
	}
	ve.Fields[field] = append(ve.Fields[field], message)
}

// HasErrors returns true if there are any validation errors
func (ve *Errors) HasErrors() bool {
	return len(ve.Fields) > 0
}

// Count returns the total number of validation errors across all fields
func (ve *Errors) Count() int {
	count := 0
	for _, messages := range ve.Fields {
		count += len(messages)
	}
	return count
}

// Error implements the error interface
func (ve *Errors) Error() string {
	if !ve.HasErrors() {
		return "validation failed"
	}

	fields := make([]string, 0, len(ve.Fields))
	for field := range ve.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var messages []string
	for _, field := range fields {
		for _, msg := range ve.Fields[field] {
			messages = append(messages, fmt.Sprintf("%s: %s", field, msg))
		}
	}

	prefix := "validation failed"
	if ve.Entity != "" {
		prefix = fmt.Sprintf("validation failed for %s on %s", ve.Entity, ve.Operation)
	}
	return fmt.Sprintf("%s: %s", prefix, strings.Join(messages, "; "))
}

// Unwrap returns ErrValidation
func (ve *Errors) Unwrap() error {
	return ErrValidation
}

// MarshalJSON implements json.Marshaler for custom JSON serialization
func (ve *Errors) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error  string              `json:"error"`
		Fields map[string][]string `json:"fields"`
	}{
		Error:  "validation_failed",
		Fields: ve.Fields,
	})
}
