package models

import (
	"sort"
	"strings"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

const (
	MinAge = 1
	MaxAge = 120
)

// SubjectMetadata describes the person shown in the submitted video.
type SubjectMetadata struct {
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender Gender `json:"gender"`
}

// FieldErrors maps a form field to the message shown next to it.
type FieldErrors map[string]string

// Fields returns the field names in stable order.
func (fe FieldErrors) Fields() []string {
	names := make([]string, 0, len(fe))
	for k := range fe {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate checks the metadata without side effects. A nil map means valid.
func (m SubjectMetadata) Validate() FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(m.Name) == "" {
		errs["name"] = "Name is required"
	}

	switch {
	case m.Age < MinAge:
		errs["age"] = "Age must be positive"
	case m.Age > MaxAge:
		errs["age"] = "Invalid age"
	}

	switch m.Gender {
	case GenderMale, GenderFemale:
	default:
		errs["gender"] = "Gender is required"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidationError is a local failure that never reaches the network.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields.Fields() {
		parts = append(parts, f+": "+e.Fields[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: FieldErrors{field: msg}}
}
