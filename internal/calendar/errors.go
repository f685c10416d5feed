package calendar

import (
	"encoding/json"
	"fmt"
)

// ParseErrorKind classifies why a document could not be turned into a model.
type ParseErrorKind string

const (
	// MissingField: a required field is absent.
	MissingField ParseErrorKind = "missing_field"
	// InvalidFormat: a field is present but has the wrong shape or type.
	InvalidFormat ParseErrorKind = "invalid_format"
	// OutOfRange: a field is well-formed but semantically impossible.
	OutOfRange ParseErrorKind = "out_of_range"
)

// ParseError is returned by Parse and by the schedule parser. Field names the
// offending field (or field type); Value is the offending raw value, empty
// for MissingField.
type ParseError struct {
	Kind  ParseErrorKind
	Field string
	Value string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case MissingField:
		return fmt.Sprintf("parse: missing field %q", e.Field)
	case InvalidFormat:
		return fmt.Sprintf("parse: invalid %s: %s", e.Field, e.Value)
	default:
		return fmt.Sprintf("parse: %s out of range: %s", e.Field, e.Value)
	}
}

// Is matches another *ParseError with the same Kind, so callers can write
// errors.Is(err, &calendar.ParseError{Kind: calendar.OutOfRange}).
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Field == "" || t.Field == e.Field)
}

func missing(field string) *ParseError {
	return &ParseError{Kind: MissingField, Field: field}
}

func invalid(field string, value any) *ParseError {
	return &ParseError{Kind: InvalidFormat, Field: field, Value: valueString(value)}
}

func outOfRange(field string, value any) *ParseError {
	return &ParseError{Kind: OutOfRange, Field: field, Value: valueString(value)}
}

// Exported constructors for sibling parsers (schedule documents) that share
// the taxonomy.

func NewMissingField(field string) *ParseError { return missing(field) }

func NewInvalidFormat(field string, value any) *ParseError { return invalid(field, value) }

func NewOutOfRange(field string, value any) *ParseError { return outOfRange(field, value) }

func valueString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case json.RawMessage:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
