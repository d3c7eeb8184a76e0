package fhirobject

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below match them through errors.Is.
var (
	// ErrSchemaNotFound is returned when the schema origin has no definition for a type.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrMalformedReference is returned when a contentReference target cannot be located.
	ErrMalformedReference = errors.New("malformed content reference")

	// ErrInvalidValue is returned when a raw value cannot carry the type its schema declares.
	ErrInvalidValue = errors.New("invalid value")
)

// SchemaNotFoundError reports a type the schema origin does not define.
type SchemaNotFoundError struct {
	TypeName string
	Reason   string
}

func (e *SchemaNotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("schema not found for type %s: %s", e.TypeName, e.Reason)
	}
	return fmt.Sprintf("schema not found for type %s", e.TypeName)
}

// Is reports whether target is ErrSchemaNotFound.
func (e *SchemaNotFoundError) Is(target error) bool {
	return target == ErrSchemaNotFound
}

// TransportError reports a failed schema fetch call (I/O or non-success response).
type TransportError struct {
	TypeName   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("error while loading the %s schema (status %d): %v", e.TypeName, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("error while loading the %s schema (status %d)", e.TypeName, e.StatusCode)
	default:
		return fmt.Sprintf("error while loading the %s schema: %v", e.TypeName, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedReferenceError reports a contentReference whose target id is absent
// from the root schema's element list.
type MalformedReferenceError struct {
	Path      string
	Reference string
}

func (e *MalformedReferenceError) Error() string {
	return fmt.Sprintf("element %s: content reference %q does not resolve", e.Path, e.Reference)
}

// Is reports whether target is ErrMalformedReference.
func (e *MalformedReferenceError) Is(target error) bool {
	return target == ErrMalformedReference
}

// InvalidValueError reports a raw value whose shape does not fit its declared type.
type InvalidValueError struct {
	Path   string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value at %s: %s", e.Path, e.Reason)
}

// Is reports whether target is ErrInvalidValue.
func (e *InvalidValueError) Is(target error) bool {
	return target == ErrInvalidValue
}

// DecodeError wraps the failure that aborted a decode with the instance path
// (e.g. "Patient.contact[0].name") where it happened.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
