package ir

import (
	"errors"
	"fmt"
)

// ProtocolError is a fatal violation of the command protocol by a producer.
//
// Benign races (stale references, failed conditions) are never errors.
// A ProtocolError means the event could not be understood at all and is
// propagated out of Submit so the transport can decide how to react.
type ProtocolError struct {
	// Code identifies the error category.
	Code ProtocolErrorCode

	// Message is a human-readable description.
	Message string

	// EventID identifies the offending event, if it had one.
	EventID string
}

// ProtocolErrorCode categorizes protocol errors.
type ProtocolErrorCode string

const (
	// ErrCodeMalformed indicates the wire text is not a JSON object or a field
	// has the wrong type.
	ErrCodeMalformed ProtocolErrorCode = "MALFORMED_EVENT"

	// ErrCodeUnknownCommand indicates no recognised operation was present.
	ErrCodeUnknownCommand ProtocolErrorCode = "UNKNOWN_COMMAND"

	// ErrCodeMissingEventID indicates a submitted event had no id.
	ErrCodeMissingEventID ProtocolErrorCode = "MISSING_EVENT_ID"
)

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.EventID != "" {
		return fmt.Sprintf("%s: %s (event=%s)", e.Code, e.Message, e.EventID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsProtocolError returns true if err is (or wraps) a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// ProtocolCode extracts the code from a wrapped ProtocolError.
// Returns the empty code if err is not a ProtocolError.
func ProtocolCode(err error) ProtocolErrorCode {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// NewMalformedError creates a ProtocolError for undecodable input.
func NewMalformedError(eventID, format string, args ...any) *ProtocolError {
	return &ProtocolError{
		Code:    ErrCodeMalformed,
		Message: fmt.Sprintf(format, args...),
		EventID: eventID,
	}
}

// NewUnknownCommandError creates a ProtocolError for an unrecognised shape.
func NewUnknownCommandError(eventID string) *ProtocolError {
	return &ProtocolError{
		Code:    ErrCodeUnknownCommand,
		Message: "event has no set, remove or insert operation",
		EventID: eventID,
	}
}

// NewMissingEventIDError creates a ProtocolError for an event without an id.
func NewMissingEventIDError(kind CommandKind) *ProtocolError {
	return &ProtocolError{
		Code:    ErrCodeMissingEventID,
		Message: fmt.Sprintf("%s event requires an id", kind),
	}
}
