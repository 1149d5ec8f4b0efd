package keymap

import "errors"

var (
	// ErrInvalidDocument is returned when a document violates the schema
	ErrInvalidDocument = errors.New("invalid mapping document")

	// ErrUnknownGesture is returned for a TYPE outside the gesture enumeration
	ErrUnknownGesture = errors.New("unknown gesture type")

	// ErrInvalidEntry is returned when an entry is missing a required field or has the wrong shape
	ErrInvalidEntry = errors.New("invalid mapping entry")
)
