package store

import (
	"errors"

	"touchmap/internal/editor"
)

var (
	// ErrOutOfBounds is returned when a point lies outside the reference image
	ErrOutOfBounds = errors.New("point outside the image")

	// ErrDuplicateSwitchKey is returned when adding a switch key that is already present.
	// The document is left unchanged; callers treat it as a notice, not a failure.
	ErrDuplicateSwitchKey = errors.New("switch key already present")

	// ErrNotMapped is returned when an edit targets a key without an entry
	ErrNotMapped = errors.New("key not mapped")

	// ErrIndexOutOfRange is returned when removing a switch key or point that does not exist
	ErrIndexOutOfRange = editor.ErrIndexOutOfRange

	// ErrInvalidKey is returned for an empty key id
	ErrInvalidKey = errors.New("invalid key")

	// ErrValueOutOfRange is returned when a wheel radius or mouse speed is not acceptable
	ErrValueOutOfRange = errors.New("value out of range")
)
