package editor

import "errors"

var (
	// ErrGestureNotAllowed is returned when a gesture cannot be bound to the key (wheel pulses)
	ErrGestureNotAllowed = errors.New("gesture not allowed for key")

	// ErrNotMultiPoint is returned when a point list edit targets a single-point entry
	ErrNotMultiPoint = errors.New("entry has no point list")

	// ErrBadInterval is returned when interval values do not fit the gesture
	ErrBadInterval = errors.New("bad interval")

	// ErrIndexOutOfRange is returned when removing a point that does not exist
	ErrIndexOutOfRange = errors.New("point index out of range")
)
