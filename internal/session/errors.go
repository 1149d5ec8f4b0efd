package session

import "errors"

var (
	// ErrBadImage is returned when uploaded bytes are not a supported image
	ErrBadImage = errors.New("unsupported image")

	errNoRemote = errors.New("no remote configured")
)
