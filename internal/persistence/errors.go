package persistence

import "errors"

var (
	// ErrNotFound is returned when removing an address that is not watched.
	ErrNotFound = errors.New("not found")
	// ErrNoSnapshot is returned when the history holds no snapshot yet.
	ErrNoSnapshot = errors.New("no snapshot recorded")
)
