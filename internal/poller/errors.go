package poller

import "errors"

var (
	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("poller already started")

	// ErrClosed is returned when starting a poller that was stopped or halted
	ErrClosed = errors.New("poller closed")
)
