package monitor

import "errors"

var (
	// ErrInvalidTransition is returned when a command is not allowed in the execution's current status
	ErrInvalidTransition = errors.New("command not allowed in current status")
	// ErrClosed is returned after the monitor was closed
	ErrClosed = errors.New("monitor closed")
)
