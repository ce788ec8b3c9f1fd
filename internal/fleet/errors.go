package fleet

import "errors"

var (
	// ErrClientNotFound is returned when a client is not in the cached roster
	ErrClientNotFound = errors.New("client not found")
	// ErrEmptyBatch is returned when no entry of a batch has a usable hostname
	ErrEmptyBatch = errors.New("no clients to register")
	// ErrNoRoster is returned before the roster was fetched once
	ErrNoRoster = errors.New("client roster not loaded")
)
