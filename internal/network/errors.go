package network

import "errors"

// ErrNoBaseline is returned when no source holds a baseline for a target
var ErrNoBaseline = errors.New("no network baseline")
