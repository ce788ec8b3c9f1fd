package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when the backend has no such resource
	ErrNotFound = errors.New("resource not found")

	// ErrBadRequest is returned when the backend rejects a request, e.g. a command in the wrong state
	ErrBadRequest = errors.New("bad request")

	// ErrConflict is returned when the resource already exists
	ErrConflict = errors.New("resource conflict")

	// ErrServer is returned for 5xx responses
	ErrServer = errors.New("backend error")
)

// Error is a non-2xx response from the backend
type Error struct {
	StatusCode int
	Method     string
	Path       string
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Detail)
}

// Unwrap maps the status code onto the package sentinels
func (e *Error) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return ErrConflict
	case e.StatusCode >= 500:
		return ErrServer
	case e.StatusCode >= 400:
		return ErrBadRequest
	}
	return nil
}
