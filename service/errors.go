package service

import "errors"

// Service package errors.
var (
	// ErrNotFound indicates a resource was not found.
	ErrNotFound = errors.New("service: not found")

	// ErrInvalidInput indicates a request failed validation.
	ErrInvalidInput = errors.New("service: invalid input")

	// ErrConflict indicates a state transition that is no longer possible,
	// e.g. accepting an offer that already expired.
	ErrConflict = errors.New("service: conflicting state")
)
