package models

import "errors"

var (
	// ErrInvalidMessage marks a payload that decoded structurally but
	// violates a schema constraint (range, enum, missing identity).
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidValue marks a sensor value whose shape is not one of
	// scalar, vector, or a flat field map.
	ErrInvalidValue = errors.New("invalid sensor value")
)
