package registry

import "errors"

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrInvalidConfig  = errors.New("invalid registry config")
)
