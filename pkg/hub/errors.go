package hub

import "errors"

var (
	ErrInvalidPattern = errors.New("invalid topic pattern")
	ErrNotStarted     = errors.New("hub not started")
	ErrUnknownRequest = errors.New("no outstanding command for request id")
)
