package exchange

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidState     = errors.New("invalid state")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrWindowExpired    = errors.New("cancellation window expired")
	ErrConflict         = errors.New("conflict")
	ErrNoParticipants   = errors.New("no matched participants")
	ErrInvalidInput     = errors.New("invalid input")
)
