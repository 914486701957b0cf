package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidJob             = errors.New("invalid job")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrStoreWrite             = errors.New("store write failed")
	ErrStoreRead              = errors.New("store read failed")
	ErrTriggerInvocation      = errors.New("processor trigger failed")
)
