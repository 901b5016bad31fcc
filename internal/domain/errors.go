package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTransient         = errors.New("transient exchange error")
	ErrDuplicatePosition = errors.New("position already open")
	ErrEntryNotFilled    = errors.New("entry order not filled")
	ErrInvalidQuantity   = errors.New("quantity rounds to zero")
	ErrNoFillDetail      = errors.New("no fill detail")
	ErrLockHeld          = errors.New("lock already held")
)
