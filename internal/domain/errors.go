package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrMarketExpired = errors.New("market trading window has closed")
	ErrInvalidLabel  = errors.New("invalid market label")
	ErrResolveTime   = errors.New("resolve time too close or in the past")
)
