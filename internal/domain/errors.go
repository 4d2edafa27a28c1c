package domain

import "errors"

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountLocked         = errors.New("account locked")
	ErrAccountInactive       = errors.New("account inactive")
	ErrInvalidToken          = errors.New("invalid token")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrConflict              = errors.New("email or username already in use")
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrNotFound              = errors.New("not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrForbidden             = errors.New("forbidden")
)
