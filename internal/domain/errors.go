package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrAlreadyTerminal = errors.New("task already terminal")
	ErrInvalidRequest  = errors.New("invalid request")
)
