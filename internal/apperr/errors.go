package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInactive      = errors.New("detection inactive")
	ErrEmptyCatalog  = errors.New("catalog is empty")
	ErrUnavailable   = errors.New("source unavailable")
)
