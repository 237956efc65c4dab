package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint or an ownership check
	// rejected the write.
	ErrConflict = errors.New("repository: conflict")
)
