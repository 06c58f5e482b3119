package store

import "errors"

var (
	// ErrAccessDenied indicates the credentials cannot create and drop a table.
	ErrAccessDenied = errors.New("database access denied")

	// ErrTableMissing indicates the tracking table does not exist.
	ErrTableMissing = errors.New("tracking table does not exist")
)
