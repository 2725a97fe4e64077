package repository

import "errors"

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned when an optimistic-concurrency write
	// observes a version other than the one the caller supplied. The store
	// never retries on the caller's behalf: retrying a stale business
	// decision would be unsafe, so the caller must re-fetch and re-decide.
	ErrVersionConflict = errors.New("version conflict")
)
