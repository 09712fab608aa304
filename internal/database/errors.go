package database

import "errors"

var (
	// ErrLocked is returned when another process holds the database lock.
	ErrLocked = errors.New("database is locked by another clinicscan process")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("run not found")
)
