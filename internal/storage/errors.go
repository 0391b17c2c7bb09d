package storage

import "errors"

// Storage errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCapExceeded is returned by conditional commit updates when the
	// requested amount would push committed_pi above pi_power.
	ErrCapExceeded = errors.New("commitment cap exceeded")

	// ErrStatusConflict is returned by conditional updates when the record
	// is not in the expected status. One-shot operations use it to detect
	// that another run already completed.
	ErrStatusConflict = errors.New("status conflict")

	// ErrAlreadyClaimed is returned when recording a claim for a holder
	// snapshot entry that has already been claimed.
	ErrAlreadyClaimed = errors.New("already claimed")
)
