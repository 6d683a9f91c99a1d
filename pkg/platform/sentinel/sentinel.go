// Package sentinel holds the storage-level facts stores report. Services map
// them onto domain errors; handlers never see them directly.
package sentinel

import "errors"

var (
	// ErrNotFound: no row for the key.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a compare-and-set write lost to a concurrent writer.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyExists: the same fact is already recorded, so an idempotent
	// write can report success.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidState: the stored sequence does not admit the write, such as a
	// ledger append whose sequence is not next.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable: a backing resource could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
