package ledger

import "errors"

var (
	// Client errors
	ErrNotConfigured   = errors.New("ledger: client not configured")
	ErrAuthFailed      = errors.New("ledger: token exchange failed")
	ErrRequestFailed   = errors.New("ledger: request failed")
	ErrBadRequest      = errors.New("ledger: bad request")
	ErrNotFound        = errors.New("ledger: record not found")
	ErrInvalidResponse = errors.New("ledger: invalid response")

	// Batch protocol errors
	ErrNestedBatch       = errors.New("ledger: batch already recording")
	ErrPartCountMismatch = errors.New("ledger: batch response part count mismatch")

	// Sync errors
	ErrSubjectKeyTaken = errors.New("ledger: subject key already taken")
)
