// Package apperr defines the error taxonomy shared across the core.
//
// A concurrency conflict is deliberately not in this list: the guard reports
// it as a first-class result value that callers branch on, and tag
// sanitization warnings travel on otherwise-successful results.
package apperr

import "errors"

var (
	// ErrNotFound reports that the target record does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrInvalidQuery reports a malformed query or mutation request,
	// rejected before any store access.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrStoreUnavailable reports a failure of the backing store. The core
	// propagates it without retrying; retry policy belongs to the caller.
	ErrStoreUnavailable = errors.New("store unavailable")
)
