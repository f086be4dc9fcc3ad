package core

import "errors"

// Error taxonomy of the service. Handlers dispatch on these with errors.Is;
// store errors are always wrapped into one of them before leaving this
// package.
var (
	// ErrInvalidInput marks a missing filename or empty payload.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks an unknown image id.
	ErrNotFound = errors.New("image not found")

	// ErrStorageUnavailable marks a failed or unreachable blob store write.
	ErrStorageUnavailable = errors.New("blob storage unavailable")

	// ErrMetadataWriteFailed marks a metadata transaction failure after the
	// blob was already written; the orphaned blob is compensated for before
	// this error is returned.
	ErrMetadataWriteFailed = errors.New("metadata write failed")

	// ErrTagResolutionFailed marks a tag lookup or creation failure; the
	// whole enclosing operation is aborted.
	ErrTagResolutionFailed = errors.New("tag resolution failed")
)
