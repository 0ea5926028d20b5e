package domain

import "errors"

// Error taxonomy shared across components. The web layer maps these to
// status codes; everything unrecognized is treated as fatal.
var (
	// ErrNotFound means the referenced session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrConflict means an optimistic mutation carried a stale revision.
	// The caller must re-read and retry.
	ErrConflict = errors.New("stale revision")

	// ErrOutOfRange means a fix request referenced a row index outside the
	// session's row list.
	ErrOutOfRange = errors.New("row index out of range")

	// ErrBadUpload means the uploaded file could not be parsed. The session
	// is left where it was so the caller can retry with a corrected file.
	ErrBadUpload = errors.New("upload could not be parsed")

	// ErrPreconditionFailed means an operation was attempted in a workflow
	// state that does not permit it.
	ErrPreconditionFailed = errors.New("operation not permitted in current workflow state")

	// ErrInvalidTransition means a workflow transition violates the state
	// machine. Internal misuse, never caused by request payloads alone.
	ErrInvalidTransition = errors.New("invalid workflow transition")

	// ErrProviderUnavailable means the external mapping provider failed or
	// timed out. Recovered locally via the heuristic fallback.
	ErrProviderUnavailable = errors.New("mapping provider unavailable")
)
