package storage

import "errors"

// Sentinel errors returned by the gateway. Handlers map these to HTTP
// statuses; everything else is an internal I/O failure whose detail is
// logged server-side and never shown to the caller.
var (
	// ErrInvalidSegment marks a virtual path or name that is malformed
	// before any filesystem access: empty name, a "." or ".." segment,
	// or an embedded path separator.
	ErrInvalidSegment = errors.New("invalid path segment")

	// ErrEscape marks a path that resolves outside its tenant root after
	// symlink canonicalization.
	ErrEscape = errors.New("path escapes tenant root")

	// ErrNotFound marks a path with no entry, or an operation addressed
	// at a tenant root where that is refused (delete).
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a create that collides with an existing entry.
	ErrConflict = errors.New("already exists")

	// ErrNotADirectory marks a listing or child operation on a file.
	ErrNotADirectory = errors.New("not a directory")

	// ErrIsDirectory marks a content read on a directory.
	ErrIsDirectory = errors.New("is a directory")
)
