// Package errs defines the error taxonomy shared by the engine packages.
//
// Callers wrap these sentinels with context using fmt.Errorf and %w, and
// match them with errors.Is. None of them is fatal to a running session
// except the open-time kinds, which prevent a session from starting.
package errs

import "errors"

var (
	// ErrNotFound reports that the requested path does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied reports that the path exists but cannot be read.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotRegularFile reports a directory, device or other non-file path.
	ErrNotRegularFile = errors.New("not a regular file")

	// ErrInvalidPattern reports a regular expression that failed to compile.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrOutOfRange reports a line or bookmark lookup beyond indexed bounds.
	ErrOutOfRange = errors.New("out of range")

	// ErrDuplicateName reports a bookmark name already used by another line.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrSourceExhausted reports that navigation ran off the end of the
	// available lines and was clamped.
	ErrSourceExhausted = errors.New("source exhausted")

	// ErrSourceLost reports that the underlying file was deleted, replaced
	// or truncated while open.
	ErrSourceLost = errors.New("source lost")
)

// ErrInvalidName reports a bookmark name that would be read as a line
// number.
var ErrInvalidName = errors.New("invalid name")
