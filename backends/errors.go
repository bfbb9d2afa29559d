package backends

import "errors"

// Common operator errors. Implementations wrap them with fmt.Errorf("...: %w") so callers
// can test with errors.Is.
var (
	ErrNotFound       = errors.New("file or directory not found")
	ErrExists         = errors.New("file or directory already exists")
	ErrForbidden      = errors.New("access forbidden")
	ErrIsDirectory    = errors.New("path is a directory")
	ErrNotDirectory   = errors.New("path is not a directory")
	ErrUnsupported    = errors.New("operation not supported by backend")
	ErrAdapterMissing = errors.New("backend not enabled")
)
