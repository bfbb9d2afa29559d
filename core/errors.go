package core

import (
	"errors"
	"fmt"
)

// Kind classifies a bridge failure. Kinds are errors themselves so callers can match
// with errors.Is(err, core.ErrFileNotFound).
type Kind int

const (
	ErrDirectoryNotFound Kind = iota + 1
	ErrDirectoryExists
	ErrFileNotFound
	ErrNotADirectory
	ErrIsADirectory
	ErrDirectoryNotEmpty
	ErrRootViolation
	ErrInvalidStreamMode
	ErrUnableToCreateDirectory
	ErrUnableToRead
	ErrUnableToWrite
	ErrUnableToChangePermissions
	ErrStatFailed
	ErrCouldNotDeleteFile
	ErrCouldNotRemoveDirectory
	ErrMoveFailed
	ErrInvalidHandle
)

var kindReasons = map[Kind]string{
	ErrDirectoryNotFound:         "Failed to open dir",
	ErrDirectoryExists:           "Directory exists",
	ErrFileNotFound:              "No such file or directory",
	ErrNotADirectory:             "Not a directory",
	ErrIsADirectory:              "Is a directory",
	ErrDirectoryNotEmpty:         "Directory not empty",
	ErrRootViolation:             "Directory is root",
	ErrInvalidStreamMode:         "Failed to open stream: invalid mode",
	ErrUnableToCreateDirectory:   "Cannot create directory",
	ErrUnableToRead:              "Unable to read file",
	ErrUnableToWrite:             "Unable to write to file",
	ErrUnableToChangePermissions: "Unable to change permissions",
	ErrStatFailed:                "Stat failed",
	ErrCouldNotDeleteFile:        "Could not delete file",
	ErrCouldNotRemoveDirectory:   "Could not remove directory",
	ErrMoveFailed:                "Could not move file",
	ErrInvalidHandle:             "Supplied resource is not a valid stream resource",
}

var kindNames = map[Kind]string{
	ErrDirectoryNotFound:         "directory_not_found",
	ErrDirectoryExists:           "directory_exists",
	ErrFileNotFound:              "file_not_found",
	ErrNotADirectory:             "not_a_directory",
	ErrIsADirectory:              "is_a_directory",
	ErrDirectoryNotEmpty:         "directory_not_empty",
	ErrRootViolation:             "root_violation",
	ErrInvalidStreamMode:         "invalid_stream_mode",
	ErrUnableToCreateDirectory:   "unable_to_create_directory",
	ErrUnableToRead:              "unable_to_read",
	ErrUnableToWrite:             "unable_to_write",
	ErrUnableToChangePermissions: "unable_to_change_permissions",
	ErrStatFailed:                "stat_failed",
	ErrCouldNotDeleteFile:        "could_not_delete_file",
	ErrCouldNotRemoveDirectory:   "could_not_remove_directory",
	ErrMoveFailed:                "move_failed",
	ErrInvalidHandle:             "invalid_handle",
}

// Error returns the fixed reason text of the kind
func (k Kind) Error() string {
	if reason, ok := kindReasons[k]; ok {
		return reason
	}
	return "unknown error"
}

// String returns a stable snake_case name used in metrics and API responses
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Plain errors that do not belong to the POSIX taxonomy
var (
	ErrUnknownScheme      = errors.New("no operator registered for scheme")
	ErrInvalidURI         = errors.New("invalid stream uri")
	ErrUnsupportedOption  = errors.New("unsupported metadata option")
	ErrDuplicateScheme    = errors.New("scheme already registered")
	ErrInvalidSchemeName  = errors.New("invalid scheme name")
	ErrUnsupportedLockOp  = errors.New("unsupported lock operation")
	ErrNotSeekable        = errors.New("stream does not support seeking")
	ErrTruncateNotAllowed = errors.New("stream cannot be truncated")
	ErrNoLocalCopy        = errors.New("stream has no local copy")
)

// Error is a failure of one bridge operation
type Error struct {
	Kind     Kind
	Op       string // stream operation name, e.g. "stream_open" or "rmdir"
	Location string // uri, or "from,to" for rename
	Mode     string // open mode or octal permission, when relevant
	Err      error  // underlying operator error, if any
}

func newError(kind Kind, op, location string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Location: location, Err: cause}
}

// Error renders "<op>(<location>): <reason>"
func (e *Error) Error() string {
	switch e.Kind {
	case ErrInvalidStreamMode:
		return fmt.Sprintf("%s(%s): Failed to open stream: '%s' is not a valid mode", e.Op, e.Location, e.Mode)
	case ErrUnableToChangePermissions:
		return fmt.Sprintf("%s(%s,%s): Unable to change permissions", e.Op, e.Location, e.Mode)
	}
	return fmt.Sprintf("%s(%s): %s", e.Op, e.Location, e.Kind.Error())
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a Kind target against the error kind
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the kind of the first *Error or bare Kind in the chain, or 0
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return 0
}

// Message renders the error followed by its causes, separated by " : "
func Message(err error) string {
	if err == nil {
		return ""
	}

	if e, ok := err.(*Error); ok && e.Err != nil {
		return e.Error() + " : " + Message(e.Err)
	}
	return err.Error()
}
