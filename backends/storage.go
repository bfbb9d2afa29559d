// Package backends provides the filesystem operator contract consumed by the stream
// wrapper, together with its local disk, S3, SQL and missing-adapter implementations.
package backends

import (
	"context"
	"io"
	"time"
)

// Visibility is the coarse public/private permission concept shared by all operators
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ParseVisibility converts a configuration string into a Visibility
func ParseVisibility(s string) (Visibility, bool) {
	switch Visibility(s) {
	case VisibilityPublic:
		return VisibilityPublic, true
	case VisibilityPrivate:
		return VisibilityPrivate, true
	}
	return "", false
}

// Attributes describes a file or directory as reported by an operator.
// Optional fields are nil when the backend did not include them in the response.
type Attributes struct {
	Path         string
	IsDir        bool
	Size         *int64
	LastModified *time.Time
	Visibility   *Visibility
	MimeType     string
}

// WriteConfig carries per-call options for write and create operations
type WriteConfig struct {
	Visibility          Visibility
	DirectoryVisibility Visibility
}

// Lister is a lazy cursor over a directory listing.
// Next returns io.EOF once the listing is exhausted.
type Lister interface {
	Next(ctx context.Context) (*Attributes, error)
	Close() error
}

// Operator defines the capability set every storage backend exposes to the stream wrapper.
// Paths are relative to the backend root, slash separated, without a leading slash;
// the empty string is the root directory.
type Operator interface {
	// FileExists reports whether a regular file exists at path
	FileExists(ctx context.Context, path string) (bool, error)

	// DirectoryExists reports whether a directory exists at path
	DirectoryExists(ctx context.Context, path string) (bool, error)

	// Read returns the full content of a file
	Read(ctx context.Context, path string) ([]byte, error)

	// ReadStream opens a file for reading
	ReadStream(ctx context.Context, path string) (io.ReadCloser, error)

	// Write replaces the content of a file, creating it and its parents if needed
	Write(ctx context.Context, path string, data []byte, cfg WriteConfig) error

	// WriteStream replaces the content of a file with everything read from r
	WriteStream(ctx context.Context, path string, r io.Reader, cfg WriteConfig) error

	// Delete removes a file
	Delete(ctx context.Context, path string) error

	// DeleteDirectory removes a directory and everything below it
	DeleteDirectory(ctx context.Context, path string) error

	// CreateDirectory creates a directory and any missing parents
	CreateDirectory(ctx context.Context, path string, cfg WriteConfig) error

	// Move renames a file
	Move(ctx context.Context, src, dst string, cfg WriteConfig) error

	// Copy duplicates a file
	Copy(ctx context.Context, src, dst string, cfg WriteConfig) error

	// ListContents lists the entries of a directory, recursively when deep is set
	ListContents(ctx context.Context, path string, deep bool) (Lister, error)

	// Visibility returns the visibility of a file or directory
	Visibility(ctx context.Context, path string) (Visibility, error)

	// SetVisibility changes the visibility of a file or directory
	SetVisibility(ctx context.Context, path string, visibility Visibility) error

	// FileSize returns the size of a file in bytes
	FileSize(ctx context.Context, path string) (int64, error)

	// LastModified returns the modification time of a file or directory
	LastModified(ctx context.Context, path string) (time.Time, error)

	// MimeType returns the content type of a file
	MimeType(ctx context.Context, path string) (string, error)

	// Stat returns the metadata bundle the backend can produce in a single call
	Stat(ctx context.Context, path string) (*Attributes, error)

	// Capabilities describes which metadata kinds the backend can report at all
	Capabilities() Capabilities

	// Close releases any resources held by the operator
	Close() error
}
