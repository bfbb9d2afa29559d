package noop

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ebogdum/flystream/backends"
)

// NoopAdapter is the operator bound to schemes whose backend is missing or disabled.
// Every call fails with backends.ErrAdapterMissing so stream operations degrade to
// reported failures instead of faults.
type NoopAdapter struct {
	backend string
}

// NewNoopAdapter creates a new noop operator for the named backend
func NewNoopAdapter(backend string) backends.Operator {
	return &NoopAdapter{backend: backend}
}

func (n *NoopAdapter) fail(op, path string) error {
	return fmt.Errorf("%s %s: backend %q: %w", op, path, n.backend, backends.ErrAdapterMissing)
}

// FileExists always fails for noop backend
func (n *NoopAdapter) FileExists(ctx context.Context, path string) (bool, error) {
	return false, n.fail("file exists", path)
}

// DirectoryExists always fails for noop backend
func (n *NoopAdapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	return false, n.fail("directory exists", path)
}

// Read always fails for noop backend
func (n *NoopAdapter) Read(ctx context.Context, path string) ([]byte, error) {
	return nil, n.fail("read", path)
}

// ReadStream always fails for noop backend
func (n *NoopAdapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	return nil, n.fail("read stream", path)
}

// Write always fails for noop backend
func (n *NoopAdapter) Write(ctx context.Context, path string, data []byte, cfg backends.WriteConfig) error {
	return n.fail("write", path)
}

// WriteStream always fails for noop backend
func (n *NoopAdapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.WriteConfig) error {
	return n.fail("write stream", path)
}

// Delete always fails for noop backend
func (n *NoopAdapter) Delete(ctx context.Context, path string) error {
	return n.fail("delete", path)
}

// DeleteDirectory always fails for noop backend
func (n *NoopAdapter) DeleteDirectory(ctx context.Context, path string) error {
	return n.fail("delete directory", path)
}

// CreateDirectory always fails for noop backend
func (n *NoopAdapter) CreateDirectory(ctx context.Context, path string, cfg backends.WriteConfig) error {
	return n.fail("create directory", path)
}

// Move always fails for noop backend
func (n *NoopAdapter) Move(ctx context.Context, src, dst string, cfg backends.WriteConfig) error {
	return n.fail("move", src)
}

// Copy always fails for noop backend
func (n *NoopAdapter) Copy(ctx context.Context, src, dst string, cfg backends.WriteConfig) error {
	return n.fail("copy", src)
}

// ListContents always fails for noop backend
func (n *NoopAdapter) ListContents(ctx context.Context, path string, deep bool) (backends.Lister, error) {
	return nil, n.fail("list", path)
}

// Visibility always fails for noop backend
func (n *NoopAdapter) Visibility(ctx context.Context, path string) (backends.Visibility, error) {
	return "", n.fail("visibility", path)
}

// SetVisibility always fails for noop backend
func (n *NoopAdapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	return n.fail("set visibility", path)
}

// FileSize always fails for noop backend
func (n *NoopAdapter) FileSize(ctx context.Context, path string) (int64, error) {
	return 0, n.fail("file size", path)
}

// LastModified always fails for noop backend
func (n *NoopAdapter) LastModified(ctx context.Context, path string) (time.Time, error) {
	return time.Time{}, n.fail("last modified", path)
}

// MimeType always fails for noop backend
func (n *NoopAdapter) MimeType(ctx context.Context, path string) (string, error) {
	return "", n.fail("mimetype", path)
}

// Stat always fails for noop backend
func (n *NoopAdapter) Stat(ctx context.Context, path string) (*backends.Attributes, error) {
	return nil, n.fail("stat", path)
}

// Capabilities reports no metadata support
func (n *NoopAdapter) Capabilities() backends.Capabilities {
	return 0
}

// Close does nothing for noop backend
func (n *NoopAdapter) Close() error {
	return nil
}
