package localfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ebogdum/flystream/backends"
	"github.com/ebogdum/flystream/internal/pathutil"
)

// LocalFSAdapter implements the backends.Operator interface for the local filesystem
type LocalFSAdapter struct {
	rootPath   string
	visibility backends.PortableVisibility
}

// NewLocalFSAdapter creates a new local filesystem adapter rooted at rootPath
func NewLocalFSAdapter(rootPath string, visibility backends.PortableVisibility) (*LocalFSAdapter, error) {
	// Ensure root path exists
	if err := os.MkdirAll(rootPath, visibility.DirectoryPublic); err != nil {
		return nil, fmt.Errorf("failed to create root path %s: %w", rootPath, err)
	}

	// Verify path is accessible
	if _, err := os.Stat(rootPath); err != nil {
		return nil, fmt.Errorf("root path %s is not accessible: %w", rootPath, err)
	}

	return &LocalFSAdapter{
		rootPath:   rootPath,
		visibility: visibility,
	}, nil
}

func (a *LocalFSAdapter) fullPath(path string) (string, error) {
	fullPath, err := pathutil.SafeJoin(a.rootPath, path)
	if err != nil {
		return "", fmt.Errorf("path %s escapes root: %w", path, backends.ErrForbidden)
	}
	return fullPath, nil
}

func (a *LocalFSAdapter) stat(path string) (string, os.FileInfo, error) {
	fullPath, err := a.fullPath(path)
	if err != nil {
		return "", nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fullPath, nil, fmt.Errorf("stat %s: %w", path, backends.ErrNotFound)
		}
		return fullPath, nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return fullPath, info, nil
}

// FileExists reports whether a regular file exists at path
func (a *LocalFSAdapter) FileExists(ctx context.Context, path string) (bool, error) {
	_, info, err := a.stat(path)
	if errors.Is(err, backends.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirectoryExists reports whether a directory exists at path
func (a *LocalFSAdapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	_, info, err := a.stat(path)
	if errors.Is(err, backends.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// Read returns the content of a file
func (a *LocalFSAdapter) Read(ctx context.Context, path string) ([]byte, error) {
	file, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}

// ReadStream opens a file for reading. The returned *os.File is seekable.
func (a *LocalFSAdapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath, info, err := a.stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot read %s: %w", path, backends.ErrIsDirectory)
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	return file, nil
}

// Write replaces the content of a file
func (a *LocalFSAdapter) Write(ctx context.Context, path string, data []byte, cfg backends.WriteConfig) error {
	return a.WriteStream(ctx, path, bytes.NewReader(data), cfg)
}

// WriteStream replaces the content of a file with the content of the reader
func (a *LocalFSAdapter) WriteStream(ctx context.Context, path string, reader io.Reader, cfg backends.WriteConfig) error {
	fullPath, err := a.fullPath(path)
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("cannot write to root: %w", backends.ErrIsDirectory)
	}

	// Ensure parent directory exists
	dirVisibility := a.visibility.DirectoryVisibility(cfg.DirectoryVisibility)
	if err := os.MkdirAll(filepath.Dir(fullPath), a.visibility.ForDirectory(dirVisibility)); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	perm := a.visibility.FilePublic
	if cfg.Visibility != "" {
		perm = a.visibility.ForFile(cfg.Visibility)
	}

	// Write to a sibling temp file and rename so readers never observe partial content
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".flystream-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write file content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if cfg.Visibility == "" {
		// Keep the permissions of an existing file
		if info, err := os.Stat(fullPath); err == nil {
			perm = info.Mode().Perm()
		}
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}

	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}

// Delete removes a file
func (a *LocalFSAdapter) Delete(ctx context.Context, path string) error {
	fullPath, info, err := a.stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("cannot delete %s: %w", path, backends.ErrIsDirectory)
	}

	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}

	return nil
}

// DeleteDirectory removes a directory and its contents
func (a *LocalFSAdapter) DeleteDirectory(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("refusing to delete root: %w", backends.ErrForbidden)
	}

	fullPath, info, err := a.stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot delete directory %s: %w", path, backends.ErrNotDirectory)
	}

	if err := os.RemoveAll(fullPath); err != nil {
		return fmt.Errorf("failed to delete directory %s: %w", path, err)
	}

	return nil
}

// CreateDirectory creates a directory and any missing parents
func (a *LocalFSAdapter) CreateDirectory(ctx context.Context, path string, cfg backends.WriteConfig) error {
	fullPath, err := a.fullPath(path)
	if err != nil {
		return err
	}

	// Check if path already exists as a file
	if info, err := os.Stat(fullPath); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path %s exists as file: %w", path, backends.ErrNotDirectory)
		}
		// Directory already exists - this is not an error for CreateDirectory
		return nil
	}

	visibility := a.visibility.DirectoryVisibility(cfg.DirectoryVisibility)
	if cfg.Visibility != "" && cfg.DirectoryVisibility == "" {
		visibility = cfg.Visibility
	}
	perm := a.visibility.ForDirectory(visibility)

	if err := os.MkdirAll(fullPath, perm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	// MkdirAll is subject to the umask
	if err := os.Chmod(fullPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions on directory %s: %w", path, err)
	}

	return nil
}

// Move renames a file or directory
func (a *LocalFSAdapter) Move(ctx context.Context, src, dst string, cfg backends.WriteConfig) error {
	srcPath, _, err := a.stat(src)
	if err != nil {
		return err
	}
	dstPath, err := a.fullPath(dst)
	if err != nil {
		return err
	}

	dirVisibility := a.visibility.DirectoryVisibility(cfg.DirectoryVisibility)
	if err := os.MkdirAll(filepath.Dir(dstPath), a.visibility.ForDirectory(dirVisibility)); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	if err := os.Rename(srcPath, dstPath); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}

	return nil
}

// Copy duplicates a file
func (a *LocalFSAdapter) Copy(ctx context.Context, src, dst string, cfg backends.WriteConfig) error {
	reader, err := a.ReadStream(ctx, src)
	if err != nil {
		return err
	}
	defer reader.Close()

	if cfg.Visibility == "" {
		if v, err := a.Visibility(ctx, src); err == nil {
			cfg.Visibility = v
		}
	}

	return a.WriteStream(ctx, dst, reader, cfg)
}

// ListContents lists the entries below path
func (a *LocalFSAdapter) ListContents(ctx context.Context, path string, deep bool) (backends.Lister, error) {
	_, info, err := a.stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cannot list %s: %w", path, backends.ErrNotDirectory)
	}

	return &dirLister{adapter: a, deep: deep, pending: []string{path}}, nil
}

// Visibility returns the visibility derived from the permission bits
func (a *LocalFSAdapter) Visibility(ctx context.Context, path string) (backends.Visibility, error) {
	_, info, err := a.stat(path)
	if err != nil {
		return "", err
	}
	return a.visibilityOf(info), nil
}

func (a *LocalFSAdapter) visibilityOf(info os.FileInfo) backends.Visibility {
	if info.IsDir() {
		return a.visibility.InverseForDirectory(info.Mode())
	}
	return a.visibility.InverseForFile(info.Mode())
}

// SetVisibility changes the permission bits to match visibility
func (a *LocalFSAdapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	fullPath, info, err := a.stat(path)
	if err != nil {
		return err
	}

	perm := a.visibility.ForFile(visibility)
	if info.IsDir() {
		perm = a.visibility.ForDirectory(visibility)
	}

	if err := os.Chmod(fullPath, perm); err != nil {
		return fmt.Errorf("failed to set visibility of %s: %w", path, err)
	}
	return nil
}

// FileSize returns the size of a file
func (a *LocalFSAdapter) FileSize(ctx context.Context, path string) (int64, error) {
	_, info, err := a.stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("no size for %s: %w", path, backends.ErrIsDirectory)
	}
	return info.Size(), nil
}

// LastModified returns the modification time
func (a *LocalFSAdapter) LastModified(ctx context.Context, path string) (time.Time, error) {
	_, info, err := a.stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// MimeType returns the content type based on the file extension
func (a *LocalFSAdapter) MimeType(ctx context.Context, path string) (string, error) {
	_, info, err := a.stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return backends.DirectoryMimeType, nil
	}
	return backends.ContentType(path), nil
}

// Stat returns the full metadata bundle for a file or directory
func (a *LocalFSAdapter) Stat(ctx context.Context, path string) (*backends.Attributes, error) {
	_, info, err := a.stat(path)
	if err != nil {
		return nil, err
	}
	return a.attributes(path, info), nil
}

func (a *LocalFSAdapter) attributes(path string, info os.FileInfo) *backends.Attributes {
	mtime := info.ModTime()
	attrs := &backends.Attributes{
		Path:         path,
		IsDir:        info.IsDir(),
		LastModified: &mtime,
		Visibility:   backends.VisibilityPtr(a.visibilityOf(info)),
	}

	if info.IsDir() {
		attrs.MimeType = backends.DirectoryMimeType
	} else {
		attrs.Size = backends.Int64(info.Size())
		attrs.MimeType = backends.ContentType(path)
	}
	return attrs
}

// Capabilities reports that the local filesystem supports every metadata kind
func (a *LocalFSAdapter) Capabilities() backends.Capabilities {
	return backends.AllCapabilities
}

// Close closes any resources used by the storage backend
func (a *LocalFSAdapter) Close() error {
	// No resources to close for local filesystem
	return nil
}

// dirLister reads one directory at a time; deep listings queue subdirectories
type dirLister struct {
	adapter *LocalFSAdapter
	deep    bool
	pending []string
	dir     string
	entries []fs.DirEntry
}

func (l *dirLister) Next(ctx context.Context) (*backends.Attributes, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if len(l.entries) == 0 {
			if len(l.pending) == 0 {
				return nil, io.EOF
			}
			l.dir = l.pending[0]
			l.pending = l.pending[1:]

			fullPath, err := l.adapter.fullPath(l.dir)
			if err != nil {
				return nil, err
			}
			entries, err := os.ReadDir(fullPath)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, fmt.Errorf("failed to read directory %s: %w", l.dir, err)
			}
			l.entries = entries
			continue
		}

		entry := l.entries[0]
		l.entries = l.entries[1:]

		info, err := entry.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info
			continue
		}

		childPath := pathutil.Join(l.dir, entry.Name())
		if l.deep && info.IsDir() {
			l.pending = append(l.pending, childPath)
		}
		return l.adapter.attributes(childPath, info), nil
	}
}

func (l *dirLister) Close() error {
	l.pending = nil
	l.entries = nil
	return nil
}
