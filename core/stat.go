package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ebogdum/flystream/backends"
)

// File type bits of StatRecord.Mode
const (
	ModeTypeMask uint32 = 0o170000
	ModeDir      uint32 = 0o040000
	ModeRegular  uint32 = 0o100000
)

// StatRecord is a POSIX stat result. Times are unix seconds.
type StatRecord struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint64
	UID     int
	GID     int
	Rdev    uint64
	Size    int64
	Atime   int64
	Mtime   int64
	Ctime   int64
	Blksize int64
	Blocks  int64
}

// IsDir reports whether the record describes a directory
func (s *StatRecord) IsDir() bool {
	return s.Mode&ModeTypeMask == ModeDir
}

// IsRegular reports whether the record describes a regular file
func (s *StatRecord) IsRegular() bool {
	return s.Mode&ModeTypeMask == ModeRegular
}

// Perm returns the permission bits
func (s *StatRecord) Perm() os.FileMode {
	return os.FileMode(s.Mode & 0o777)
}

// FileMode converts the record mode to an os.FileMode
func (s *StatRecord) FileMode() os.FileMode {
	if s.IsDir() {
		return os.ModeDir | s.Perm()
	}
	return s.Perm()
}

// ModTime returns Mtime as a time.Time
func (s *StatRecord) ModTime() time.Time {
	return time.Unix(s.Mtime, 0)
}

func (w *Wrapper) newStatRecord(opts SchemeOptions) *StatRecord {
	rec := &StatRecord{
		Blksize: -1,
		Blocks:  -1,
		UID:     w.uid,
		GID:     w.gid,
	}
	if opts.UID != nil {
		rec.UID = *opts.UID
	}
	if opts.GID != nil {
		rec.GID = *opts.GID
	}
	return rec
}

// synthesize builds a stat record from whatever metadata the operator can give,
// issuing one targeted call per kind missing from the Stat bundle.
func (w *Wrapper) synthesize(ctx context.Context, m *Mount, path string, flags StatFlag) (*StatRecord, error) {
	opts := m.Options
	rec := w.newStatRecord(opts)
	rec.Atime = w.now().Unix()

	if path == "" {
		rec.Mode = ModeDir | uint32(opts.Permissions.ForDirectory(backends.VisibilityPublic))
		if opts.EmulateDirectoryLastModified {
			mtime, err := w.directoryLastModified(ctx, m, path)
			if err != nil {
				return nil, err
			}
			rec.Mtime = mtime
		}
		rec.Ctime = rec.Mtime
		return rec, nil
	}

	attrs, err := w.statBundle(ctx, m, path)
	if err != nil {
		return nil, err
	}

	visibility, err := w.visibilityOf(ctx, m, path, attrs)
	if err != nil {
		return nil, err
	}

	if attrs.IsDir {
		rec.Mode = ModeDir | uint32(opts.Permissions.ForDirectory(visibility))
		if opts.EmulateDirectoryLastModified {
			if rec.Mtime, err = w.directoryLastModified(ctx, m, path); err != nil {
				return nil, err
			}
		} else {
			rec.Mtime = w.lastModifiedOf(ctx, m, path, attrs)
		}
	} else {
		rec.Mode = ModeRegular | uint32(opts.Permissions.ForFile(visibility))
		if flags&StatIgnoreSize == 0 {
			rec.Size = w.sizeOf(ctx, m, path, attrs)
		}
		rec.Mtime = w.lastModifiedOf(ctx, m, path, attrs)
	}

	rec.Ctime = rec.Mtime
	return rec, nil
}

// statBundle returns the operator's attribute bundle. Operators without Stat support
// are probed for the entry type instead.
func (w *Wrapper) statBundle(ctx context.Context, m *Mount, path string) (*backends.Attributes, error) {
	attrs, err := m.Operator.Stat(ctx, path)
	if err == nil {
		return attrs, nil
	}
	if !errors.Is(err, backends.ErrUnsupported) {
		return nil, err
	}

	if m.capabilities.Supports(backends.MetaMimeType) {
		mimeType, mimeErr := m.Operator.MimeType(ctx, path)
		switch {
		case mimeErr == nil:
			return &backends.Attributes{Path: path, IsDir: mimeType == backends.DirectoryMimeType, MimeType: mimeType}, nil
		case errors.Is(mimeErr, backends.ErrUnsupported):
			m.capabilities.Drop(backends.MetaMimeType)
		}
	}

	isDir, dirErr := m.Operator.DirectoryExists(ctx, path)
	if dirErr == nil && isDir {
		return &backends.Attributes{Path: path, IsDir: true}, nil
	}
	isFile, fileErr := m.Operator.FileExists(ctx, path)
	if fileErr == nil && isFile {
		return &backends.Attributes{Path: path}, nil
	}

	if err := errors.Join(dirErr, fileErr); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("stat %s: %w", path, backends.ErrNotFound)
}

func (w *Wrapper) visibilityOf(ctx context.Context, m *Mount, path string, attrs *backends.Attributes) (backends.Visibility, error) {
	if attrs.Visibility != nil {
		return *attrs.Visibility, nil
	}
	if !m.capabilities.Supports(backends.MetaVisibility) {
		return backends.VisibilityPublic, nil
	}

	visibility, err := m.Operator.Visibility(ctx, path)
	switch {
	case err == nil:
		return visibility, nil
	case errors.Is(err, backends.ErrUnsupported):
		m.capabilities.Drop(backends.MetaVisibility)
		return backends.VisibilityPublic, nil
	case m.Options.IgnoreVisibilityErrors:
		return backends.VisibilityPublic, nil
	}
	return "", err
}

func (w *Wrapper) sizeOf(ctx context.Context, m *Mount, path string, attrs *backends.Attributes) int64 {
	if attrs.Size != nil {
		return *attrs.Size
	}
	if !m.capabilities.Supports(backends.MetaSize) {
		return 0
	}

	size, err := m.Operator.FileSize(ctx, path)
	if err != nil {
		if errors.Is(err, backends.ErrUnsupported) {
			m.capabilities.Drop(backends.MetaSize)
		}
		return 0
	}
	return size
}

func (w *Wrapper) lastModifiedOf(ctx context.Context, m *Mount, path string, attrs *backends.Attributes) int64 {
	if attrs.LastModified != nil {
		return attrs.LastModified.Unix()
	}
	if !m.capabilities.Supports(backends.MetaLastModified) {
		return 0
	}

	modified, err := m.Operator.LastModified(ctx, path)
	if err != nil {
		if errors.Is(err, backends.ErrUnsupported) {
			m.capabilities.Drop(backends.MetaLastModified)
		}
		return 0
	}
	return modified.Unix()
}

// directoryLastModified is the newest modification time among the immediate entries
func (w *Wrapper) directoryLastModified(ctx context.Context, m *Mount, path string) (int64, error) {
	lister, err := m.Operator.ListContents(ctx, path, false)
	if err != nil {
		return 0, err
	}
	defer lister.Close()

	var latest int64
	for {
		entry, err := lister.Next(ctx)
		if err == io.EOF {
			return latest, nil
		}
		if err != nil {
			return 0, err
		}
		if entry.LastModified != nil && entry.LastModified.Unix() > latest {
			latest = entry.LastModified.Unix()
		}
	}
}
