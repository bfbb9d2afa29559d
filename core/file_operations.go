package core

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ebogdum/flystream/backends"
	"github.com/ebogdum/flystream/core/log"
	"github.com/ebogdum/flystream/metrics"
)

// Open opens uri with an fopen-style mode. Pure read mode streams straight from the
// operator; every other mode works on a local copy that is synced back on Flush and Close.
// Invalid modes are always reported, other failures only with OpenReportErrors.
func (w *Wrapper) Open(ctx context.Context, uri, mode string, flags OpenFlag) (*Stream, error) {
	const op = "stream_open"
	report := flags&OpenReportErrors != 0

	m, path, err := w.resolve(op, uri)
	if err != nil {
		return nil, err
	}

	parsed, ok := parseMode(mode)
	if !ok {
		e := newError(ErrInvalidStreamMode, op, uri, nil)
		e.Mode = mode
		return nil, w.fail(op, m.Scheme, e, true)
	}

	s := &Stream{
		w:            w,
		ctx:          ctx,
		mount:        m,
		uri:          uri,
		path:         path,
		mode:         parsed,
		writeOnly:    !parsed.plus,
		alwaysAppend: parsed.base == 'a',
	}

	if parsed.native() {
		rc, err := m.Operator.ReadStream(ctx, path)
		if err != nil {
			kind := ErrUnableToRead
			if errors.Is(err, backends.ErrNotFound) {
				kind = ErrFileNotFound
			}
			return nil, w.fail(op, m.Scheme, newError(kind, op, uri, err), report)
		}
		s.native = &nativeReader{rc: rc}
		s.writeOnly = false
	} else {
		buf, err := w.loadLocalCopy(ctx, m, path, parsed)
		if err != nil {
			e := &Error{}
			if !errors.As(err, &e) {
				e = newError(ErrUnableToRead, op, uri, err)
			} else {
				e.Op, e.Location = op, uri
			}
			return nil, w.fail(op, m.Scheme, e, report)
		}
		s.buffer = buf
	}

	if flags&OpenUsePath != 0 {
		s.openedPath = uri
	}

	metrics.OpenStreams.Inc()
	w.succeed(op, m.Scheme, uri)
	return s, nil
}

// loadLocalCopy prepares the working buffer of a non-native stream
func (w *Wrapper) loadLocalCopy(ctx context.Context, m *Mount, path string, mode openMode) (*Buffer, error) {
	buf := NewBuffer(m.Options.BufferMemoryLimit, m.Options.BufferTempDir)
	if mode.base == 'w' {
		return buf, nil
	}

	exists, err := m.Operator.FileExists(ctx, path)
	if err != nil {
		_ = buf.Close()
		return nil, err
	}
	if !exists {
		return buf, nil
	}
	if mode.base == 'x' {
		_ = buf.Close()
		return nil, newError(ErrUnableToWrite, "", "", backends.ErrExists)
	}

	rc, err := m.Operator.ReadStream(ctx, path)
	if err != nil {
		_ = buf.Close()
		return nil, err
	}
	defer rc.Close()

	if _, err := io.Copy(buf, rc); err != nil {
		_ = buf.Close()
		return nil, newError(ErrUnableToWrite, "", "", err)
	}

	if mode.base != 'a' {
		if _, err := buf.Seek(0, io.SeekStart); err != nil {
			_ = buf.Close()
			return nil, err
		}
	}
	return buf, nil
}

// Read reads from the stream. A write-only or closed stream reads as empty.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed || s.writeOnly {
		return 0, io.EOF
	}

	n, err := s.handle().Read(p)
	if err != nil && err != io.EOF {
		return n, s.w.fail("stream_read", s.mount.Scheme, newError(ErrUnableToRead, "stream_read", s.uri, err), false)
	}
	return n, err
}

// Write writes to the local copy. In append mode every write lands at the end of the
// content and the position is reset to the start afterwards.
func (s *Stream) Write(p []byte) (int, error) {
	const op = "stream_write"
	if s.closed {
		return 0, s.w.fail(op, s.mount.Scheme, newError(ErrInvalidHandle, op, s.uri, nil), false)
	}
	if s.buffer == nil {
		return 0, s.w.fail(op, s.mount.Scheme, newError(ErrUnableToWrite, op, s.uri, nil), false)
	}

	if s.alwaysAppend {
		if _, err := s.buffer.Seek(0, io.SeekEnd); err != nil {
			return 0, s.w.fail(op, s.mount.Scheme, newError(ErrUnableToWrite, op, s.uri, err), false)
		}
	}

	n, err := s.buffer.Write(p)
	s.bytesWrittenSinceFlush += uint64(n)

	if s.alwaysAppend {
		if _, seekErr := s.buffer.Seek(0, io.SeekStart); seekErr != nil && err == nil {
			err = seekErr
		}
	}
	if err != nil {
		return n, s.w.fail(op, s.mount.Scheme, newError(ErrUnableToWrite, op, s.uri, err), false)
	}
	return n, nil
}

// Flush pushes the local copy back to the operator, keeping the current position.
// A failed push is reported but leaves the stream open.
func (s *Stream) Flush() error {
	const op = "stream_flush"
	if s.closed {
		return s.w.fail(op, s.mount.Scheme, newError(ErrInvalidHandle, op, s.uri, nil), true)
	}

	defer func() { s.bytesWrittenSinceFlush = 0 }()
	if s.buffer == nil {
		return nil
	}

	pos, err := s.buffer.Seek(0, io.SeekCurrent)
	if err != nil {
		return s.w.fail(op, s.mount.Scheme, newError(ErrUnableToWrite, op, s.uri, err), true)
	}

	syncErr := s.sync()

	if _, err := s.buffer.Seek(pos, io.SeekStart); err != nil && syncErr == nil {
		syncErr = err
	}
	if syncErr != nil {
		return s.w.fail(op, s.mount.Scheme, newError(ErrUnableToWrite, op, s.uri, syncErr), true)
	}

	s.w.succeed(op, s.mount.Scheme, s.uri)
	return nil
}

// sync writes the whole local copy to the operator, leaving the position at the end
func (s *Stream) sync() error {
	if _, err := s.buffer.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return s.mount.Operator.WriteStream(s.ctx, s.path, s.buffer, backends.WriteConfig{})
}

// Close syncs the local copy, releases any held lock and frees the handle.
// Closing a closed stream does nothing.
func (s *Stream) Close() error {
	return s.release("stream_close", true)
}

// Abort frees the handle and releases any held lock without syncing the local copy,
// so the operator never sees unflushed writes. Aborting a closed stream does nothing.
func (s *Stream) Abort() error {
	return s.release("stream_abort", false)
}

func (s *Stream) release(op string, syncBack bool) error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer metrics.OpenStreams.Dec()

	var errs []error
	if s.buffer != nil {
		if syncBack {
			if err := s.sync(); err != nil {
				errs = append(errs, s.w.fail(op, s.mount.Scheme, newError(ErrUnableToWrite, op, s.uri, err), true))
			}
		}
		if err := s.buffer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release buffer: %w", err))
		}
		s.buffer = nil
	}

	if s.native != nil {
		if err := s.native.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close read stream: %w", err))
		}
		s.native = nil
	}

	if s.lockHeld {
		if err := s.releaseLock(); err != nil {
			s.w.logger.Error("Failed to release lock", zap.String("operation", op), log.Path("uri", s.uri), zap.Error(err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.w.succeed(op, s.mount.Scheme, s.uri)
	return nil
}

// Reload replaces the local copy with the operator's current content, as Open would
// have loaded it. Unflushed writes are discarded. Callers use it after taking a lock
// so their copy includes whatever the previous holder flushed.
func (s *Stream) Reload() error {
	const op = "stream_reload"
	if s.closed {
		return s.w.fail(op, s.mount.Scheme, newError(ErrInvalidHandle, op, s.uri, nil), true)
	}
	if s.buffer == nil {
		return s.w.fail(op, s.mount.Scheme, newError(ErrUnableToRead, op, s.uri, ErrNoLocalCopy), true)
	}

	buf, err := s.w.loadLocalCopy(s.ctx, s.mount, s.path, s.mode)
	if err != nil {
		return s.w.fail(op, s.mount.Scheme, newError(ErrUnableToRead, op, s.uri, err), true)
	}

	old := s.buffer
	s.buffer = buf
	s.bytesWrittenSinceFlush = 0
	if err := old.Close(); err != nil {
		s.w.logger.Warn("Failed to release replaced buffer", log.Path("uri", s.uri), zap.Error(err))
	}

	s.w.succeed(op, s.mount.Scheme, s.uri)
	return nil
}

// Seek moves the position. Native streams that cannot seek only move forward.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, newError(ErrInvalidHandle, "stream_seek", s.uri, nil)
	}
	return s.handle().Seek(offset, whence)
}

// Tell returns the position, which is always 0 for a closed or write-only append stream
func (s *Stream) Tell() int64 {
	if s.closed || (s.alwaysAppend && s.writeOnly) {
		return 0
	}
	if s.native != nil {
		return s.native.pos
	}

	pos, err := s.buffer.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	return pos
}

// Truncate changes the size of the local copy
func (s *Stream) Truncate(size int64) error {
	const op = "stream_truncate"
	if s.closed {
		return newError(ErrInvalidHandle, op, s.uri, nil)
	}
	if size < 0 {
		return fmt.Errorf("%s(%s): %w", op, s.uri, errNegativePosition)
	}
	if s.buffer == nil {
		return fmt.Errorf("%s(%s): %w", op, s.uri, ErrTruncateNotAllowed)
	}
	return s.buffer.Truncate(size)
}

// EOF reports whether the position is at the end of the content
func (s *Stream) EOF() bool {
	if s.closed {
		return false
	}
	if s.native != nil {
		return s.native.eof
	}

	pos, err := s.buffer.Seek(0, io.SeekCurrent)
	if err != nil {
		return false
	}
	size, err := s.buffer.Size()
	return err == nil && pos >= size
}

// Stat describes the open stream. For a local copy the size is the local size, and
// type, permissions and times come from the operator when the file exists remotely.
func (s *Stream) Stat() (*StatRecord, error) {
	const op = "stream_stat"
	if s.closed {
		return nil, s.w.fail(op, s.mount.Scheme, newError(ErrInvalidHandle, op, s.uri, nil), true)
	}

	if s.buffer == nil {
		rec, err := s.w.synthesize(s.ctx, s.mount, s.path, 0)
		if err != nil {
			return nil, s.w.fail(op, s.mount.Scheme, newError(ErrStatFailed, op, s.uri, err), true)
		}
		return rec, nil
	}

	size, err := s.buffer.Size()
	if err != nil {
		return nil, s.w.fail(op, s.mount.Scheme, newError(ErrStatFailed, op, s.uri, err), true)
	}

	exists, err := s.mount.Operator.FileExists(s.ctx, s.path)
	if err != nil {
		return nil, s.w.fail(op, s.mount.Scheme, newError(ErrStatFailed, op, s.uri, err), true)
	}

	var rec *StatRecord
	if exists {
		rec, err = s.w.synthesize(s.ctx, s.mount, s.path, StatIgnoreSize)
		if err != nil {
			return nil, s.w.fail(op, s.mount.Scheme, newError(ErrStatFailed, op, s.uri, err), true)
		}
	} else {
		now := s.w.now().Unix()
		rec = s.w.newStatRecord(s.mount.Options)
		rec.Mode = ModeRegular | uint32(s.mount.Options.Permissions.ForFile(backends.VisibilityPublic))
		rec.Atime, rec.Mtime, rec.Ctime = now, now, now
	}
	rec.Size = size
	return rec, nil
}

// entryType probes what exists at path
type entryType int

const (
	entryNone entryType = iota
	entryFile
	entryDirectory
)

func probe(ctx context.Context, m *Mount, path string) (entryType, error) {
	if path == "" {
		return entryDirectory, nil
	}

	isFile, err := m.Operator.FileExists(ctx, path)
	if err != nil {
		return entryNone, err
	}
	if isFile {
		return entryFile, nil
	}

	isDir, err := m.Operator.DirectoryExists(ctx, path)
	if err != nil {
		return entryNone, err
	}
	if isDir {
		return entryDirectory, nil
	}
	return entryNone, nil
}

// Unlink deletes the file at uri
func (w *Wrapper) Unlink(ctx context.Context, uri string) error {
	const op = "unlink"

	m, path, err := w.resolve(op, uri)
	if err != nil {
		return err
	}

	exists, err := m.Operator.FileExists(ctx, path)
	if err != nil || !exists {
		return w.fail(op, m.Scheme, newError(ErrFileNotFound, op, uri, err), true)
	}

	if err := m.Operator.Delete(ctx, path); err != nil {
		return w.fail(op, m.Scheme, newError(ErrCouldNotDeleteFile, op, uri, err), true)
	}

	w.succeed(op, m.Scheme, uri)
	return nil
}

// Rename moves from onto to. Both uris may use different schemes, in which case a
// file is copied across and the source deleted.
func (w *Wrapper) Rename(ctx context.Context, from, to string) error {
	const op = "rename"
	location := from + "," + to

	src, srcPath, err := w.resolve(op, from)
	if err != nil {
		return err
	}
	dst, dstPath, err := w.resolve(op, to)
	if err != nil {
		return err
	}

	srcType, err := probe(ctx, src, srcPath)
	if err != nil || srcType == entryNone {
		return w.fail(op, src.Scheme, newError(ErrFileNotFound, op, location, err), true)
	}

	dstType, err := probe(ctx, dst, dstPath)
	if err != nil {
		return w.fail(op, src.Scheme, newError(ErrFileNotFound, op, location, err), true)
	}
	switch {
	case srcType == entryFile && dstType == entryDirectory:
		return w.fail(op, src.Scheme, newError(ErrIsADirectory, op, location, nil), true)
	case srcType == entryDirectory && dstType == entryFile:
		return w.fail(op, src.Scheme, newError(ErrNotADirectory, op, location, nil), true)
	}

	if src == dst {
		err = src.Operator.Move(ctx, srcPath, dstPath, backends.WriteConfig{})
	} else {
		err = w.moveAcross(ctx, src, srcPath, dst, dstPath, srcType)
	}
	if err != nil {
		kind := ErrMoveFailed
		if src.Options.LegacyRenameErrors {
			kind = ErrDirectoryNotEmpty
		}
		return w.fail(op, src.Scheme, newError(kind, op, location, err), true)
	}

	w.succeed(op, src.Scheme, location)
	return nil
}

func (w *Wrapper) moveAcross(ctx context.Context, src *Mount, srcPath string, dst *Mount, dstPath string, t entryType) error {
	if t != entryFile {
		return fmt.Errorf("moving directories between schemes: %w", backends.ErrUnsupported)
	}

	rc, err := src.Operator.ReadStream(ctx, srcPath)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := dst.Operator.WriteStream(ctx, dstPath, rc, backends.WriteConfig{}); err != nil {
		return err
	}
	return src.Operator.Delete(ctx, srcPath)
}
