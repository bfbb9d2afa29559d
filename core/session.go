package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ebogdum/flystream/locks"
)

// Stream is one open stream handle. It is not safe for concurrent use.
type Stream struct {
	w     *Wrapper
	ctx   context.Context
	mount *Mount

	uri  string
	path string
	mode openMode

	// Exactly one of buffer and native is set while the stream is open
	buffer *Buffer
	native *nativeReader

	writeOnly    bool
	alwaysAppend bool

	bytesWrittenSinceFlush uint64

	lockOwner   string
	lockManager locks.Manager
	lockHeld    bool

	openedPath string
	closed     bool
}

// URI returns the uri the stream was opened with
func (s *Stream) URI() string {
	return s.uri
}

// OpenedPath returns the uri when the stream was opened with OpenUsePath
func (s *Stream) OpenedPath() string {
	return s.openedPath
}

// UsesLocalCopy reports whether reads and writes go to a local buffer synced on flush
func (s *Stream) UsesLocalCopy() bool {
	return s.buffer != nil
}

// BytesWrittenSinceFlush returns the number of bytes written since the last successful flush
func (s *Stream) BytesWrittenSinceFlush() uint64 {
	return s.bytesWrittenSinceFlush
}

// handle returns the backing handle of an open stream
func (s *Stream) handle() io.ReadSeeker {
	if s.buffer != nil {
		return s.buffer
	}
	return s.native
}

func newLockOwner() (string, error) {
	ownerBytes := make([]byte, 16)
	if _, err := rand.Read(ownerBytes); err != nil {
		return "", fmt.Errorf("failed to generate lock owner: %w", err)
	}
	return hex.EncodeToString(ownerBytes), nil
}

// nativeReader serves pure-read streams straight from the operator. Seeking is
// delegated when the operator stream can seek; otherwise only forward seeks work,
// by discarding bytes.
type nativeReader struct {
	rc  io.ReadCloser
	pos int64
	eof bool
}

func (r *nativeReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	r.pos += int64(n)
	if err == io.EOF {
		r.eof = true
	}
	return n, err
}

func (r *nativeReader) Seek(offset int64, whence int) (int64, error) {
	if seeker, ok := r.rc.(io.Seeker); ok {
		pos, err := seeker.Seek(offset, whence)
		if err != nil {
			return r.pos, err
		}
		r.pos = pos
		r.eof = false
		return pos, nil
	}

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.pos + offset
	default:
		return r.pos, ErrNotSeekable
	}
	if target < r.pos {
		return r.pos, ErrNotSeekable
	}

	n, err := io.CopyN(io.Discard, r.rc, target-r.pos)
	r.pos += n
	if err == io.EOF {
		r.eof = true
		return r.pos, nil
	}
	return r.pos, err
}

func (r *nativeReader) Close() error {
	return r.rc.Close()
}
