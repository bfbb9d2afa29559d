package core

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ebogdum/flystream/metrics"
)

var errNegativePosition = errors.New("negative position")

// Buffer is the local working copy of a stream. It lives in memory until it grows past
// the limit, then moves to a temporary file.
type Buffer struct {
	limit   int64
	tempDir string

	data []byte
	pos  int64
	file *os.File
}

// NewBuffer creates an empty buffer. A limit of zero or less keeps everything in memory.
func NewBuffer(limit int64, tempDir string) *Buffer {
	return &Buffer{limit: limit, tempDir: tempDir}
}

// Spilled reports whether the content has moved to a temporary file
func (b *Buffer) Spilled() bool {
	return b.file != nil
}

func (b *Buffer) Read(p []byte) (int, error) {
	if b.file != nil {
		return b.file.Read(p)
	}

	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += int64(n)
	return n, nil
}

func (b *Buffer) Write(p []byte) (int, error) {
	if b.file == nil && b.limit > 0 && b.pos+int64(len(p)) > b.limit {
		if err := b.spill(); err != nil {
			return 0, err
		}
	}
	if b.file != nil {
		return b.file.Write(p)
	}

	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		if end > int64(cap(b.data)) {
			grown := make([]byte, end, max(end, 2*int64(cap(b.data))))
			copy(grown, b.data)
			b.data = grown
		} else {
			oldLen := len(b.data)
			b.data = b.data[:end]
			if b.pos > int64(oldLen) {
				clear(b.data[oldLen:b.pos])
			}
		}
	}
	copy(b.data[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	if b.file != nil {
		return b.file.Seek(offset, whence)
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = b.pos + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errNegativePosition
	}
	b.pos = abs
	return abs, nil
}

// Truncate changes the size of the content without moving the position
func (b *Buffer) Truncate(size int64) error {
	if size < 0 {
		return errNegativePosition
	}
	if b.file == nil && b.limit > 0 && size > b.limit {
		if err := b.spill(); err != nil {
			return err
		}
	}
	if b.file != nil {
		return b.file.Truncate(size)
	}

	if size <= int64(len(b.data)) {
		b.data = b.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, b.data)
	b.data = grown
	return nil
}

// Size returns the length of the content
func (b *Buffer) Size() (int64, error) {
	if b.file != nil {
		info, err := b.file.Stat()
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}
	return int64(len(b.data)), nil
}

// Close drops the content and removes the temporary file
func (b *Buffer) Close() error {
	b.data = nil
	if b.file == nil {
		return nil
	}

	name := b.file.Name()
	closeErr := b.file.Close()
	removeErr := os.Remove(name)
	b.file = nil
	return errors.Join(closeErr, removeErr)
}

func (b *Buffer) spill() error {
	f, err := os.CreateTemp(b.tempDir, "flystream-*")
	if err != nil {
		return fmt.Errorf("failed to create buffer file: %w", err)
	}

	if _, err := f.Write(b.data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return fmt.Errorf("failed to spill buffer: %w", err)
	}
	if _, err := f.Seek(b.pos, io.SeekStart); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return fmt.Errorf("failed to spill buffer: %w", err)
	}

	b.file = f
	b.data = nil
	metrics.BufferSpillsTotal.Inc()
	return nil
}
