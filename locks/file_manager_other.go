//go:build !unix

package locks

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrFlockUnsupported is returned on platforms without flock(2)
var ErrFlockUnsupported = errors.New("flock lock store is not supported on this platform")

// FileManager is unavailable on this platform
type FileManager struct{}

// NewFileManager always fails on this platform
func NewFileManager(dir string, logger *zap.Logger) (*FileManager, error) {
	return nil, ErrFlockUnsupported
}

func (m *FileManager) Acquire(ctx context.Context, key, owner string, mode Mode) (bool, error) {
	return false, ErrFlockUnsupported
}

func (m *FileManager) Release(ctx context.Context, key, owner string) error {
	return ErrFlockUnsupported
}

func (m *FileManager) Close() error {
	return nil
}
