//go:build unix

package locks

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/ebogdum/flystream/metrics"
)

// FileManager takes flock(2) locks on one file per key inside a directory.
// Locks are visible to every process on the host sharing the directory and are
// dropped by the kernel when the holding process exits, so no TTL applies.
type FileManager struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	files map[string]*os.File // owner + key -> open lock file
}

// NewFileManager creates the lock directory if needed
func NewFileManager(dir string, logger *zap.Logger) (*FileManager, error) {
	if dir == "" {
		return nil, fmt.Errorf("flock lock store needs a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory %s: %w", dir, err)
	}

	return &FileManager{
		dir:    dir,
		logger: logger,
		files:  make(map[string]*os.File),
	}, nil
}

// lockPath maps a key to its lock file; keys are URIs and cannot be used as names directly
func (m *FileManager) lockPath(key string) string {
	sum := xxh3.HashString128(key).Bytes()
	return filepath.Join(m.dir, "flystream-"+hex.EncodeToString(sum[:])+".lock")
}

// Acquire takes a non-blocking flock on the key's lock file
func (m *FileManager) Acquire(ctx context.Context, key, owner string, mode Mode) (ok bool, err error) {
	start := time.Now()
	defer func() { record("flock", "acquire", start, ok, err) }()

	if err := validMode(mode); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	handle := owner + "\x00" + key
	f, held := m.files[handle]
	if !held {
		f, err = os.OpenFile(m.lockPath(key), os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return false, fmt.Errorf("failed to open lock file for %s: %w", key, err)
		}
	}

	how := unix.LOCK_EX
	if mode == Shared {
		how = unix.LOCK_SH
	}

	if err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB); err != nil {
		if !held {
			_ = f.Close()
		}
		if errors.Is(err, unix.EWOULDBLOCK) {
			return false, nil
		}
		return false, fmt.Errorf("failed to lock %s: %w", key, err)
	}

	if !held {
		m.files[handle] = f
		metrics.ActiveLocks.Inc()
	}

	m.logger.Debug("Lock acquired",
		zap.String("key", key),
		zap.String("owner", owner),
		zap.Stringer("mode", mode))

	return true, nil
}

// Release unlocks and closes the owner's lock file. The file itself stays so that
// concurrent acquirers never lock an unlinked inode.
func (m *FileManager) Release(ctx context.Context, key, owner string) (err error) {
	start := time.Now()
	defer func() { record("flock", "release", start, true, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	handle := owner + "\x00" + key
	f, held := m.files[handle]
	if !held {
		return nil
	}
	delete(m.files, handle)
	metrics.ActiveLocks.Dec()

	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if unlockErr != nil {
		return fmt.Errorf("failed to unlock %s: %w", key, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close lock file for %s: %w", key, closeErr)
	}

	m.logger.Debug("Lock released",
		zap.String("key", key),
		zap.String("owner", owner))

	return nil
}

// Close releases every lock still held through this manager
func (m *FileManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for handle, f := range m.files {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(m.files, handle)
		metrics.ActiveLocks.Dec()
	}
	return errors.Join(errs...)
}
