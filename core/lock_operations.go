package core

import (
	"context"
	"fmt"

	"github.com/ebogdum/flystream/locks"
)

// Lock applies a flock-style operation to the stream uri. The lock store and TTL come
// from the scheme options, so separate processes sharing the store serialize on the
// same uri. Blocking requests wait until the lock is granted or the stream context ends.
func (s *Stream) Lock(op LockOp) (bool, error) {
	const opName = "stream_lock"
	if s.closed {
		return false, s.w.fail(opName, s.mount.Scheme, newError(ErrInvalidHandle, opName, s.uri, nil), true)
	}

	if op == LockUnlock {
		if err := s.releaseLock(); err != nil {
			return false, s.w.fail(opName, s.mount.Scheme, err, true)
		}
		return true, nil
	}

	var (
		mode     locks.Mode
		blocking = op&LockNonBlocking == 0
	)
	switch op &^ LockNonBlocking {
	case LockShared:
		mode = locks.Shared
	case LockExclusive:
		mode = locks.Exclusive
	default:
		return false, fmt.Errorf("%s(%s): %w: %d", opName, s.uri, ErrUnsupportedLockOp, int(op))
	}

	manager, err := s.lockManagerFor()
	if err != nil {
		return false, s.w.fail(opName, s.mount.Scheme, err, true)
	}

	var acquired bool
	if blocking {
		acquired, err = locks.AcquireWait(s.ctx, manager, s.uri, s.lockOwner, mode, s.w.pollInterval)
	} else {
		acquired, err = manager.Acquire(s.ctx, s.uri, s.lockOwner, mode)
	}
	if err != nil {
		return false, s.w.fail(opName, s.mount.Scheme, fmt.Errorf("%s(%s): %w", opName, s.uri, err), true)
	}

	if acquired {
		s.lockHeld = true
		s.w.succeed(opName, s.mount.Scheme, s.uri)
	}
	return acquired, nil
}

func (s *Stream) lockManagerFor() (locks.Manager, error) {
	if s.lockManager != nil {
		return s.lockManager, nil
	}
	if s.w.locks == nil {
		return nil, fmt.Errorf("no lock provider configured")
	}

	manager, err := s.w.locks.Manager(s.mount.Options.LockStore, s.mount.Options.LockTTL)
	if err != nil {
		return nil, err
	}
	owner, err := newLockOwner()
	if err != nil {
		return nil, err
	}

	s.lockManager = manager
	s.lockOwner = owner
	return manager, nil
}

// releaseLock drops the lock held by the stream, if any
func (s *Stream) releaseLock() error {
	if s.lockManager == nil || !s.lockHeld {
		return nil
	}

	// The stream context may already be done when the stream is closed
	if err := s.lockManager.Release(context.WithoutCancel(s.ctx), s.uri, s.lockOwner); err != nil {
		return err
	}
	s.lockHeld = false
	return nil
}
