package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebogdum/flystream/metrics"
)

// Mode selects between a reader lock and a writer lock
type Mode int

const (
	// Shared may be held by many owners at once
	Shared Mode = iota + 1
	// Exclusive excludes every other owner
	Exclusive
)

func (m Mode) String() string {
	switch m {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ErrInvalidMode is returned for modes other than Shared and Exclusive
var ErrInvalidMode = errors.New("invalid lock mode")

// Manager defines the interface for advisory locking operations
type Manager interface {
	// Acquire attempts to take the lock for key on behalf of owner without blocking.
	// It returns false when another owner holds a conflicting lock. Calling it again
	// with a different mode converts the lock the owner already holds.
	Acquire(ctx context.Context, key, owner string, mode Mode) (bool, error)

	// Release drops whatever lock owner holds on key. Releasing a lock that is not
	// held is not an error.
	Release(ctx context.Context, key, owner string) error

	// Close closes the lock manager and releases any resources
	Close() error
}

// AcquireWait retries Acquire every interval until it succeeds or ctx is done
func AcquireWait(ctx context.Context, m Manager, key, owner string, mode Mode, interval time.Duration) (bool, error) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := m.Acquire(ctx, key, owner, mode)
		if err != nil || ok {
			return ok, err
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// record updates the lock metrics for one operation
func record(store, operation string, start time.Time, ok bool, err error) {
	status := "success"
	switch {
	case err != nil:
		status = "failure"
	case !ok:
		status = "busy"
	}

	metrics.LockOperationsTotal.WithLabelValues(store, operation, status).Inc()
	metrics.LockOperationDuration.WithLabelValues(store, operation).Observe(time.Since(start).Seconds())
}

func validMode(mode Mode) error {
	if mode != Shared && mode != Exclusive {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	return nil
}
