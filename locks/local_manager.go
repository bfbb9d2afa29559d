package locks

import (
	"context"
	"sync"
	"time"

	"github.com/ebogdum/flystream/metrics"
)

// localLock is the state of one key; holders map owners to their expiry
type localLock struct {
	exclusive string
	holders   map[string]time.Time
}

// LocalManager provides in-process lock management for local/single-node deployments.
// Locks not released within the TTL are reclaimed on the next acquire.
type LocalManager struct {
	mu    sync.Mutex
	locks map[string]*localLock
	ttl   time.Duration
	now   func() time.Time
}

// NewLocalManager creates a new in-memory lock manager. A zero ttl never expires locks.
func NewLocalManager(ttl time.Duration) *LocalManager {
	return &LocalManager{
		locks: make(map[string]*localLock),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Acquire acquires a lock if no other owner holds a conflicting one.
func (m *LocalManager) Acquire(ctx context.Context, key, owner string, mode Mode) (ok bool, err error) {
	start := time.Now()
	defer func() { record("memory", "acquire", start, ok, err) }()

	if err := validMode(mode); err != nil {
		return false, err
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	lock := m.locks[key]
	if lock == nil {
		lock = &localLock{holders: make(map[string]time.Time)}
		m.locks[key] = lock
	}
	m.reclaim(lock, now)

	_, held := lock.holders[owner]
	switch mode {
	case Exclusive:
		if len(lock.holders) > 1 || (len(lock.holders) == 1 && !held) {
			return false, nil
		}
		lock.exclusive = owner
	case Shared:
		if lock.exclusive != "" && lock.exclusive != owner {
			return false, nil
		}
		lock.exclusive = ""
	}

	if !held {
		metrics.ActiveLocks.Inc()
	}
	lock.holders[owner] = m.expiry(now)
	return true, nil
}

// Release releases a previously acquired lock.
func (m *LocalManager) Release(ctx context.Context, key, owner string) (err error) {
	start := time.Now()
	defer func() { record("memory", "release", start, true, err) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	lock := m.locks[key]
	if lock == nil {
		return nil
	}

	if _, held := lock.holders[owner]; held {
		delete(lock.holders, owner)
		metrics.ActiveLocks.Dec()
	}
	if lock.exclusive == owner {
		lock.exclusive = ""
	}
	if len(lock.holders) == 0 {
		delete(m.locks, key)
	}
	return nil
}

// Close clears all local locks.
func (m *LocalManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lock := range m.locks {
		metrics.ActiveLocks.Sub(float64(len(lock.holders)))
	}
	m.locks = make(map[string]*localLock)
	return nil
}

func (m *LocalManager) expiry(now time.Time) time.Time {
	if m.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(m.ttl)
}

func (m *LocalManager) reclaim(lock *localLock, now time.Time) {
	for owner, expires := range lock.holders {
		if expires.IsZero() || now.Before(expires) {
			continue
		}
		delete(lock.holders, owner)
		metrics.ActiveLocks.Dec()
		if lock.exclusive == owner {
			lock.exclusive = ""
		}
	}
}
