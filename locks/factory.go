package locks

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Factory builds lock managers from store URLs and shares one manager per store and TTL.
//
//	memory://                 in-process LocalManager
//	flock:///var/lock/app     FileManager rooted at the path
//	redis://:pw@host:6379/0   RedisManager
type Factory struct {
	logger *zap.Logger

	mu       sync.Mutex
	managers map[string]Manager
}

// NewFactory creates an empty manager factory
func NewFactory(logger *zap.Logger) *Factory {
	return &Factory{
		logger:   logger,
		managers: make(map[string]Manager),
	}
}

// Manager returns the manager for store, creating it on first use
func (f *Factory) Manager(store string, ttl time.Duration) (Manager, error) {
	cacheKey := fmt.Sprintf("%s|%s", store, ttl)

	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok := f.managers[cacheKey]; ok {
		return m, nil
	}

	m, err := open(store, ttl, f.logger)
	if err != nil {
		return nil, err
	}
	f.managers[cacheKey] = m
	return m, nil
}

// Close closes every manager the factory created
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for key, m := range f.managers {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(f.managers, key)
	}
	return errors.Join(errs...)
}

// ValidateStore checks that store names a supported lock store
func ValidateStore(store string) error {
	u, err := url.Parse(store)
	if err != nil {
		return fmt.Errorf("invalid lock store %q: %w", store, err)
	}

	switch u.Scheme {
	case "memory":
		return nil
	case "flock":
		if u.Path == "" {
			return fmt.Errorf("flock lock store %q needs a directory path", store)
		}
		return nil
	case "redis", "rediss":
		if u.Host == "" {
			return fmt.Errorf("redis lock store %q needs a host", store)
		}
		return nil
	}
	return fmt.Errorf("unsupported lock store scheme %q", u.Scheme)
}

func open(store string, ttl time.Duration, logger *zap.Logger) (Manager, error) {
	if err := ValidateStore(store); err != nil {
		return nil, err
	}

	u, _ := url.Parse(store)
	switch u.Scheme {
	case "memory":
		return NewLocalManager(ttl), nil
	case "flock":
		return NewFileManager(u.Path, logger)
	default:
		return NewRedisManager(store, ttl, logger)
	}
}
