package core

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ebogdum/flystream/backends"
	"github.com/ebogdum/flystream/config"
	"github.com/ebogdum/flystream/internal/pathutil"
)

var schemePattern = regexp.MustCompile(`^[a-z][a-z0-9+-]*$`)

// SchemeOptions are the bridge settings of one scheme
type SchemeOptions struct {
	LockStore                    string
	LockTTL                      time.Duration
	IgnoreVisibilityErrors       bool
	EmulateDirectoryLastModified bool
	LegacyRenameErrors           bool
	UID                          *int // process uid when nil
	GID                          *int // process gid when nil
	Permissions                  backends.PortableVisibility
	BufferMemoryLimit            int64
	BufferTempDir                string
}

// DefaultSchemeOptions returns the options of a scheme with no configuration
func DefaultSchemeOptions() SchemeOptions {
	return SchemeOptions{
		LockStore:         config.DefaultLockStore,
		LockTTL:           config.DefaultLockTTL,
		Permissions:       backends.DefaultPortableVisibility(),
		BufferMemoryLimit: config.DefaultBufferMemoryLimit,
	}
}

// OptionsFromConfig converts a loaded scheme configuration
func OptionsFromConfig(c config.SchemeConfig) (SchemeOptions, error) {
	perms, err := c.PortableVisibility()
	if err != nil {
		return SchemeOptions{}, err
	}

	opts := DefaultSchemeOptions()
	opts.Permissions = perms
	opts.IgnoreVisibilityErrors = c.IgnoreVisibilityErrors
	opts.EmulateDirectoryLastModified = c.EmulateDirectoryLastModified
	opts.LegacyRenameErrors = c.LegacyRenameErrors
	opts.UID = c.UID
	opts.GID = c.GID
	opts.BufferTempDir = c.BufferTempDir
	if c.LockStore != "" {
		opts.LockStore = c.LockStore
	}
	if c.LockTTL > 0 {
		opts.LockTTL = c.LockTTL
	}
	if c.BufferMemoryLimit > 0 {
		opts.BufferMemoryLimit = c.BufferMemoryLimit
	}
	return opts, nil
}

// Mount binds an operator to a scheme
type Mount struct {
	Scheme       string
	Operator     backends.Operator
	Options      SchemeOptions
	capabilities *CapabilityCache
}

// Capabilities returns the metadata kinds still believed supported by the operator
func (m *Mount) Capabilities() backends.Capabilities {
	return m.capabilities.Supported()
}

// Registry maps schemes to operators. It is filled before the first stream operation
// and only read afterwards.
type Registry struct {
	mu     sync.RWMutex
	mounts map[string]*Mount
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{mounts: make(map[string]*Mount)}
}

// Register binds op to scheme
func (r *Registry) Register(scheme string, op backends.Operator, opts SchemeOptions) error {
	if !schemePattern.MatchString(scheme) {
		return fmt.Errorf("%w: %q", ErrInvalidSchemeName, scheme)
	}
	if op == nil {
		return fmt.Errorf("scheme %s: operator is nil", scheme)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.mounts[scheme]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateScheme, scheme)
	}

	r.mounts[scheme] = &Mount{
		Scheme:       scheme,
		Operator:     op,
		Options:      opts,
		capabilities: NewCapabilityCache(op.Capabilities()),
	}
	return nil
}

// Lookup returns the mount of scheme
func (r *Registry) Lookup(scheme string) (*Mount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.mounts[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}
	return m, nil
}

// Resolve splits uri and returns its mount with the normalized operator path
func (r *Registry) Resolve(uri string) (*Mount, string, error) {
	scheme, path, err := SplitURI(uri)
	if err != nil {
		return nil, "", err
	}

	m, err := r.Lookup(scheme)
	if err != nil {
		return nil, "", err
	}
	return m, path, nil
}

// Schemes returns the registered schemes in sorted order
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemes := make([]string, 0, len(r.mounts))
	for scheme := range r.mounts {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

// Close closes every registered operator
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for scheme, m := range r.mounts {
		if err := m.Operator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", scheme, err))
		}
	}
	r.mounts = make(map[string]*Mount)
	return errors.Join(errs...)
}

// SplitURI decomposes "scheme://path" into the scheme and the normalized operator path.
// The root is returned as "".
func SplitURI(uri string) (string, string, error) {
	i := strings.Index(uri, "://")
	if i <= 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}

	path, err := pathutil.Normalize(uri[i+3:])
	if err != nil {
		return "", "", fmt.Errorf("%w: %q: %w", ErrInvalidURI, uri, err)
	}
	return uri[:i], path, nil
}
