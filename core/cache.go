package core

import (
	"sync"

	"github.com/ebogdum/flystream/backends"
)

// CapabilityCache remembers which metadata kinds an operator supports. It starts from the
// operator's own descriptor and only ever shrinks, when a targeted call reports
// backends.ErrUnsupported.
type CapabilityCache struct {
	mu        sync.RWMutex
	supported backends.Capabilities
}

// NewCapabilityCache creates a cache seeded with caps
func NewCapabilityCache(caps backends.Capabilities) *CapabilityCache {
	return &CapabilityCache{supported: caps}
}

// Supports reports whether kind may still be requested
func (c *CapabilityCache) Supports(kind backends.MetadataKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.supported.Has(kind)
}

// Drop removes kind for the rest of the process lifetime
func (c *CapabilityCache) Drop(kind backends.MetadataKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supported = c.supported.Without(kind)
}

// Supported returns the current set
func (c *CapabilityCache) Supported() backends.Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.supported
}
