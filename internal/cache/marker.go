package cache

import (
	"slices"
	"sync"

	"github.com/mapcrafter/playermarkers/internal/marker"
)

// MarkerCache maps usernames to their live markers
type MarkerCache struct {
	mu      sync.RWMutex
	markers map[string]*marker.Marker
}

// NewMarkerCache creates a new MarkerCache
func NewMarkerCache() *MarkerCache {
	return &MarkerCache{
		markers: make(map[string]*marker.Marker),
	}
}

// Get retrieves a marker by username
func (c *MarkerCache) Get(username string) (*marker.Marker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markers[username]
	return m, ok
}

// Set stores a marker under its username
func (c *MarkerCache) Set(m *marker.Marker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers[m.Username()] = m
}

// Delete removes a marker by username
func (c *MarkerCache) Delete(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markers, username)
}

// Len returns the number of live markers
func (c *MarkerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.markers)
}

// Usernames returns all cached usernames, sorted
func (c *MarkerCache) Usernames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.markers))
	for name := range c.markers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Each calls fn for every marker in username order. fn may modify the cache.
func (c *MarkerCache) Each(fn func(*marker.Marker)) {
	for _, name := range c.Usernames() {
		if m, ok := c.Get(name); ok {
			fn(m)
		}
	}
}
