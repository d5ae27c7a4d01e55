// Package cache provides an in-process TTL cache with hashed keys, used
// for the friends aggregation (§4.4) and name-search (§4.5) caches. The
// out-of-scope §1 collaborator is an external key/value cache with the
// same semantics; this is the in-process default implementation of it.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value      interface{}
	expiration time.Time
}

// TTLCache is a single mutex-guarded map with per-entry expiry.
type TTLCache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
}

// New builds a TTLCache with the given default TTL.
func New(defaultTTL time.Duration) *TTLCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &TTLCache{entries: make(map[string]entry), defaultTTL: defaultTTL}
}

// Get returns the cached value for key, if present and unexpired.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiration) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the cache's default TTL.
func (c *TTLCache) Set(key string, value interface{}) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key with an explicit TTL.
func (c *TTLCache) SetTTL(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiration: time.Now().Add(ttl)}
}

// Delete invalidates a single key.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Sweep removes all expired entries; meant to be called periodically.
func (c *TTLCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiration) {
			delete(c.entries, k)
		}
	}
}

// HashKey builds a stable cache key from a prefix and a set of parts,
// sha256-hashing the variable part the way the original service hashes
// profile_fields ⊕ account ids before keying the cache (§4.4, §4.5).
func HashKey(prefix string, parts ...string) string {
	sorted := append([]string(nil), parts...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, p := range sorted {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))
}

// FieldsKey renders a consistent textual form of requested profile
// fields for hashing, treating a nil slice distinctly from an empty,
// non-nil slice explicitly requesting no fields.
func FieldsKey(fields []string) string {
	if fields == nil {
		return "\x00nil"
	}
	return strings.Join(fields, ",")
}
