package service

import (
	"sync"
	"time"

	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
)

// cacheKey identifies one cached decision.
type cacheKey struct {
	subjectID   string
	resourceKey string
}

// cacheEntry is one cached decision with its absolute expiry.
type cacheEntry struct {
	decision  *guardDomain.Decision
	expiresAt time.Time
}

// DecisionCache is a TTL cache keyed by (subjectId, resourceKey). Expiry is
// checked lazily on read; there is no background sweep. Only Allowed decisions
// belong here — the evaluator never caches denials.
type DecisionCache struct {
	mu      sync.Mutex
	now     NowFunc
	entries map[cacheKey]cacheEntry
}

// NewDecisionCache creates a decision cache. A nil now defaults to time.Now.
func NewDecisionCache(now NowFunc) *DecisionCache {
	if now == nil {
		now = time.Now
	}
	return &DecisionCache{
		now:     now,
		entries: make(map[cacheKey]cacheEntry),
	}
}

// Get returns the cached decision for (subjectID, resourceKey), or nil on
// miss or expiry. Expired entries are removed on the way out.
func (c *DecisionCache) Get(subjectID, resourceKey string) *guardDomain.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{subjectID: subjectID, resourceKey: resourceKey}
	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil
	}
	return entry.decision
}

// Set stores a decision with the given lifetime, overwriting any prior entry.
// A non-positive ttl stores nothing.
func (c *DecisionCache) Set(subjectID, resourceKey string, decision *guardDomain.Decision, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{subjectID: subjectID, resourceKey: resourceKey}
	c.entries[key] = cacheEntry{
		decision:  decision,
		expiresAt: c.now().Add(ttl),
	}
}

// Clear discards every cached decision. Called at the logout/role-switch
// boundary so a decision made under one role cannot leak into a session
// under another.
func (c *DecisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}

// ClearSubject discards every cached decision belonging to one subject.
func (c *DecisionCache) ClearSubject(subjectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.subjectID == subjectID {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of live entries, counting expired ones not yet
// swept. Intended for tests and diagnostics.
func (c *DecisionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
