// Package service provides the stateful building blocks of the policy engine:
// quota/cooldown counters, the decision cache, the audit ring buffer, and
// confirmation gates.
package service

import (
	"sync"
	"time"
)

// NowFunc supplies the current time. Injected so quota, cooldown, and cache
// expiry behavior is deterministic under test.
type NowFunc func() time.Time

// CounterStore tracks per-resource per-day invocation counts and the last
// invocation timestamp per resource. Counters belong to a single calendar day;
// entries for any other day are swept lazily on access rather than by timer.
type CounterStore struct {
	mu   sync.Mutex
	now  NowFunc
	date string
	// counts maps resourceKey -> invocation count for date.
	counts map[string]int
	// lastSeen maps resourceKey -> last committed invocation time (cooldown).
	lastSeen map[string]time.Time
}

// NewCounterStore creates a counter store. A nil now defaults to time.Now.
func NewCounterStore(now NowFunc) *CounterStore {
	if now == nil {
		now = time.Now
	}
	return &CounterStore{
		now:      now,
		counts:   make(map[string]int),
		lastSeen: make(map[string]time.Time),
	}
}

// TodayCount returns the invocation count for resourceKey on the current
// calendar day. Never creates an entry.
func (s *CounterStore) TodayCount(resourceKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	return s.counts[resourceKey]
}

// Commit records one successful invocation of resourceKey: increments today's
// count and stamps the last-invocation time. Called only after a full
// evaluation succeeds, so denied evaluations never consume quota.
func (s *CounterStore) Commit(resourceKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.counts[resourceKey]++
	s.lastSeen[resourceKey] = s.now()
}

// LastInvocation returns the last committed invocation time for resourceKey.
// A missing entry returns ok=false, which cooldown checks treat as satisfied.
func (s *CounterStore) LastInvocation(resourceKey string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSeen[resourceKey]
	return last, ok
}

// Reset discards all counters and last-invocation timestamps.
func (s *CounterStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.date = ""
	s.counts = make(map[string]int)
	s.lastSeen = make(map[string]time.Time)
}

// sweep discards counts when the calendar day has rolled over. Counters for a
// date other than today are never read, so the whole map is dropped at once.
// Caller must hold s.mu.
func (s *CounterStore) sweep() {
	today := s.now().Format(time.DateOnly)
	if s.date != today {
		s.date = today
		s.counts = make(map[string]int)
	}
}
