package service

import (
	"sync"

	guardDomain "github.com/hordu-ma/wuhao-tutor-sub002/internal/guard/domain"
)

// DefaultAuditCapacity is the ring buffer size used when none is configured.
const DefaultAuditCapacity = 100

// AuditLog is a fixed-capacity append-only ring buffer of evaluation records.
// When full, the oldest record is evicted. Reads take a shared lock so they
// never block behind each other, and appends are O(1).
type AuditLog struct {
	mu       sync.RWMutex
	records  []*guardDomain.AuditRecord
	next     int
	size     int
	capacity int
}

// NewAuditLog creates an audit log with the given capacity. Non-positive
// capacities fall back to DefaultAuditCapacity.
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AuditLog{
		records:  make([]*guardDomain.AuditRecord, capacity),
		capacity: capacity,
	}
}

// Append stores a record, evicting the oldest when the buffer is full.
func (l *AuditLog) Append(record *guardDomain.AuditRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records[l.next] = record
	l.next = (l.next + 1) % l.capacity
	if l.size < l.capacity {
		l.size++
	}
}

// Recent returns the last n records, newest first. Asking for more records
// than exist returns everything.
func (l *AuditLog) Recent(n int) []*guardDomain.AuditRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	if n > l.size {
		n = l.size
	}

	out := make([]*guardDomain.AuditRecord, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + l.capacity*2) % l.capacity
		out = append(out, l.records[idx])
	}
	return out
}

// Size returns the number of records currently held.
func (l *AuditLog) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Capacity returns the fixed buffer capacity.
func (l *AuditLog) Capacity() int {
	return l.capacity
}
