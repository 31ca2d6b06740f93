package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultMemoryDedupMaxEntries = 65536

// MemoryDeduplicator keeps processed references in process memory. A zero TTL
// retains entries until capacity forces out the oldest one.
type MemoryDeduplicator struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]time.Time
	Now        func() time.Time
}

func NewMemoryDeduplicator(ttl time.Duration) *MemoryDeduplicator {
	return NewMemoryDeduplicatorWithLimits(ttl, defaultMemoryDedupMaxEntries)
}

func NewMemoryDeduplicatorWithLimits(ttl time.Duration, maxEntries int) *MemoryDeduplicator {
	if ttl < 0 {
		ttl = 0
	}
	if maxEntries <= 0 {
		maxEntries = defaultMemoryDedupMaxEntries
	}
	return &MemoryDeduplicator{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    map[string]time.Time{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (d *MemoryDeduplicator) CheckAndMark(_ context.Context, providerID string, reference string) (bool, error) {
	if d == nil {
		return false, fmt.Errorf("core: deduplicator is not configured")
	}
	key, err := DedupKey(providerID, reference)
	if err != nil {
		return false, err
	}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if markedAt, ok := d.entries[key]; ok {
		if d.ttl <= 0 || now.Before(markedAt.Add(d.ttl)) {
			return true, nil
		}
		delete(d.entries, key)
	}
	d.pruneExpiredLocked(now)
	d.enforceCapacityLocked(1)
	d.entries[key] = now
	return false, nil
}

func (d *MemoryDeduplicator) Len() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *MemoryDeduplicator) now() time.Time {
	if d != nil && d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *MemoryDeduplicator) pruneExpiredLocked(now time.Time) {
	if d.ttl <= 0 {
		return
	}
	for key, markedAt := range d.entries {
		if !now.Before(markedAt.Add(d.ttl)) {
			delete(d.entries, key)
		}
	}
}

func (d *MemoryDeduplicator) enforceCapacityLocked(incoming int) {
	target := d.maxEntries - incoming
	if target < 0 {
		target = 0
	}
	for len(d.entries) > target {
		var oldestKey string
		var oldest time.Time
		for key, markedAt := range d.entries {
			if oldestKey == "" || markedAt.Before(oldest) {
				oldestKey = key
				oldest = markedAt
			}
		}
		delete(d.entries, oldestKey)
	}
}

func DedupKey(providerID string, reference string) (string, error) {
	providerID = strings.TrimSpace(providerID)
	reference = strings.TrimSpace(reference)
	if providerID == "" {
		return "", fmt.Errorf("core: dedup provider id is required")
	}
	if reference == "" {
		return "", fmt.Errorf("core: dedup reference is required")
	}
	return providerID + ":" + reference, nil
}

var _ Deduplicator = (*MemoryDeduplicator)(nil)
