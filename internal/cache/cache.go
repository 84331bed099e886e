// Package cache provides a time-limited in-memory store for fetched
// catalog and component payloads.
package cache

import (
	"sync"
	"time"
)

// Store caches payloads by key with a freshness window and an optional
// stale window. Within TTL a payload is fresh; within TTL+Stale it is
// returned but flagged so the caller can refresh in the background;
// beyond that it is gone.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	stale   time.Duration
	maxSize int
}

type entry struct {
	data     []byte
	storedAt time.Time
}

// Options configures the cache.
type Options struct {
	// TTL is the freshness window. Zero or negative disables caching.
	TTL time.Duration
	// Stale extends TTL with a serve-while-refresh window.
	Stale time.Duration
	// MaxSize caps the number of entries; 0 means unbounded.
	MaxSize int
}

// New creates a payload cache.
func New(opts Options) *Store {
	stale := opts.Stale
	if stale < 0 {
		stale = 0
	}
	maxSize := opts.MaxSize
	if maxSize < 0 {
		maxSize = 0
	}
	return &Store{
		entries: make(map[string]entry),
		ttl:     opts.TTL,
		stale:   stale,
		maxSize: maxSize,
	}
}

// Get returns the cached payload for key. ok reports a usable payload;
// stale reports that it is past TTL and should be refreshed.
func (s *Store) Get(key string) (data []byte, stale bool, ok bool) {
	return s.GetAt(key, time.Now())
}

// GetAt is Get with an explicit clock, for tests.
func (s *Store) GetAt(key string, now time.Time) (data []byte, stale bool, ok bool) {
	if key == "" || s.ttl <= 0 {
		return nil, false, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		return nil, false, false
	}
	age := now.Sub(e.storedAt)
	if age < s.ttl {
		return e.data, false, true
	}
	if age < s.ttl+s.stale {
		return e.data, true, true
	}
	delete(s.entries, key)
	return nil, false, false
}

// Set stores a payload under key, evicting expired entries and, when the
// cache is full, the oldest entry.
func (s *Store) Set(key string, data []byte) {
	s.SetAt(key, data, time.Now())
}

// SetAt is Set with an explicit clock, for tests.
func (s *Store) SetAt(key string, data []byte, now time.Time) {
	if key == "" || s.ttl <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	limit := s.ttl + s.stale
	for k, e := range s.entries {
		if now.Sub(e.storedAt) >= limit {
			delete(s.entries, k)
		}
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		if _, exists := s.entries[key]; !exists {
			var oldestKey string
			var oldestAt time.Time
			for k, e := range s.entries {
				if oldestKey == "" || e.storedAt.Before(oldestAt) {
					oldestKey = k
					oldestAt = e.storedAt
				}
			}
			delete(s.entries, oldestKey)
		}
	}

	s.entries[key] = entry{data: data, storedAt: now}
}

// Invalidate removes a single key.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
