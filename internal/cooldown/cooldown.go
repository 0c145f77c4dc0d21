// Package cooldown is a concurrent TTL store for short-lived locks such as
// bot cooldowns and knock lockouts. Entries expire lazily on read; a
// sweeper may drop expired entries to bound memory.
package cooldown

import (
	"sync"
	"time"
)

// maxTrackedKeys caps the number of live keys. When reached, expired
// entries are pruned before inserting.
const maxTrackedKeys = 65536

// Store maps keys to expiry instants. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// New creates a store using the wall clock.
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock creates a store that reads time from now.
func NewWithClock(now func() time.Time) *Store {
	return &Store{entries: make(map[string]time.Time), now: now}
}

// Active reports whether key holds an unexpired entry.
func (s *Store) Active(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked(key, s.now())
}

// Remaining returns how long key stays active, or 0.
func (s *Store) Remaining(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !s.activeLocked(key, now) {
		return 0
	}
	return s.entries[key].Sub(now)
}

// Start sets key to expire after d. A non-positive d clears it.
func (s *Store) Start(key string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d <= 0 {
		delete(s.entries, key)
		return
	}
	now := s.now()
	s.pruneLocked(now)
	s.entries[key] = now.Add(d)
}

// TryAcquire atomically starts key for d unless it is already active.
// It returns false when key is active. A non-positive d always succeeds
// and stores nothing.
func (s *Store) TryAcquire(key string, d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.activeLocked(key, now) {
		return false
	}
	if d > 0 {
		s.pruneLocked(now)
		s.entries[key] = now.Add(d)
	}
	return true
}

// Release clears key immediately.
func (s *Store) Release(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Sweep drops expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

// Len returns the number of tracked entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) activeLocked(key string, now time.Time) bool {
	exp, ok := s.entries[key]
	if !ok {
		return false
	}
	if !now.Before(exp) {
		delete(s.entries, key)
		return false
	}
	return true
}

func (s *Store) pruneLocked(now time.Time) {
	if len(s.entries) < maxTrackedKeys {
		return
	}
	s.sweepLocked(now)
}

func (s *Store) sweepLocked(now time.Time) int {
	n := 0
	for k, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}
