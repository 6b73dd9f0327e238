package auth

import (
	"sync"
	"time"
)

// RevocationStore remembers tokens ended by logout until they would have
// expired anyway. Safe for concurrent use.
type RevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time // token id -> expiry
	done    chan struct{}
	once    sync.Once
}

// NewRevocationStore starts a store that prunes expired entries every interval.
func NewRevocationStore(interval time.Duration) *RevocationStore {
	s := &RevocationStore{
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	if interval > 0 {
		go s.cleanupLoop(interval)
	}
	return s
}

func (s *RevocationStore) Revoke(tokenID string, expiresAt time.Time) {
	if tokenID == "" {
		return
	}
	s.mu.Lock()
	s.entries[tokenID] = expiresAt
	s.mu.Unlock()
}

func (s *RevocationStore) IsRevoked(tokenID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[tokenID]
	return ok
}

func (s *RevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (s *RevocationStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *RevocationStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.prune(now)
		}
	}
}

func (s *RevocationStore) prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, id)
		}
	}
}
