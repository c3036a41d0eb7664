package message

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatrelay/chatrelay/internal/common/logger"
)

var (
	// ErrNotFound is returned when a message ID is not present in the store.
	ErrNotFound = errors.New("message not found")
	// ErrDuplicateID is returned when an entry with the same ID already exists.
	ErrDuplicateID = errors.New("message id already exists")
)

// Store is an in-memory correlation table mapping message IDs to their
// submission and, once the worker replies, its response. Per-key operations
// are atomic; entries are independent so no cross-key coordination exists.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*StoredEntry
	ttl     time.Duration
	logger  *logger.Logger
}

// NewStore creates a correlation store. A ttl of zero disables eviction and
// entries live for the life of the process.
func NewStore(ttl time.Duration, log *logger.Logger) *Store {
	return &Store{
		entries: make(map[string]*StoredEntry),
		ttl:     ttl,
		logger:  log,
	}
}

// Put inserts a pending entry for a submission. Duplicate IDs are rejected
// rather than silently overwritten.
func (s *Store) Put(sub *Submission) (*StoredEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[sub.ID]; exists {
		return nil, ErrDuplicateID
	}

	entry := &StoredEntry{
		Submission: sub,
		StoredAt:   time.Now().UTC(),
	}
	s.entries[sub.ID] = entry
	return entry, nil
}

// Get returns a snapshot of the entry for a message ID.
func (s *Store) Get(id string) (*StoredEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Copy so callers never observe a concurrent mutation mid-read.
	snapshot := *entry
	return &snapshot, nil
}

// AttachResponse records the worker's reply for a message ID. A second call
// for the same ID overwrites the previous response.
func (s *Store) AttachResponse(id string, resp *Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}

	now := time.Now().UTC()
	entry.Response = resp
	entry.ResponseAt = &now
	return nil
}

// List returns a snapshot of all entries.
func (s *Store) List() []*StoredEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*StoredEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		snapshot := *entry
		result = append(result, &snapshot)
	}
	return result
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep removes entries stored longer ago than the TTL and returns how many
// were evicted. No-op when eviction is disabled.
func (s *Store) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, entry := range s.entries {
		if now.Sub(entry.StoredAt) > s.ttl {
			delete(s.entries, id)
			evicted++
		}
	}
	return evicted
}

// Janitor periodically sweeps expired entries until the context is cancelled.
// Returns immediately when eviction is disabled.
func (s *Store) Janitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if evicted := s.Sweep(now); evicted > 0 {
				s.logger.Debug("Evicted expired entries",
					zap.Int("count", evicted),
					zap.Int("remaining", s.Len()),
				)
			}
		}
	}
}
