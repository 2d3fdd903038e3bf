// Package idempotency guards order ingestion against concurrent duplicates.
//
// The order store detects a duplicate by scanning its buckets, which leaves a
// window between the scan and the write. Two feeds delivering the same order
// at the same moment would both see "absent". The Store here closes that
// window inside one process: the first caller claims the id, every other
// caller is told it already exists until the claim is released or expires.
package idempotency

import (
	"errors"
	"sync"
	"time"
)

// ErrUnknownKey is returned when marking a key that was never claimed.
var ErrUnknownKey = errors.New("idempotency key not found")

// Store keeps idempotency entries in memory.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*Record
	ttlWindow time.Duration // how long a finished entry keeps rejecting duplicates
	nowFunc   func() time.Time
	lastSweep time.Time
}

// NewStore returns a configured Store.
// ttlWindow: how long DONE entries are kept (e.g., 10*time.Minute). Zero
// keeps them until the process exits. Claims sweep stale entries at most
// once per window, so the table stays bounded by the ids seen in one window.
func NewStore(ttlWindow time.Duration) *Store {
	return &Store{
		entries:   map[string]*Record{},
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// CreateIfNotExists claims key with status IN_PROGRESS.
// Returns true if the caller now owns the key.
// Returns false if another caller holds it or finished it recently; FAILED
// and expired entries are replaced.
func (s *Store) CreateIfNotExists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	if s.ttlWindow > 0 && now.Sub(s.lastSweep) >= s.ttlWindow {
		s.sweep(now)
	}
	if rec, ok := s.entries[key]; ok && rec.Status != StatusFailed && !rec.expired(now) {
		return false
	}
	s.entries[key] = &Record{
		Key:       key,
		Status:    StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true
}

// Get returns a copy of the entry for key, or nil when there is none.
func (s *Store) Get(key string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[key]
	if !ok || rec.expired(s.nowFunc()) {
		return nil
	}
	cp := *rec
	return &cp
}

// MarkDone records where the order ended up and starts the TTL window.
func (s *Store) MarkDone(key, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[key]
	if !ok {
		return ErrUnknownKey
	}
	now := s.nowFunc()
	rec.Status = StatusDone
	rec.Location = location
	rec.UpdatedAt = now
	if s.ttlWindow > 0 {
		rec.ExpiresAt = now.Add(s.ttlWindow)
	}
	return nil
}

// MarkFailed releases the claim so the next delivery can retry.
func (s *Store) MarkFailed(key, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[key]
	if !ok {
		return ErrUnknownKey
	}
	rec.Status = StatusFailed
	rec.Note = note
	rec.UpdatedAt = s.nowFunc()
	return nil
}

// Sweep drops expired and failed entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweep(s.nowFunc())
}

func (s *Store) sweep(now time.Time) int {
	n := 0
	for k, rec := range s.entries {
		if rec.Status == StatusFailed || rec.expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	s.lastSweep = now
	return n
}

// Len reports the number of tracked entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
