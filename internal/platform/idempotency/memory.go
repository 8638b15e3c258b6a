package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. It backs tests and local
// development; deployments use the Firestore store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Claim reserves the key for the fingerprint, treating expired entries as
// fresh.
func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(key)
	entry, ok := s.entries[id]
	if !ok || entryExpired(entry, now) {
		entry = Entry{
			Key:         key,
			Fingerprint: fingerprint,
			CreatedAt:   now,
			UpdatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}
		s.entries[id] = entry
		return Claim{State: ClaimAccepted, Entry: entry}, nil
	}

	if entry.Fingerprint != fingerprint {
		return Claim{}, ErrFingerprintMismatch
	}
	if entry.Completed {
		return Claim{State: ClaimReplayed, Entry: entry}, nil
	}
	return Claim{State: ClaimInFlight, Entry: entry}, nil
}

// Complete stores the response against the key for later replay.
func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(key)
	entry, ok := s.entries[id]
	if ok && entry.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		entry = Entry{Key: key, Fingerprint: fingerprint, CreatedAt: now}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	entry.Completed = true
	entry.ResponseStatus = resp.Status
	entry.ResponseHeader = storableHeader(resp.Headers)
	entry.ResponseBody = append([]byte(nil), resp.Body...)
	entry.UpdatedAt = now
	entry.ExpiresAt = now.Add(ttl)
	s.entries[id] = entry
	return nil
}

// Release drops the claim so a later attempt can retry.
func (s *MemoryStore) Release(_ context.Context, key, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, docID(key))
	return nil
}

// CleanupExpired removes up to limit expired entries.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	removed := 0
	for id, entry := range s.entries {
		if !entryExpired(entry, now) {
			continue
		}
		delete(s.entries, id)
		removed++
		if removed >= limit {
			break
		}
	}
	return removed, nil
}

func entryExpired(entry Entry, now time.Time) bool {
	return !entry.ExpiresAt.IsZero() && !now.Before(entry.ExpiresAt)
}
