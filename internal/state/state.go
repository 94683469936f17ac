package state

import (
	"fmt"
	"sync"
)

// VersionState tracks the latest certified version per identity key.
type VersionState struct {
	ContentDigest string `json:"contentDigest"`
	Version       int64  `json:"version"`
	LastUID       string `json:"lastUid"`
	UpdatedAt     int64  `json:"updatedAt"`
}

// Decision is the incremental-merge outcome for one certified record.
type Decision string

const (
	Inserted  Decision = "inserted"  // identity key never seen before
	Versioned Decision = "versioned" // content changed, new version appended
	Unchanged Decision = "unchanged" // same content, skip
)

// Store abstracts the identity/version backend. Versions only grow; an
// unchanged re-ingestion never mutates state, which makes repeated runs over
// the same file idempotent.
type Store interface {
	Apply(identityKey string, contentDigest string, recordUID string, now int64) (Decision, VersionState, error)
	Get(identityKey string) (VersionState, bool)
	Range(fn func(key string, st VersionState) error) error
	LoadAll(all map[string]VersionState)
}

// InMemoryStore is a simple thread-safe map store.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]VersionState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]VersionState)}
}

// LoadAll replaces the store contents with the provided snapshot.
func (s *InMemoryStore) LoadAll(all map[string]VersionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]VersionState, len(all))
	for k, v := range all {
		s.data[k] = v
	}
}

func (s *InMemoryStore) Apply(identityKey string, contentDigest string, recordUID string, now int64) (Decision, VersionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[identityKey]
	dec, next := merge(st, ok, contentDigest, recordUID, now)
	if dec != Unchanged {
		s.data[identityKey] = next
	}
	return dec, next, nil
}

func (s *InMemoryStore) Get(identityKey string) (VersionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.data[identityKey]
	return st, ok
}

func (s *InMemoryStore) Range(fn func(key string, st VersionState) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.data {
		if err := fn(k, v); err != nil {
			return fmt.Errorf("range callback failed: %w", err)
		}
	}
	return nil
}

// merge holds the last-seen-wins policy shared by all backends. Changed
// content becomes a new version rather than overwriting, preserving history
// for auditing.
func merge(cur VersionState, exists bool, contentDigest string, recordUID string, now int64) (Decision, VersionState) {
	if !exists {
		return Inserted, VersionState{ContentDigest: contentDigest, Version: 1, LastUID: recordUID, UpdatedAt: now}
	}
	if cur.ContentDigest == contentDigest {
		return Unchanged, cur
	}
	return Versioned, VersionState{ContentDigest: contentDigest, Version: cur.Version + 1, LastUID: recordUID, UpdatedAt: now}
}
