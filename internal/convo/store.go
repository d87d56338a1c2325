// Package convo provides the in-memory conversation store.
//
// The store holds per-conversation message history and timestamps and offers
// explicit lifecycle control: creation, lookup, appends, deletion, and
// time-based eviction. All map access is synchronised, and each conversation
// additionally carries a turn mutex so that a whole answer turn (read history,
// call the model, append the reply) can be serialised per conversation —
// concurrent turns against the same identifier can no longer interleave their
// appends or lose updates.
//
// The eviction timer is owned by the process, not by this package; callers
// run EvictOlderThan on whatever schedule they choose.
package convo

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmvillota/orquesta/pkg/types"
)

// ErrNotFound is returned when a conversation identifier is unknown.
var ErrNotFound = errors.New("convo: conversation not found")

// entry bundles a conversation with its turn mutex. The turn mutex outlives
// map-level locking: a caller holds it across an entire answer turn.
type entry struct {
	turnMu sync.Mutex
	conv   types.Conversation
}

// Store is a thread-safe, in-memory conversation store.
// The zero value is not usable; create instances with New.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New returns an initialised [Store].
func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// GetOrCreate returns the conversation registered under id, creating and
// registering a fresh one when id is empty or unknown. It never fails.
// The returned value is a snapshot; mutation happens only through Append.
func (s *Store) GetOrCreate(id string) types.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if e, ok := s.entries[id]; ok {
			return snapshot(e.conv)
		}
	}

	now := time.Now().UTC()
	conv := types.Conversation{
		ID:        uuid.NewString(),
		UserID:    types.AnonymousUser,
		Messages:  []types.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.entries[conv.ID] = &entry{conv: conv}
	return snapshot(conv)
}

// Append adds msg to the conversation's sequence and bumps its last-updated
// timestamp. Returns ErrNotFound when id is unknown.
func (s *Store) Append(id string, msg types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.conv.Messages = append(e.conv.Messages, msg)
	e.conv.UpdatedAt = time.Now().UTC()
	return nil
}

// Get returns a snapshot of the conversation, or ErrNotFound.
func (s *Store) Get(id string) (types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return types.Conversation{}, ErrNotFound
	}
	return snapshot(e.conv), nil
}

// Delete removes the conversation and reports whether one was removed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[id]
	delete(s.entries, id)
	return ok
}

// EvictOlderThan removes every conversation whose last-updated timestamp is
// older than now - retention and returns the count removed.
func (s *Store) EvictOlderThan(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if e.conv.UpdatedAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// LockTurn acquires the per-conversation turn mutex and returns the release
// function. Callers hold it across a whole answer turn so concurrent turns on
// the same conversation are serialised rather than interleaved. Locking an
// unknown id is a no-op that returns a no-op release.
func (s *Store) LockTurn(id string) (release func()) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok {
		return func() {}
	}
	e.turnMu.Lock()
	return e.turnMu.Unlock
}

// snapshot copies a conversation so callers never share the live message
// slice with the store.
func snapshot(c types.Conversation) types.Conversation {
	msgs := make([]types.Message, len(c.Messages))
	copy(msgs, c.Messages)
	c.Messages = msgs
	return c
}
