package store

import (
	"context"
	"sort"
	"sync"

	"github.com/jordanhubbard/venueflow/pkg/models"
)

// MemoryStore keeps conversations in process memory. Used by tests and
// single-node development runs.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.ConversationState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*models.ConversationState)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, id string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return state.Clone(), nil
}

// Save implements Store. The version check and the write happen under one
// lock, so two writers racing on the same snapshot cannot both succeed.
func (s *MemoryStore) Save(_ context.Context, state *models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.conversations[state.ID]
	if exists && current.Version != state.Version {
		return ErrVersionConflict
	}
	if !exists && state.Version != 0 {
		return ErrVersionConflict
	}

	touch(state)
	state.Version++
	s.conversations[state.ID] = state.Clone()
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ConversationState, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// FindHilTask implements Store.
func (s *MemoryStore) FindHilTask(_ context.Context, taskID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, c := range s.conversations {
		if _, ok := c.PendingHilByID(taskID); ok {
			return id, nil
		}
	}
	return "", ErrNotFound
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
