package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jordanhubbard/venueflow/pkg/models"
)

// FileStore persists each conversation as one JSON file. The naive version of
// this layout — locking only the individual read or write call — lets two
// handlers for the same conversation load the same snapshot and have the
// later save silently overwrite the earlier one. This implementation closes
// that gap twice over: a per-conversation mutex covers the whole
// read-check-write of Save, and the version token is verified against the
// file before the write.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates the directory if needed and returns a file store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *FileStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[id] = l
	return l
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, id string) (*models.ConversationState, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return s.read(id)
}

func (s *FileStore) read(id string) (*models.ConversationState, error) {
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}
	var state models.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	return &state, nil
}

// Save implements Store. The whole check-and-write runs under the
// per-conversation lock; a concurrent save from a stale snapshot is rejected
// instead of overwriting.
func (s *FileStore) Save(_ context.Context, state *models.ConversationState) error {
	l := s.lockFor(state.ID)
	l.Lock()
	defer l.Unlock()

	current, err := s.read(state.ID)
	switch {
	case err == nil:
		if current.Version != state.Version {
			return ErrVersionConflict
		}
	case err == ErrNotFound:
		if state.Version != 0 {
			return ErrVersionConflict
		}
	default:
		return err
	}

	touch(state)
	state.Version++

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		state.Version--
		return fmt.Errorf("failed to encode conversation %s: %w", state.ID, err)
	}

	// Write to a temp file and rename so readers never see a torn record.
	tmp, err := os.CreateTemp(s.dir, state.ID+".tmp-*")
	if err != nil {
		state.Version--
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		state.Version--
		return fmt.Errorf("failed to write conversation %s: %w", state.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		state.Version--
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(state.ID)); err != nil {
		os.Remove(tmp.Name())
		state.Version--
		return fmt.Errorf("failed to replace conversation %s: %w", state.ID, err)
	}
	return nil
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]*models.ConversationState, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list store directory: %w", err)
	}

	var out []*models.ConversationState
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		state, err := s.Load(ctx, id)
		if err != nil {
			continue // skip torn or foreign files
		}
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// FindHilTask implements Store.
func (s *FileStore) FindHilTask(ctx context.Context, taskID string) (string, error) {
	all, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range all {
		if _, ok := c.PendingHilByID(taskID); ok {
			return c.ID, nil
		}
	}
	return "", ErrNotFound
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
