// Package store persists conversation state records. The workflow core
// requires one consistency guarantee from any backend: for a single
// conversation id, load-modify-save cycles are serialized or the stale writer
// is rejected. Every backend here enforces the second half via an optimistic
// version check on save; the Owner in this package layers the first half on
// top by funneling all work for a conversation through one goroutine.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jordanhubbard/venueflow/pkg/models"
)

// ErrNotFound marks a missing conversation or HIL task.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict marks a save whose version token is stale: another
// writer committed in between. The caller must reload and reprocess against
// the fresh snapshot, never merge blindly.
var ErrVersionConflict = errors.New("conversation version conflict")

// Store is the conversation persistence contract.
type Store interface {
	// Load returns a private copy of the conversation state.
	Load(ctx context.Context, id string) (*models.ConversationState, error)

	// Save persists the record if state.Version still matches the persisted
	// version, then increments state.Version in place. A fresh record
	// (Version 0) is inserted. Returns ErrVersionConflict on a stale token.
	Save(ctx context.Context, state *models.ConversationState) error

	// List returns all conversations, most recently updated first.
	List(ctx context.Context) ([]*models.ConversationState, error)

	// FindHilTask resolves a pending HIL task id to its conversation id.
	FindHilTask(ctx context.Context, taskID string) (string, error)

	Close() error
}

func touch(state *models.ConversationState) {
	state.UpdatedAt = time.Now().UTC()
}
