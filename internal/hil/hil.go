// Package hil exposes the human-in-the-loop task queue: drafts parked by
// stage handlers waiting for a venue manager's approve/reject decision.
package hil

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/jordanhubbard/venueflow/internal/engine"
	"github.com/jordanhubbard/venueflow/internal/store"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

// Engine is the slice of the dispatcher the manager needs: applying a
// decision re-enters the dispatch loop for the owning conversation.
type Engine interface {
	ResumeApproved(ctx context.Context, conversationID, taskID string) (*engine.Reply, error)
	RejectDraft(ctx context.Context, conversationID, taskID, notes string) (*engine.Reply, error)
}

// Task is one pending approval, flattened for listing.
type Task struct {
	ConversationID string            `json:"conversation_id"`
	Request        models.HilRequest `json:"request"`
}

// Manager resolves task ids to conversations and applies decisions.
type Manager struct {
	store  store.Store
	engine Engine
}

// NewManager wires the task queue over the store and dispatcher.
func NewManager(st store.Store, eng Engine) *Manager {
	return &Manager{store: st, engine: eng}
}

// List returns all pending tasks, oldest first.
func (m *Manager) List(ctx context.Context) ([]Task, error) {
	conversations, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	var tasks []Task
	for _, c := range conversations {
		for _, req := range c.PendingHil {
			tasks = append(tasks, Task{ConversationID: c.ID, Request: req})
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].Request.CreatedAt.Before(tasks[j].Request.CreatedAt)
	})
	return tasks, nil
}

// Approve releases the parked draft: the producing stage's output path runs
// without re-running the stage itself.
func (m *Manager) Approve(ctx context.Context, taskID string) (*engine.Reply, error) {
	convID, err := m.store.FindHilTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("hil task %s: %w", taskID, err)
	}
	log.Printf("[HIL] Approving task %s on conversation %s", taskID, convID)
	return m.engine.ResumeApproved(ctx, convID, taskID)
}

// Reject discards the draft and records the manager's notes for the rebuild.
func (m *Manager) Reject(ctx context.Context, taskID, notes string) (*engine.Reply, error) {
	convID, err := m.store.FindHilTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("hil task %s: %w", taskID, err)
	}
	log.Printf("[HIL] Rejecting task %s on conversation %s", taskID, convID)
	return m.engine.RejectDraft(ctx, convID, taskID, notes)
}
