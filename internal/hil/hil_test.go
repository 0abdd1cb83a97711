package hil

import (
	"context"
	"testing"
	"time"

	"github.com/jordanhubbard/venueflow/internal/engine"
	"github.com/jordanhubbard/venueflow/internal/store"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

type fakeEngine struct {
	approved []string
	rejected []string
	notes    string
}

func (f *fakeEngine) ResumeApproved(_ context.Context, conversationID, taskID string) (*engine.Reply, error) {
	f.approved = append(f.approved, conversationID+"/"+taskID)
	return &engine.Reply{ConversationID: conversationID}, nil
}

func (f *fakeEngine) RejectDraft(_ context.Context, conversationID, taskID, notes string) (*engine.Reply, error) {
	f.rejected = append(f.rejected, conversationID+"/"+taskID)
	f.notes = notes
	return &engine.Reply{ConversationID: conversationID}, nil
}

func seed(t *testing.T, st store.Store, convID, taskID string, createdAt time.Time) {
	t.Helper()
	state := models.NewConversationState(convID)
	state.PendingHil = append(state.PendingHil, models.HilRequest{
		TaskID:    taskID,
		Stage:     models.StageOffer,
		Draft:     "draft",
		Status:    models.HilPending,
		CreatedAt: createdAt,
	})
	if err := st.Save(context.Background(), state); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
}

func TestListOrdersOldestFirst(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	seed(t, st, "conv-b", "task-2", now)
	seed(t, st, "conv-a", "task-1", now.Add(-time.Hour))

	m := NewManager(st, &fakeEngine{})
	tasks, err := m.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Request.TaskID != "task-1" {
		t.Errorf("expected oldest task first, got %s", tasks[0].Request.TaskID)
	}
}

func TestApproveResolvesConversation(t *testing.T) {
	st := store.NewMemoryStore()
	seed(t, st, "conv-a", "task-1", time.Now().UTC())

	eng := &fakeEngine{}
	m := NewManager(st, eng)

	if _, err := m.Approve(context.Background(), "task-1"); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if len(eng.approved) != 1 || eng.approved[0] != "conv-a/task-1" {
		t.Errorf("wrong resume call: %v", eng.approved)
	}
}

func TestRejectCarriesNotes(t *testing.T) {
	st := store.NewMemoryStore()
	seed(t, st, "conv-a", "task-1", time.Now().UTC())

	eng := &fakeEngine{}
	m := NewManager(st, eng)

	if _, err := m.Reject(context.Background(), "task-1", "quote the weekend rate"); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if eng.notes != "quote the weekend rate" {
		t.Errorf("notes not forwarded: %q", eng.notes)
	}
}

func TestUnknownTask(t *testing.T) {
	m := NewManager(store.NewMemoryStore(), &fakeEngine{})
	if _, err := m.Approve(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown task")
	}
}
