package messages

import (
	"testing"

	"github.com/jordanhubbard/venueflow/internal/classify"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

func TestMessageReceived(t *testing.T) {
	msg := MessageReceived("msg-1", "conv-1", "hello", classify.Entities{Date: "2026-09-12"}, "corr-1")
	if msg.Type != "message.received" {
		t.Errorf("wrong type: %s", msg.Type)
	}
	if msg.ConversationID != "conv-1" || msg.Entities.Date != "2026-09-12" {
		t.Errorf("fields not set: %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestDraftReleased(t *testing.T) {
	draft := DraftReleased("conv-1", models.StageOffer, "your offer", models.ThreadAwaitClient, "corr-1")
	if draft.Type != "draft.released" {
		t.Errorf("wrong type: %s", draft.Type)
	}
	if draft.Stage != models.StageOffer || draft.Draft != "your offer" {
		t.Errorf("fields not set: %+v", draft)
	}
}

func TestHilDecisions(t *testing.T) {
	approved := HilApproved("task-1", "manager")
	if approved.Type != "hil.approved" || approved.TaskID != "task-1" {
		t.Errorf("bad approval: %+v", approved)
	}

	rejected := HilRejected("task-1", "manager", "redo the pricing")
	if rejected.Type != "hil.rejected" || rejected.Notes != "redo the pricing" {
		t.Errorf("bad rejection: %+v", rejected)
	}
}
