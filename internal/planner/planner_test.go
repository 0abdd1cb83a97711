package planner

import (
	"testing"

	"github.com/jordanhubbard/venueflow/pkg/models"
)

func TestIntentsApplyInDependencyOrder(t *testing.T) {
	state := models.NewConversationState("conv-1")
	state.LockedRoomID = "" // no room yet

	p := New(nil)
	// Message order puts the product first; the room selection must still be
	// processed before it.
	out := p.Apply(state, []models.Intent{
		{Kind: models.IntentProductAdd, ProductSKU: "coffee", Quantity: 30},
		{Kind: models.IntentDateConfirm, Date: "2026-10-02"},
		{Kind: models.IntentRoomSelect, RoomID: "room-b"},
	})

	if !state.DateConfirmed || state.ChosenDate != "2026-10-02" {
		t.Errorf("date intent not applied: %+v", state)
	}
	if state.Facts["requested_room_id"] != "room-b" {
		t.Errorf("room selection not recorded: %v", state.Facts)
	}

	// The product needs a locked room, which only the availability stage can
	// establish; it must be deferred, not dropped.
	if len(out.Deferred) != 1 {
		t.Fatalf("expected one deferred intent, got %d", len(out.Deferred))
	}
	if out.Deferred[0].Intent == nil || out.Deferred[0].Intent.ProductSKU != "coffee" {
		t.Errorf("deferred question should carry the product intent: %+v", out.Deferred[0])
	}
	if len(state.Products.Items) != 0 {
		t.Errorf("product must not attach before a room is locked: %+v", state.Products.Items)
	}
}

func TestDeferredIntentReplaysWhenPrerequisiteArrives(t *testing.T) {
	state := models.NewConversationState("conv-1")
	p := New(nil)

	p.Apply(state, []models.Intent{{Kind: models.IntentProductAdd, ProductSKU: "coffee", Quantity: 30}})
	if len(state.PendingQuestions) != 1 {
		t.Fatalf("expected queued question, got %d", len(state.PendingQuestions))
	}

	// The room gets locked by the availability stage; the next planning pass
	// must replay the parked product intent.
	state.LockedRoomID = "room-b"
	out := p.Apply(state, nil)

	if len(out.Applied) != 1 || out.Applied[0].ProductSKU != "coffee" {
		t.Fatalf("deferred intent not replayed: %+v", out.Applied)
	}
	if len(state.Products.Items) != 1 || state.Products.Items[0].Quantity != 30 {
		t.Errorf("replayed product not attached: %+v", state.Products.Items)
	}
	if len(state.PendingQuestions) != 0 {
		t.Errorf("answered question should be dequeued, got %+v", state.PendingQuestions)
	}
	if !state.OfferDirty {
		t.Error("attaching a product must mark the offer dirty")
	}
}

func TestBillingDeferredUntilOfferSent(t *testing.T) {
	state := models.NewConversationState("conv-1")
	p := New(nil)

	out := p.Apply(state, []models.Intent{{Kind: models.IntentBilling, BillingField: "vat_id", BillingValue: "DE123"}})
	if len(out.Deferred) != 1 {
		t.Fatalf("billing should defer before the offer is out, got %+v", out)
	}

	state.OfferSent = true
	out = p.Apply(state, nil)
	if len(out.Applied) != 1 {
		t.Fatalf("billing intent should replay after offer is sent, got %+v", out)
	}
	if state.Billing.Fields["vat_id"] != "DE123" {
		t.Errorf("billing field not captured: %v", state.Billing.Fields)
	}
}

func TestOneQuestionPerTurnByPriority(t *testing.T) {
	state := models.NewConversationState("conv-1")
	p := New(nil)

	// Both a room-dependent product and an early billing detail arrive at
	// once; two questions queue, one surfaces. Availability outranks billing.
	out := p.Apply(state, []models.Intent{
		{Kind: models.IntentBilling, BillingField: "company", BillingValue: "Acme"},
		{Kind: models.IntentProductAdd, ProductSKU: "projector", Quantity: 1},
	})

	if len(state.PendingQuestions) != 2 {
		t.Fatalf("expected two queued questions, got %d", len(state.PendingQuestions))
	}
	if out.Question == nil {
		t.Fatal("expected a surfaced question")
	}
	if out.Question.Topic != models.TopicAvailability {
		t.Errorf("expected availability question first, got %s", out.Question.Topic)
	}
}

func TestCustomQuestionPriority(t *testing.T) {
	state := models.NewConversationState("conv-1")
	p := New([]models.QuestionTopic{models.TopicBilling, models.TopicAvailability})

	out := p.Apply(state, []models.Intent{
		{Kind: models.IntentBilling, BillingField: "company", BillingValue: "Acme"},
		{Kind: models.IntentProductAdd, ProductSKU: "projector", Quantity: 1},
	})
	if out.Question == nil || out.Question.Topic != models.TopicBilling {
		t.Errorf("custom priority not honored: %+v", out.Question)
	}
}

func TestRequirementsIntentRefreshesHash(t *testing.T) {
	state := models.NewConversationState("conv-1")
	p := New(nil)

	p.Apply(state, []models.Intent{{
		Kind:         models.IntentRequirements,
		Participants: 60,
		Requirements: map[string]string{"layout": "banquet"},
	}})

	if state.Participants != 60 {
		t.Errorf("participants not applied: %d", state.Participants)
	}
	if state.Requirements["layout"] != "banquet" {
		t.Errorf("requirements not merged: %v", state.Requirements)
	}
	if state.RequirementsHash == "" {
		t.Error("requirements hash must be recomputed on update")
	}
}

func TestResolveQuestion(t *testing.T) {
	state := models.NewConversationState("conv-1")
	p := New(nil)

	out := p.Apply(state, []models.Intent{{Kind: models.IntentProductAdd, ProductSKU: "coffee", Quantity: 10}})
	if out.Question == nil {
		t.Fatal("expected a question")
	}
	p.ResolveQuestion(state, out.Question.ID)
	if len(state.PendingQuestions) != 0 {
		t.Errorf("resolved question should be removed, got %+v", state.PendingQuestions)
	}
}
