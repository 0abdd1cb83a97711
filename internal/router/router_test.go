package router

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/jordanhubbard/venueflow/internal/hashguard"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

func auditID() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("audit-%d", n)
	}
}

func lockedState() *models.ConversationState {
	c := models.NewConversationState("conv-1")
	c.CurrentStage = models.StageOffer
	c.DateConfirmed = true
	c.ChosenDate = "2026-03-15"
	c.LockedRoomID = "room-a"
	c.Participants = 30
	c.Requirements = map[string]string{"layout": "theater"}
	c.RequirementsHash = hashguard.Requirements(c.Requirements, c.Participants)
	c.RoomEvalHash = c.RequirementsHash
	return c
}

// A date change from stage 4 detours to stage 2, preserves the caller,
// invalidates the room evaluation but keeps the room lock.
func TestRoute_DateChangeFromOffer(t *testing.T) {
	state := lockedState()

	dec := Route(state, models.ChangeDate, models.StageOffer)

	if dec.NextStage != models.StageDateConfirmation {
		t.Errorf("expected stage 2, got %v", dec.NextStage)
	}
	if dec.UpdatedCallerStage == nil || *dec.UpdatedCallerStage != models.StageOffer {
		t.Errorf("expected caller stage 4, got %v", dec.UpdatedCallerStage)
	}
	if !dec.Invalidate.RoomEvalHash || !dec.Invalidate.OfferHash {
		t.Error("date change must invalidate room evaluation and offer hashes")
	}
	if dec.Invalidate.DateConfirmed {
		t.Error("date change re-confirms the date at stage 2, it does not unset it in the decision")
	}

	Apply(state, dec, "date_change", auditID())
	if state.LockedRoomID != "room-a" {
		t.Error("room lock must be kept across a date change")
	}
	if state.RoomEvalHash != "" || state.OfferHash != "" {
		t.Error("hashes must be cleared")
	}
	if !state.OfferDirty {
		t.Error("offer must be marked dirty when its hash is invalidated")
	}
	if state.CurrentStage != models.StageDateConfirmation {
		t.Errorf("expected current stage 2, got %v", state.CurrentStage)
	}
	if caller, ok := state.Caller(); !ok || caller != models.StageOffer {
		t.Errorf("expected caller stage 4, got %v ok=%v", caller, ok)
	}
}

// A date change opens a detour with the right return address no matter which
// stage it arrives at.
func TestRoute_DateChangePreservesCallerFromAnyStage(t *testing.T) {
	for from := models.StageRoomAvailability; from <= models.StageConfirmation; from++ {
		state := lockedState()
		state.CurrentStage = from

		dec := Route(state, models.ChangeDate, from)
		if dec.NextStage != models.StageDateConfirmation {
			t.Errorf("from %v: expected stage 2, got %v", from, dec.NextStage)
		}
		if dec.UpdatedCallerStage == nil || *dec.UpdatedCallerStage != from {
			t.Errorf("from %v: expected caller %v, got %v", from, from, dec.UpdatedCallerStage)
		}
	}
}

// Tie-break: a change targeting the stage it arrived from never opens a
// detour pointing at itself.
func TestRoute_NoSelfDetour(t *testing.T) {
	state := lockedState()
	state.CurrentStage = models.StageDateConfirmation

	dec := Route(state, models.ChangeDate, models.StageDateConfirmation)
	if dec.UpdatedCallerStage != nil {
		t.Errorf("expected no caller update, got %v", *dec.UpdatedCallerStage)
	}

	Apply(state, dec, "date_change", auditID())
	if state.CallerStage != nil {
		t.Error("caller stage must never point at the current stage")
	}
}

// First detour's return address wins when a second change arrives before the
// first detour resolves.
func TestRoute_PendingDetourCallerWins(t *testing.T) {
	state := lockedState()
	state.CurrentStage = models.StageDateConfirmation
	state.SetCaller(models.StageNegotiation) // unresolved detour from stage 5

	dec := Route(state, models.ChangeRoom, models.StageDateConfirmation)
	if dec.UpdatedCallerStage == nil || *dec.UpdatedCallerStage != models.StageNegotiation {
		t.Errorf("expected preserved caller 5, got %v", dec.UpdatedCallerStage)
	}

	Apply(state, dec, "room_change", auditID())
	if caller, ok := state.Caller(); !ok || caller != models.StageNegotiation {
		t.Errorf("expected caller 5 after apply, got %v ok=%v", caller, ok)
	}
}

// A requirements change fast-skips when the hashes still match, detours to
// stage 3 otherwise.
func TestRoute_RequirementsFastSkip(t *testing.T) {
	state := lockedState()

	dec := Route(state, models.ChangeRequirements, models.StageOffer)
	if dec.NextStage != models.StageOffer {
		t.Errorf("expected fast-skip at stage 4, got %v", dec.NextStage)
	}
	if dec.SkipReason != SkipRequirementsSame {
		t.Errorf("expected skip reason %q, got %q", SkipRequirementsSame, dec.SkipReason)
	}
	if dec.Invalidate.Any() {
		t.Error("fast-skip must not invalidate anything")
	}
}

func TestRoute_RequirementsChangedDetours(t *testing.T) {
	state := lockedState()
	state.Requirements["layout"] = "banquet" // hash now stale

	dec := Route(state, models.ChangeRequirements, models.StageOffer)
	if dec.NextStage != models.StageRoomAvailability {
		t.Errorf("expected stage 3, got %v", dec.NextStage)
	}
	if !dec.Invalidate.RoomEvalHash {
		t.Error("non-skip path must invalidate the room evaluation hash")
	}
	if dec.Invalidate.OfferHash {
		t.Error("requirements change does not clear the offer hash directly")
	}
}

func TestRoute_ProductsStaysInFlow(t *testing.T) {
	state := lockedState()

	dec := Route(state, models.ChangeProducts, models.StageOffer)
	if dec.NextStage != models.StageOffer {
		t.Errorf("expected stage 4, got %v", dec.NextStage)
	}
	if dec.UpdatedCallerStage != nil {
		t.Error("products change must not open a detour")
	}
	if !dec.NeedsReeval {
		t.Error("products change must require an offer rebuild")
	}
	if dec.Invalidate.Any() {
		t.Error("products are additive, no hash invalidation")
	}

	Apply(state, dec, "products_change", auditID())
	if !state.OfferDirty {
		t.Error("offer must be marked dirty")
	}
}

func TestRoute_ProductsFromLaterStage(t *testing.T) {
	state := lockedState()
	state.CurrentStage = models.StageNegotiation

	dec := Route(state, models.ChangeProducts, models.StageNegotiation)
	if dec.NextStage != models.StageOffer {
		t.Errorf("expected stage 4, got %v", dec.NextStage)
	}
	if dec.UpdatedCallerStage != nil {
		t.Error("products change must not preserve a caller")
	}
}

func TestRoute_CommercialAndConfirmationKinds(t *testing.T) {
	state := lockedState()
	state.CurrentStage = models.StageConfirmation

	if dec := Route(state, models.ChangeCommercial, models.StageConfirmation); dec.NextStage != models.StageNegotiation {
		t.Errorf("commercial: expected stage 5, got %v", dec.NextStage)
	}
	if dec := Route(state, models.ChangeDeposit, models.StageConfirmation); dec.NextStage != models.StageConfirmation {
		t.Errorf("deposit: expected stage 7, got %v", dec.NextStage)
	}
	if dec := Route(state, models.ChangeSiteVisit, models.StageConfirmation); dec.NextStage != models.StageConfirmation {
		t.Errorf("site visit: expected stage 7, got %v", dec.NextStage)
	}
}

// No change detected means no transition and no audit entry.
func TestRoute_NoneIsNoOp(t *testing.T) {
	state := lockedState()
	state.CurrentStage = models.StageNegotiation

	dec := Route(state, models.ChangeNone, models.StageNegotiation)
	if dec.NextStage != models.StageNegotiation || dec.SkipReason != SkipNoChange {
		t.Errorf("expected in-place no-op, got %+v", dec)
	}

	moved := Apply(state, dec, "none", auditID())
	if moved {
		t.Error("no-op decision must not transition")
	}
	if len(state.AuditTrail) != 0 {
		t.Error("no-op decision must not append audit entries")
	}
}

// Routing the same change twice without intervening mutation yields the same
// decision.
func TestRoute_Idempotent(t *testing.T) {
	state := lockedState()

	a := Route(state, models.ChangeDate, models.StageOffer)
	b := Route(state, models.ChangeDate, models.StageOffer)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("routing is not idempotent: %+v vs %+v", a, b)
	}
}

func TestApply_AppendsAudit(t *testing.T) {
	state := lockedState()
	dec := Route(state, models.ChangeDate, models.StageOffer)

	Apply(state, dec, "date_change", auditID())
	if len(state.AuditTrail) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(state.AuditTrail))
	}
	e := state.AuditTrail[0]
	if e.FromStage != models.StageOffer || e.ToStage != models.StageDateConfirmation {
		t.Errorf("unexpected audit transition %v -> %v", e.FromStage, e.ToStage)
	}
	if e.Reason != "date_change" {
		t.Errorf("unexpected audit reason %q", e.Reason)
	}
}
