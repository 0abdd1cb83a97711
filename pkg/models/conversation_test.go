package models

import "testing"

func TestNewConversationState(t *testing.T) {
	c := NewConversationState("conv-1")
	if c.CurrentStage != StageIntake {
		t.Errorf("expected intake stage, got %v", c.CurrentStage)
	}
	if c.ThreadState != ThreadInProgress {
		t.Errorf("expected in_progress, got %s", c.ThreadState)
	}
	if c.CallerStage != nil {
		t.Error("new conversation should have no caller stage")
	}
}

func TestSetCaller_FirstDetourWins(t *testing.T) {
	c := NewConversationState("conv-1")
	c.CurrentStage = StageDateConfirmation

	c.SetCaller(StageOffer)
	c.SetCaller(StageNegotiation) // second detour must not overwrite

	caller, ok := c.Caller()
	if !ok {
		t.Fatal("expected caller stage to be set")
	}
	if caller != StageOffer {
		t.Errorf("expected caller %v, got %v", StageOffer, caller)
	}
}

func TestSetCaller_NeverSelf(t *testing.T) {
	c := NewConversationState("conv-1")
	c.CurrentStage = StageOffer
	c.SetCaller(StageOffer)
	if c.CallerStage != nil {
		t.Error("caller stage must never point at the current stage")
	}
}

func TestRoomValid(t *testing.T) {
	c := NewConversationState("conv-1")
	if c.RoomValid() {
		t.Error("no room locked, should not be valid")
	}

	c.LockedRoomID = "room-a"
	c.RequirementsHash = "h1"
	c.RoomEvalHash = "h1"
	if !c.RoomValid() {
		t.Error("matching hashes with locked room should be valid")
	}

	c.RequirementsHash = "h2"
	if c.RoomValid() {
		t.Error("hash mismatch should invalidate the room")
	}
}

func TestRemoveHil(t *testing.T) {
	c := NewConversationState("conv-1")
	c.PendingHil = []HilRequest{
		{TaskID: "t1", Stage: StageOffer},
		{TaskID: "t2", Stage: StageTransition},
	}

	c.RemoveHil("t1")
	if len(c.PendingHil) != 1 || c.PendingHil[0].TaskID != "t2" {
		t.Errorf("expected only t2 left, got %+v", c.PendingHil)
	}

	c.RemoveHil("missing")
	if len(c.PendingHil) != 1 {
		t.Error("removing a missing task should be a no-op")
	}
}

func TestClone_Independent(t *testing.T) {
	c := NewConversationState("conv-1")
	c.Requirements["layout"] = "theater"
	c.SetCaller(StageOffer)
	c.PendingHil = []HilRequest{{TaskID: "t1", Stage: StageOffer}}

	cp := c.Clone()
	cp.Requirements["layout"] = "banquet"
	cp.ClearCaller()
	cp.PendingHil[0].TaskID = "changed"

	if c.Requirements["layout"] != "theater" {
		t.Error("clone mutation leaked into requirements")
	}
	if c.CallerStage == nil {
		t.Error("clone mutation leaked into caller stage")
	}
	if c.PendingHil[0].TaskID != "t1" {
		t.Error("clone mutation leaked into pending HIL list")
	}
}

func TestDependencyRank_Order(t *testing.T) {
	order := []IntentKind{IntentDateConfirm, IntentRoomSelect, IntentRequirements, IntentProductAdd, IntentBilling}
	for i := 1; i < len(order); i++ {
		if order[i-1].DependencyRank() >= order[i].DependencyRank() {
			t.Errorf("%s should rank before %s", order[i-1], order[i])
		}
	}
}
