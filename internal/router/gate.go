package router

import (
	"strconv"
	"time"

	"github.com/jordanhubbard/venueflow/internal/hashguard"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

// Gate identifiers, in evaluation order. The first failing gate wins and
// determines the detour target.
const (
	GateP1Date     = "P1"
	GateP2Room     = "P2"
	GateP3Capacity = "P3"
	GateP4Products = "P4"
)

// ProductsReadyFunc is the external predicate deciding whether product
// selection is complete enough to price an offer.
type ProductsReadyFunc func(state *models.ConversationState) bool

// GateResult reports the outcome of the precondition gate in front of the
// offer stage.
type GateResult struct {
	OK         bool
	FailedGate string // P1..P4, empty when OK

	// DetourStage is the stage that re-establishes the failed fact. Zero for
	// P4, which waits in place instead of detouring.
	DetourStage models.Stage

	// SilentWait marks the P4 path: the client is asked for product
	// preferences in place, without a stage transition.
	SilentWait bool

	Reason string
}

// CheckPreconditions evaluates P1-P4 on entry to the offer stage, in strict
// order. The order reflects the fact DAG: a room capacity check is
// meaningless without a date, and product pricing needs a locked room.
func CheckPreconditions(state *models.ConversationState, productsReady ProductsReadyFunc) GateResult {
	// P1: a confirmed event date.
	if !state.DateConfirmed {
		return GateResult{
			FailedGate:  GateP1Date,
			DetourStage: models.StageDateConfirmation,
			Reason:      "date not confirmed",
		}
	}

	// P2: a locked room whose evaluation still covers the requirements.
	currentReq := hashguard.Requirements(state.Requirements, state.Participants)
	if state.LockedRoomID == "" || !hashguard.Matches(state.RoomEvalHash, currentReq) {
		return GateResult{
			FailedGate:  GateP2Room,
			DetourStage: models.StageRoomAvailability,
			Reason:      "room not locked or stale for current requirements",
		}
	}

	// P3: a positive participant count, resolvable from state, requirements,
	// or captured facts.
	if ResolveParticipants(state) <= 0 {
		return GateResult{
			FailedGate:  GateP3Capacity,
			DetourStage: models.StageRoomAvailability,
			Reason:      "participant count unknown",
		}
	}

	// P4: product selection complete. Failure waits in place; the offer
	// stage prompts for preferences instead of detouring.
	if productsReady != nil && !productsReady(state) {
		return GateResult{
			FailedGate: GateP4Products,
			SilentWait: true,
			Reason:     "awaiting product preferences",
		}
	}

	return GateResult{OK: true}
}

// ResolveParticipants returns the participant count from the first source
// that knows it: explicit state, the requirements map, then captured facts.
func ResolveParticipants(state *models.ConversationState) int {
	if state.Participants > 0 {
		return state.Participants
	}
	for _, src := range []map[string]string{state.Requirements, state.Facts} {
		if v, ok := src["participants"]; ok {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
