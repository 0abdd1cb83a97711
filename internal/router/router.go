// Package router holds the pure routing core: the fixed DAG routing table
// that maps a detected change onto the stage that re-validates it, and the
// precondition gate protecting offer synthesis. Both are total functions over
// the conversation state; they never raise and never touch I/O.
package router

import (
	"github.com/jordanhubbard/venueflow/internal/hashguard"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

// Skip reasons attached to decisions that do not re-enter a stage.
const (
	SkipNoChange         = "no_change"
	SkipRequirementsSame = "requirements_hash_match"
	SkipClientInfo       = "client_info_handled_in_place"
	SkipAlreadyThere     = "already_at_target"
)

// Route maps (current state, change kind, stage the change arrived at) to a
// routing decision. The table is fixed because later-stage artifacts are
// derived from earlier ones: a changed date can only be re-validated by the
// date stage, and everything downstream of it is stale by construction.
//
// Tie-break: when the target equals the from-stage the caller stage is left
// untouched, so a detour record can never point at itself. When a detour is
// already pending its return address wins over the new one; nested detours
// unwind to the first caller.
func Route(state *models.ConversationState, kind models.ChangeKind, fromStage models.Stage) models.RoutingDecision {
	switch kind {
	case models.ChangeDate:
		// The room lock itself is kept: stage 3 fast-skips if the room is
		// still available on the new date.
		return detour(state, fromStage, models.StageDateConfirmation, models.Invalidations{
			RoomEvalHash: true,
			OfferHash:    true,
		})

	case models.ChangeRoom:
		return detour(state, fromStage, models.StageRoomAvailability, models.Invalidations{
			RoomEvalHash: true,
		})

	case models.ChangeRequirements:
		current := hashguard.Requirements(state.Requirements, state.Participants)
		if hashguard.Matches(state.RoomEvalHash, current) {
			// The locked room still covers the updated requirements; no
			// re-evaluation needed.
			return models.RoutingDecision{
				NextStage:  fromStage,
				SkipReason: SkipRequirementsSame,
			}
		}
		return detour(state, fromStage, models.StageRoomAvailability, models.Invalidations{
			RoomEvalHash: true,
		})

	case models.ChangeProducts:
		// Products are additive: no hash is invalidated, but the offer must
		// be rebuilt before it goes out again.
		dec := models.RoutingDecision{
			NextStage:   models.StageOffer,
			NeedsReeval: true,
		}
		if fromStage == models.StageOffer {
			dec.SkipReason = SkipAlreadyThere
		}
		return dec

	case models.ChangeCommercial:
		return models.RoutingDecision{NextStage: models.StageNegotiation}

	case models.ChangeDeposit, models.ChangeSiteVisit:
		return models.RoutingDecision{NextStage: models.StageConfirmation}

	case models.ChangeClientInfo:
		// Contact detail updates are absorbed wherever the conversation is.
		return models.RoutingDecision{
			NextStage:  fromStage,
			SkipReason: SkipClientInfo,
		}
	}

	return models.RoutingDecision{
		NextStage:  fromStage,
		SkipReason: SkipNoChange,
	}
}

// detour builds a decision that moves backward to target while preserving the
// return address. An existing pending detour's caller is preserved unchanged.
func detour(state *models.ConversationState, fromStage, target models.Stage, inv models.Invalidations) models.RoutingDecision {
	dec := models.RoutingDecision{
		NextStage:  target,
		Invalidate: inv,
	}
	if existing, ok := state.Caller(); ok {
		dec.UpdatedCallerStage = models.StagePtr(existing)
		return dec
	}
	if target != fromStage {
		dec.UpdatedCallerStage = models.StagePtr(fromStage)
	}
	return dec
}

// Apply mutates the state according to a routing decision and appends an
// audit entry when the stage actually moves. It returns whether a transition
// happened.
func Apply(state *models.ConversationState, dec models.RoutingDecision, reason string, newAuditID func() string) bool {
	if dec.Invalidate.RoomEvalHash {
		state.RoomEvalHash = ""
	}
	if dec.Invalidate.OfferHash {
		state.OfferHash = ""
		state.OfferDirty = true
	}
	if dec.Invalidate.DateConfirmed {
		state.DateConfirmed = false
	}
	if dec.NeedsReeval {
		state.OfferDirty = true
	}

	if dec.NextStage == state.CurrentStage {
		return false
	}

	state.AuditTrail = append(state.AuditTrail, models.AuditEntry{
		ID:        newAuditID(),
		FromStage: state.CurrentStage,
		ToStage:   dec.NextStage,
		Reason:    reason,
		At:        nowUTC(),
	})
	state.CurrentStage = dec.NextStage

	// Caller is recorded after the move so the self-detour guard compares
	// against the detour target, not the stage we just left.
	if dec.UpdatedCallerStage != nil {
		state.SetCaller(*dec.UpdatedCallerStage)
	}
	return true
}
