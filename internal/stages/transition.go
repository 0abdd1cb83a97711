package stages

import (
	"context"
	"fmt"
	"log"

	"github.com/jordanhubbard/venueflow/internal/engine"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

// TransitionHandler turns the accepted offer into a contract. The contract
// draft goes through manager sign-off; approval marks the booking signed and
// hands over to confirmation for deposit and logistics.
type TransitionHandler struct {
	deps *Deps
}

func (h *TransitionHandler) Stage() models.Stage { return models.StageTransition }

func (h *TransitionHandler) Handle(_ context.Context, state *models.ConversationState, msg engine.Message) (models.StageResult, error) {
	h.deps.plan(state, msg)

	if pendingHilFor(state, models.StageTransition) {
		return models.StageResult{
			Halt:        true,
			Draft:       "The contract is in final review on our side; I'll confirm as soon as it's signed off.",
			ThreadState: models.ThreadWaitingOnHIL,
		}, nil
	}

	if state.TransitionSigned {
		return models.StageResult{NextStage: models.StagePtr(models.StageConfirmation)}, nil
	}

	if !state.OfferAccepted {
		// Reached without acceptance (e.g. an out-of-order message); the
		// negotiation stage owns that conversation.
		return models.StageResult{NextStage: models.StagePtr(models.StageNegotiation)}, nil
	}

	draft := fmt.Sprintf(
		"Booking confirmation for %s on %s.\nBilled to: %s\nPlease review; on sign-off the contract goes out to the client.",
		state.LockedRoomID, state.ChosenDate, billingSummary(state),
	)
	log.Printf("[Transition] Conversation %s: contract drafted, parking for sign-off", state.ID)
	return models.StageResult{
		HilRequest: &models.HilRequest{Stage: models.StageTransition, Draft: draft},
	}, nil
}

// Resume applies the manager's sign-off: the booking is legally fixed and the
// loop continues into confirmation for deposit instructions.
func (h *TransitionHandler) Resume(state *models.ConversationState, _ models.HilRequest) models.StageResult {
	state.TransitionSigned = true
	log.Printf("[Transition] Conversation %s: contract signed off", state.ID)
	return models.StageResult{NextStage: models.StagePtr(models.StageConfirmation)}
}

func billingSummary(state *models.ConversationState) string {
	if company := state.Billing.Fields["company"]; company != "" {
		return company
	}
	return "details on file"
}
