package stages

import (
	"context"
	"fmt"
	"log"

	"github.com/jordanhubbard/venueflow/internal/engine"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

// DateConfirmationHandler establishes the event date. It always forwards
// through room availability once a date is bound: a fresh date invalidates
// the room evaluation, and the availability stage decides in one hop whether
// the existing lock survives.
type DateConfirmationHandler struct {
	deps *Deps
}

func (h *DateConfirmationHandler) Stage() models.Stage { return models.StageDateConfirmation }

func (h *DateConfirmationHandler) Handle(_ context.Context, state *models.ConversationState, msg engine.Message) (models.StageResult, error) {
	h.deps.plan(state, msg)

	if !state.DateConfirmed && msg.Entities.Date != "" {
		state.ChosenDate = msg.Entities.Date
		state.DateConfirmed = true
	}

	if !state.DateConfirmed {
		return models.StageResult{
			Halt:        true,
			Draft:       "Which date should we plan for? A specific day lets me check room availability right away.",
			ThreadState: models.ThreadAwaitClient,
		}, nil
	}

	log.Printf("[DateConfirmation] Conversation %s: date %s confirmed", state.ID, state.ChosenDate)
	return models.StageResult{NextStage: models.StagePtr(models.StageRoomAvailability)}, nil
}

func dateSummary(state *models.ConversationState) string {
	return fmt.Sprintf("%s for %d guests", state.ChosenDate, state.Participants)
}
