package stages

import (
	"context"
	"log"

	"github.com/jordanhubbard/venueflow/internal/engine"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

// IntakeHandler captures the initial event facts and moves the conversation
// into date confirmation once anything concrete has arrived.
type IntakeHandler struct {
	deps *Deps
}

func (h *IntakeHandler) Stage() models.Stage { return models.StageIntake }

func (h *IntakeHandler) Handle(_ context.Context, state *models.ConversationState, msg engine.Message) (models.StageResult, error) {
	out := h.deps.plan(state, msg)

	for k, v := range msg.Entities.ClientInfo {
		state.Facts[k] = v
	}

	if state.DateConfirmed {
		log.Printf("[Intake] Conversation %s: date already bound, moving to confirmation", state.ID)
		return models.StageResult{NextStage: models.StagePtr(models.StageDateConfirmation)}, nil
	}

	if out.Question != nil {
		return models.StageResult{
			Halt:        true,
			Draft:       out.Question.Prompt,
			ThreadState: models.ThreadAwaitClient,
		}, nil
	}

	return models.StageResult{
		Halt:        true,
		Draft:       "Thanks for reaching out! What date are you planning the event for, and roughly how many guests do you expect?",
		ThreadState: models.ThreadAwaitClient,
	}, nil
}
