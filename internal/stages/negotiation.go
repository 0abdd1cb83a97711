package stages

import (
	"context"
	"log"
	"regexp"

	"github.com/jordanhubbard/venueflow/internal/engine"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

var (
	acceptRe   = regexp.MustCompile(`(?i)\b(accept|we'll take it|sounds good|go ahead|book it|deal|confirmed?)\b`)
	discountRe = regexp.MustCompile(`(?i)(\d{1,2})\s?%|\bdiscount\b|\bcheaper\b|\bbetter price\b`)
)

// NegotiationHandler works the commercial terms after the offer is out:
// discount requests rebuild the offer, acceptance moves toward contract
// signing once billing details are on file.
type NegotiationHandler struct {
	deps *Deps
}

func (h *NegotiationHandler) Stage() models.Stage { return models.StageNegotiation }

func (h *NegotiationHandler) Handle(_ context.Context, state *models.ConversationState, msg engine.Message) (models.StageResult, error) {
	h.deps.plan(state, msg)

	if acceptRe.MatchString(msg.Text) {
		state.OfferAccepted = true

		if len(state.Billing.Fields) == 0 {
			state.Billing.AwaitingBillingForAccept = true
			log.Printf("[Negotiation] Conversation %s: offer accepted, billing details missing", state.ID)
			return models.StageResult{
				Halt:        true,
				Draft:       "Wonderful! To finalize the booking I need your billing details: company name, address and VAT ID if applicable.",
				ThreadState: models.ThreadAwaitClient,
			}, nil
		}

		state.Billing.AwaitingBillingForAccept = false
		log.Printf("[Negotiation] Conversation %s: offer accepted, moving to contract", state.ID)
		return models.StageResult{NextStage: models.StagePtr(models.StageTransition)}, nil
	}

	if state.Billing.AwaitingBillingForAccept && len(msg.Entities.BillingFields) > 0 {
		// The planner already captured the fields; acceptance was recorded on
		// the earlier turn.
		state.Billing.AwaitingBillingForAccept = false
		return models.StageResult{NextStage: models.StagePtr(models.StageTransition)}, nil
	}

	if m := discountRe.FindStringSubmatch(msg.Text); m != nil {
		if state.Facts == nil {
			state.Facts = make(map[string]string)
		}
		if m[1] != "" {
			state.Facts["discount"] = m[1] + "%"
		} else {
			state.Facts["discount_requested"] = "true"
		}
		state.OfferDirty = true
		log.Printf("[Negotiation] Conversation %s: commercial revision requested, offer marked dirty", state.ID)
		return models.StageResult{NextStage: models.StagePtr(models.StageOffer)}, nil
	}

	return models.StageResult{
		Halt:        true,
		Draft:       "Is there anything about the offer you'd like to adjust, or shall we move ahead?",
		ThreadState: models.ThreadAwaitClient,
	}, nil
}
