package stages

import (
	"context"
	"log"
	"regexp"

	"github.com/jordanhubbard/venueflow/internal/engine"
	"github.com/jordanhubbard/venueflow/internal/telemetry"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

var (
	depositPaidRe = regexp.MustCompile(`(?i)\b(deposit|payment|transfer)\b.*\b(paid|sent|done|transferred|wired)\b|\b(paid|sent|transferred|wired)\b.*\b(deposit|payment)\b`)
	siteVisitRe   = regexp.MustCompile(`(?i)\b(site visit|viewing|walkthrough|see the (room|venue|space)|come by|visit the venue)\b`)
)

// ConfirmationHandler runs post-signature logistics: deposit tracking and
// site visit scheduling. The conversation stays here until the deposit
// arrives; deposit and site visit changes detected later in life route back
// here as well.
type ConfirmationHandler struct {
	deps *Deps
}

func (h *ConfirmationHandler) Stage() models.Stage { return models.StageConfirmation }

func (h *ConfirmationHandler) Handle(ctx context.Context, state *models.ConversationState, msg engine.Message) (models.StageResult, error) {
	h.deps.plan(state, msg)

	if siteVisitRe.MatchString(msg.Text) {
		if msg.Entities.Date != "" {
			state.SiteVisitAt = msg.Entities.Date
			log.Printf("[Confirmation] Conversation %s: site visit scheduled for %s", state.ID, state.SiteVisitAt)
			return models.StageResult{
				Halt:        true,
				Draft:       "Noted, we'll expect you for the site visit on " + state.SiteVisitAt + ". Looking forward to it!",
				ThreadState: models.ThreadAwaitClient,
			}, nil
		}
		return models.StageResult{
			Halt:        true,
			Draft:       "Happy to show you around! Which day suits you for a site visit?",
			ThreadState: models.ThreadAwaitClient,
		}, nil
	}

	if !state.DepositPaid && depositPaidRe.MatchString(msg.Text) {
		state.DepositPaid = true
		if state.TransitionSigned {
			telemetry.BookingsConfirmed.Add(ctx, 1)
		}
		log.Printf("[Confirmation] Conversation %s: deposit received", state.ID)
	}

	if state.DepositPaid {
		return models.StageResult{
			Halt:        true,
			Draft:       "Everything is set: contract signed and deposit received. See you on " + state.ChosenDate + "!",
			ThreadState: models.ThreadAwaitClient,
		}, nil
	}

	return models.StageResult{
		Halt:        true,
		Draft:       "To lock everything in we just need the deposit. You'll find the payment details on the contract.",
		ThreadState: models.ThreadAwaitClient,
	}, nil
}
