// Package stages implements the seven stage handlers of the booking workflow.
// Handlers mutate the working state copy handed to them by the dispatch loop
// and report back how the loop should continue: halt with a client draft,
// park a draft for approval, or forward to another stage.
package stages

import (
	"github.com/jordanhubbard/venueflow/internal/classify"
	"github.com/jordanhubbard/venueflow/internal/engine"
	"github.com/jordanhubbard/venueflow/internal/metrics"
	"github.com/jordanhubbard/venueflow/internal/planner"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

// Deps bundles the collaborators shared by the stage handlers.
type Deps struct {
	Calendar Calendar
	Rooms    RoomCatalog
	Products ProductCatalog
	Planner  *planner.Planner
	Intents  classify.IntentParser
	Metrics  *metrics.Metrics
}

// NewHandlers builds the complete handler set for the registry.
func NewHandlers(deps *Deps) []engine.Handler {
	return []engine.Handler{
		&IntakeHandler{deps: deps},
		&DateConfirmationHandler{deps: deps},
		&RoomAvailabilityHandler{deps: deps},
		&OfferHandler{deps: deps},
		&NegotiationHandler{deps: deps},
		&TransitionHandler{deps: deps},
		&ConfirmationHandler{deps: deps},
	}
}

// pendingHilFor reports whether a draft from the given stage is already parked
// for approval. Stages that park drafts hold instead of parking a second copy.
func pendingHilFor(state *models.ConversationState, stage models.Stage) bool {
	for _, req := range state.PendingHil {
		if req.Stage == stage && req.Status == models.HilPending {
			return true
		}
	}
	return false
}

// plan applies the message's intents exactly once per message, no matter how
// many stage handlers the loop visits for it. The marker keeps a detour chain
// from attaching the same product twice.
func (d *Deps) plan(state *models.ConversationState, msg engine.Message) planner.Outcome {
	if msg.ID != "" && state.Facts["last_planned_message"] == msg.ID {
		return planner.Outcome{Question: d.Planner.NextQuestion(state)}
	}

	intents := msg.Intents
	if len(intents) == 0 && d.Intents != nil {
		intents = d.Intents.ParseIntents(state, msg.Text, msg.Entities)
	}
	out := d.Planner.Apply(state, intents)

	if state.Facts == nil {
		state.Facts = make(map[string]string)
	}
	if msg.ID != "" {
		state.Facts["last_planned_message"] = msg.ID
	}
	return out
}
