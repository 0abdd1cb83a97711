package classify

import (
	"sort"

	"github.com/jordanhubbard/venueflow/pkg/models"
)

// IntentParser turns one message (plus its extracted entities) into the typed
// intent list the shortcut planner applies. Like the change classifier, the
// extraction itself is an external concern; this boundary only shapes bound
// entities into intents.
type IntentParser interface {
	ParseIntents(state *models.ConversationState, message string, ents Entities) []models.Intent
}

// EntityIntentParser derives intents directly from extracted entities.
// A single message may yield several intents; the planner orders them by the
// fact dependency graph, not by their position in the message.
type EntityIntentParser struct{}

// NewEntityIntentParser returns the entity-driven intent parser.
func NewEntityIntentParser() *EntityIntentParser {
	return &EntityIntentParser{}
}

// ParseIntents implements IntentParser.
func (p *EntityIntentParser) ParseIntents(state *models.ConversationState, _ string, ents Entities) []models.Intent {
	var intents []models.Intent

	if ents.Date != "" {
		intents = append(intents, models.Intent{Kind: models.IntentDateConfirm, Date: ents.Date})
	}
	if ents.RoomID != "" {
		intents = append(intents, models.Intent{Kind: models.IntentRoomSelect, RoomID: ents.RoomID})
	}
	if ents.Participants > 0 || len(ents.Requirements) > 0 {
		intents = append(intents, models.Intent{
			Kind:         models.IntentRequirements,
			Participants: ents.Participants,
			Requirements: ents.Requirements,
		})
	}
	for _, pm := range ents.Products {
		qty := pm.Quantity
		if qty == 0 {
			qty = participantsOrDefault(state, ents)
		}
		intents = append(intents, models.Intent{Kind: models.IntentProductAdd, ProductSKU: pm.SKU, Quantity: qty})
	}
	if len(ents.BillingFields) > 0 {
		// Deterministic order for reproducible planning.
		fields := make([]string, 0, len(ents.BillingFields))
		for k := range ents.BillingFields {
			fields = append(fields, k)
		}
		sort.Strings(fields)
		for _, k := range fields {
			intents = append(intents, models.Intent{Kind: models.IntentBilling, BillingField: k, BillingValue: ents.BillingFields[k]})
		}
	}

	return intents
}

func participantsOrDefault(state *models.ConversationState, ents Entities) int {
	if ents.Participants > 0 {
		return ents.Participants
	}
	if state != nil && state.Participants > 0 {
		return state.Participants
	}
	return 1
}
