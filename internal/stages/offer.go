package stages

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jordanhubbard/venueflow/internal/engine"
	"github.com/jordanhubbard/venueflow/internal/hashguard"
	"github.com/jordanhubbard/venueflow/internal/router"
	"github.com/jordanhubbard/venueflow/internal/telemetry"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

// maxProductPrompts bounds how often the client is asked for product
// preferences before the offer goes out without add-ons.
const maxProductPrompts = 1

// OfferHandler synthesizes the commercial offer. Entry is protected by the
// precondition gate: a missing date or a stale room lock detours to the stage
// that re-establishes the fact, a missing product selection waits in place.
// Finished drafts are parked for manager approval, never sent directly.
type OfferHandler struct {
	deps *Deps
}

func (h *OfferHandler) Stage() models.Stage { return models.StageOffer }

func (h *OfferHandler) Handle(ctx context.Context, state *models.ConversationState, msg engine.Message) (models.StageResult, error) {
	h.deps.plan(state, msg)

	// One parked draft at a time. Further client messages wait for the
	// manager's decision; any changes they carry were captured by the planner
	// and flow into the rebuild if the draft comes back rejected.
	if pendingHilFor(state, models.StageOffer) {
		return models.StageResult{
			Halt:        true,
			Draft:       "Your offer is with our venue manager for a final check; I'll send it over as soon as it's released.",
			ThreadState: models.ThreadWaitingOnHIL,
		}, nil
	}

	gate := router.CheckPreconditions(state, h.productsReady)
	if !gate.OK {
		h.deps.Metrics.GateFailures.WithLabelValues(gate.FailedGate).Inc()

		if gate.SilentWait {
			return h.promptForProducts(state), nil
		}

		log.Printf("[Offer] Conversation %s: precondition %s failed (%s), detouring to %s", state.ID, gate.FailedGate, gate.Reason, gate.DetourStage)
		state.SetCaller(models.StageOffer)
		return models.StageResult{NextStage: models.StagePtr(gate.DetourStage)}, nil
	}

	if state.OfferSent && !state.OfferDirty {
		return models.StageResult{
			Halt:        true,
			Draft:       "The offer is with you already. Happy to adjust anything, just let me know.",
			ThreadState: models.ThreadAwaitClient,
		}, nil
	}

	draft, hash, err := h.buildOffer(ctx, state)
	if err != nil {
		return models.StageResult{}, err
	}
	state.OfferHash = hash
	state.OfferDirty = false
	state.Products.AwaitingClientProducts = false
	telemetry.OffersDrafted.Add(ctx, 1)

	log.Printf("[Offer] Conversation %s: offer drafted (hash %.8s), parking for approval", state.ID, hash)
	return models.StageResult{
		HilRequest: &models.HilRequest{Stage: models.StageOffer, Draft: draft},
	}, nil
}

// Resume releases an approved offer draft to the client. The draft is sent
// exactly as approved; the synthesis above is not re-run.
func (h *OfferHandler) Resume(state *models.ConversationState, req models.HilRequest) models.StageResult {
	state.OfferSent = true
	state.ManagerNotes = ""
	return models.StageResult{
		Halt:        true,
		Draft:       req.Draft,
		ThreadState: models.ThreadAwaitClient,
	}
}

// productsReady gates offer synthesis on product selection. Selection counts
// as complete once products are attached, the client declined, or they have
// already been asked: the offer must not stall forever on add-ons.
func (h *OfferHandler) productsReady(state *models.ConversationState) bool {
	if len(state.Products.Items) > 0 {
		return true
	}
	return state.Products.PromptCount >= maxProductPrompts && !state.Products.AwaitingClientProducts
}

func (h *OfferHandler) promptForProducts(state *models.ConversationState) models.StageResult {
	state.Products.PromptCount++
	state.Products.AwaitingClientProducts = false

	draft := "Before I put the offer together: would you like catering or equipment with that?"
	if !state.Products.CateringTeaserShown {
		state.Products.CateringTeaserShown = true
		draft = "Almost there! Our kitchen does coffee breaks, lunch buffets and dinner menus; beamer and sound are available too. Should I include anything in the offer?"
	}
	log.Printf("[Offer] Conversation %s: waiting on product preferences (prompt %d)", state.ID, state.Products.PromptCount)

	return models.StageResult{
		Halt:        true,
		Draft:       draft,
		ThreadState: models.ThreadAwaitClient,
	}
}

// buildOffer prices the line items and renders the client-facing draft.
func (h *OfferHandler) buildOffer(ctx context.Context, state *models.ConversationState) (string, string, error) {
	room, ok, err := h.deps.Rooms.Room(ctx, state.LockedRoomID)
	if err != nil {
		return "", "", fmt.Errorf("room lookup %s: %w", state.LockedRoomID, err)
	}
	if !ok {
		return "", "", fmt.Errorf("locked room %s missing from catalog", state.LockedRoomID)
	}

	total := room.DayRate
	var lines []string
	lines = append(lines, fmt.Sprintf("%s on %s (%d guests): %s", room.Name, state.ChosenDate, router.ResolveParticipants(state), formatCents(room.DayRate)))

	for i := range state.Products.Items {
		item := &state.Products.Items[i]
		if item.UnitPrice == 0 || item.Name == "" {
			product, found, err := h.deps.Products.Product(ctx, item.SKU)
			if err != nil {
				return "", "", fmt.Errorf("product lookup %s: %w", item.SKU, err)
			}
			if found {
				item.UnitPrice = product.UnitPrice
				item.Name = product.Name
			} else {
				item.Name = item.SKU
			}
		}
		lineTotal := item.UnitPrice * int64(item.Quantity)
		total += lineTotal
		lines = append(lines, fmt.Sprintf("%s x%d: %s", item.Name, item.Quantity, formatCents(lineTotal)))
	}

	terms := map[string]string{}
	if d := state.Facts["discount"]; d != "" {
		terms["discount"] = d
		lines = append(lines, fmt.Sprintf("Agreed discount: %s", d))
	}

	var b strings.Builder
	b.WriteString("Here is your offer:\n")
	for _, l := range lines {
		b.WriteString("  - " + l + "\n")
	}
	fmt.Fprintf(&b, "Total: %s\n", formatCents(total))
	if state.ManagerNotes != "" {
		// Revision requested by the venue manager; the note shapes the text
		// but is not shown to the client.
		log.Printf("[Offer] Conversation %s: rebuilding with manager notes applied", state.ID)
	}
	b.WriteString("Shall I reserve this for you?")

	hash := hashguard.Offer(state.LockedRoomID, state.ChosenDate, router.ResolveParticipants(state), state.Products.Items, terms)
	return b.String(), hash, nil
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d EUR", cents/100, cents%100)
}
