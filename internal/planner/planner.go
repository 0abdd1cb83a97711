// Package planner applies multi-intent messages in fact dependency order.
// A message like "Room B works, and add coffee for 30" carries two intents
// whose order in the sentence is irrelevant: the room selection must land
// before the product can attach to it. Intents whose prerequisite is not yet
// established are not dropped; they become clarifying questions and are
// replayed as soon as the missing fact arrives.
package planner

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jordanhubbard/venueflow/internal/hashguard"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

// DefaultQuestionPriority orders queued clarifying questions for surfacing.
// Only the highest-priority question goes out per turn; the rest wait.
var DefaultQuestionPriority = []models.QuestionTopic{
	models.TopicTime,
	models.TopicAvailability,
	models.TopicSiteVisit,
	models.TopicOfferHIL,
	models.TopicBudget,
	models.TopicBilling,
}

// Outcome reports what one planning pass did to the state.
type Outcome struct {
	Applied  []models.Intent
	Deferred []models.ClarifyingQuestion

	// Question is the single clarifying question to surface this turn, nil
	// when nothing is queued.
	Question *models.ClarifyingQuestion
}

// Planner orders and applies intents against the conversation state.
type Planner struct {
	priority []models.QuestionTopic
	newID    func() string
	now      func() time.Time
}

// New returns a planner with the given question priority. An empty priority
// falls back to the default order.
func New(priority []models.QuestionTopic) *Planner {
	if len(priority) == 0 {
		priority = DefaultQuestionPriority
	}
	return &Planner{
		priority: priority,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Apply sorts the intents along the fact dependency graph, applies every
// intent whose prerequisite holds, and queues the rest as clarifying
// questions. Previously deferred intents are replayed first when their
// prerequisite has since been established.
func (p *Planner) Apply(state *models.ConversationState, intents []models.Intent) Outcome {
	var out Outcome

	pending := p.replayAnswered(state)
	pending = append(pending, intents...)
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Kind.DependencyRank() < pending[j].Kind.DependencyRank()
	})

	for _, intent := range pending {
		if topic, prompt, ok := p.unmetPrerequisite(state, intent); ok {
			q := models.ClarifyingQuestion{
				ID:        p.newID(),
				Topic:     topic,
				Prompt:    prompt,
				Intent:    intentPtr(intent),
				CreatedAt: p.now(),
			}
			state.PendingQuestions = append(state.PendingQuestions, q)
			out.Deferred = append(out.Deferred, q)
			continue
		}
		p.applyIntent(state, intent)
		out.Applied = append(out.Applied, intent)
	}

	out.Question = p.NextQuestion(state)
	return out
}

// NextQuestion returns the highest-priority pending question, or nil.
func (p *Planner) NextQuestion(state *models.ConversationState) *models.ClarifyingQuestion {
	for _, topic := range p.priority {
		for i := range state.PendingQuestions {
			if state.PendingQuestions[i].Topic == topic {
				q := state.PendingQuestions[i]
				return &q
			}
		}
	}
	if len(state.PendingQuestions) > 0 {
		q := state.PendingQuestions[0]
		return &q
	}
	return nil
}

// ResolveQuestion removes a pending question by id, e.g. once its topic has
// been answered out of band.
func (p *Planner) ResolveQuestion(state *models.ConversationState, id string) {
	for i := range state.PendingQuestions {
		if state.PendingQuestions[i].ID == id {
			state.PendingQuestions = append(state.PendingQuestions[:i], state.PendingQuestions[i+1:]...)
			return
		}
	}
}

// replayAnswered pulls deferred intents whose prerequisite now holds back out
// of the question queue.
func (p *Planner) replayAnswered(state *models.ConversationState) []models.Intent {
	var ready []models.Intent
	remaining := state.PendingQuestions[:0]
	for _, q := range state.PendingQuestions {
		if q.Intent != nil {
			if _, _, unmet := p.unmetPrerequisite(state, *q.Intent); !unmet {
				ready = append(ready, *q.Intent)
				continue
			}
		}
		remaining = append(remaining, q)
	}
	state.PendingQuestions = remaining
	return ready
}

// unmetPrerequisite checks the intent against the fact DAG. It returns the
// question to ask when the prerequisite fact is missing.
func (p *Planner) unmetPrerequisite(state *models.ConversationState, intent models.Intent) (models.QuestionTopic, string, bool) {
	switch intent.Kind {
	case models.IntentRoomSelect:
		if !state.DateConfirmed {
			return models.TopicTime, "Which date should we book the room for?", true
		}
	case models.IntentProductAdd:
		if state.LockedRoomID == "" {
			return models.TopicAvailability, "Which room should we add this to? We need to confirm a room first.", true
		}
	case models.IntentBilling:
		if !state.OfferSent && state.CurrentStage < models.StageTransition {
			return models.TopicBilling, "We'll collect billing details once the offer is ready. Anything else for the event itself?", true
		}
	}
	return "", "", false
}

func (p *Planner) applyIntent(state *models.ConversationState, intent models.Intent) {
	switch intent.Kind {
	case models.IntentDateConfirm:
		state.ChosenDate = intent.Date
		state.DateConfirmed = true

	case models.IntentRoomSelect:
		// The selection is recorded for the availability stage to validate;
		// the lock itself only happens after a calendar check.
		if state.Facts == nil {
			state.Facts = make(map[string]string)
		}
		state.Facts["requested_room_id"] = intent.RoomID

	case models.IntentRequirements:
		if intent.Participants > 0 {
			state.Participants = intent.Participants
		}
		if state.Requirements == nil {
			state.Requirements = make(map[string]string)
		}
		for k, v := range intent.Requirements {
			state.Requirements[k] = v
		}
		state.RequirementsHash = hashguard.Requirements(state.Requirements, state.Participants)

	case models.IntentProductAdd:
		state.Products.Items = append(state.Products.Items, models.ProductLine{
			SKU:      intent.ProductSKU,
			Quantity: intent.Quantity,
		})
		state.Products.AwaitingClientProducts = false
		state.OfferDirty = true

	case models.IntentBilling:
		if state.Billing.Fields == nil {
			state.Billing.Fields = make(map[string]string)
		}
		state.Billing.Fields[intent.BillingField] = intent.BillingValue
	}
}

func intentPtr(in models.Intent) *models.Intent {
	cp := in
	return &cp
}
