package engine

import (
	"context"
	"fmt"

	"github.com/jordanhubbard/venueflow/internal/classify"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

// Message is one inbound client message, already run through entity
// extraction and intent parsing.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Text           string            `json:"text"`
	Entities       classify.Entities `json:"entities"`
	Intents        []models.Intent   `json:"intents,omitempty"`
}

// Handler processes one dispatch-loop iteration for its stage. Handlers
// mutate the working copy of the state freely; the loop commits the copy only
// when the whole message cycle succeeds, so a failed handler cannot leak
// partial effects.
type Handler interface {
	Stage() models.Stage
	Handle(ctx context.Context, state *models.ConversationState, msg Message) (models.StageResult, error)
}

// Resumer is implemented by handlers whose HIL approvals need more than the
// default "send the approved draft" output path. Resume must only replay the
// handler's output path; the handler itself is not re-run on approval and its
// side effects must not be duplicated.
type Resumer interface {
	Resume(state *models.ConversationState, req models.HilRequest) models.StageResult
}

// Registry is the closed set of stage handlers, one per stage 1-7.
type Registry struct {
	handlers map[models.Stage]Handler
}

// NewRegistry builds a registry and verifies the handler set is complete.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[models.Stage]Handler, len(handlers))}
	for _, h := range handlers {
		stage := h.Stage()
		if !stage.Valid() {
			return nil, fmt.Errorf("handler reports invalid stage %d", stage)
		}
		if _, dup := r.handlers[stage]; dup {
			return nil, fmt.Errorf("duplicate handler for stage %v", stage)
		}
		r.handlers[stage] = h
	}
	for s := models.StageMin; s <= models.StageMax; s++ {
		if _, ok := r.handlers[s]; !ok {
			return nil, fmt.Errorf("no handler registered for stage %v", s)
		}
	}
	return r, nil
}

// Handler returns the handler for a stage.
func (r *Registry) Handler(stage models.Stage) (Handler, error) {
	h, ok := r.handlers[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownStage, stage)
	}
	return h, nil
}
