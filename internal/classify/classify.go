// Package classify defines the change-detection boundary the workflow core
// consumes. The router trusts the classifier contract: a ChangeKind other
// than none is emitted only when the corresponding fact was already
// established and the message binds a differing target to it. Pure questions
// yield none even when they mention a changeable fact.
package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanhubbard/venueflow/pkg/models"
)

// Diagnostic trigger reasons attached to fallback results.
const (
	TriggerTimeout       = "timeout"
	TriggerLLMException  = "llm_exception"
	TriggerLowConfidence = "low_confidence"
	TriggerEmptyResults  = "empty_results"
)

// ProductMention is a product reference extracted from a message.
type ProductMention struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Entities holds the structured values an extractor pulled from a message.
// Extraction quality is outside the core's contract; empty fields simply mean
// nothing was bound.
type Entities struct {
	Date          string            `json:"date,omitempty"` // ISO 8601 date
	RoomID        string            `json:"room_id,omitempty"`
	Participants  int               `json:"participants,omitempty"`
	Requirements  map[string]string `json:"requirements,omitempty"`
	Products      []ProductMention  `json:"products,omitempty"`
	BillingFields map[string]string `json:"billing_fields,omitempty"`
	ClientInfo    map[string]string `json:"client_info,omitempty"`
}

// Classifier detects whether a message revises an already-established fact.
type Classifier interface {
	ClassifyChange(ctx context.Context, state *models.ConversationState, message string, ents Entities) (models.ChangeKind, error)
}

// Error is a structured classifier failure. The dispatch loop converts it
// into ChangeKind none with the trigger reason attached as a diagnostic; it
// never guesses a change.
type Error struct {
	Trigger string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classifier failed (%s): %v", e.Trigger, e.Err)
	}
	return fmt.Sprintf("classifier failed (%s)", e.Trigger)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithTimeout wraps a classifier so every call is bounded. External
// classifiers (LLM-backed) are expected to enforce their own timeout; this
// wrapper is the belt for those that do not.
func WithTimeout(c Classifier, timeout time.Duration) Classifier {
	return &timeoutClassifier{inner: c, timeout: timeout}
}

type timeoutClassifier struct {
	inner   Classifier
	timeout time.Duration
}

func (t *timeoutClassifier) ClassifyChange(ctx context.Context, state *models.ConversationState, message string, ents Entities) (models.ChangeKind, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type outcome struct {
		kind models.ChangeKind
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		kind, err := t.inner.ClassifyChange(ctx, state, message, ents)
		ch <- outcome{kind, err}
	}()

	select {
	case out := <-ch:
		return out.kind, out.err
	case <-ctx.Done():
		return models.ChangeNone, &Error{Trigger: TriggerTimeout, Err: ctx.Err()}
	}
}

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, state *models.ConversationState, message string, ents Entities) (models.ChangeKind, error)

func (f Func) ClassifyChange(ctx context.Context, state *models.ConversationState, message string, ents Entities) (models.ChangeKind, error) {
	return f(ctx, state, message, ents)
}
