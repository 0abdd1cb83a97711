// Package messages defines the wire types exchanged over the message bus.
package messages

import (
	"time"

	"github.com/jordanhubbard/venueflow/internal/classify"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

// InboundMessage is one client message entering the workflow.
type InboundMessage struct {
	Type           string            `json:"type"` // "message.received"
	MessageID      string            `json:"message_id"`
	ConversationID string            `json:"conversation_id"`
	Text           string            `json:"text"`
	Entities       classify.Entities `json:"entities"`
	CorrelationID  string            `json:"correlation_id"`
	Timestamp      time.Time         `json:"timestamp"`
}

// MessageReceived creates a message.received event.
func MessageReceived(messageID, conversationID, text string, ents classify.Entities, correlationID string) *InboundMessage {
	return &InboundMessage{
		Type:           "message.received",
		MessageID:      messageID,
		ConversationID: conversationID,
		Text:           text,
		Entities:       ents,
		CorrelationID:  correlationID,
		Timestamp:      time.Now(),
	}
}

// DraftMessage is a client-facing draft released by the workflow.
type DraftMessage struct {
	Type           string             `json:"type"` // "draft.released"
	ConversationID string             `json:"conversation_id"`
	Stage          models.Stage       `json:"stage"`
	Draft          string             `json:"draft"`
	ThreadState    models.ThreadState `json:"thread_state"`
	CorrelationID  string             `json:"correlation_id"`
	Timestamp      time.Time          `json:"timestamp"`
}

// DraftReleased creates a draft.released event.
func DraftReleased(conversationID string, stage models.Stage, draft string, threadState models.ThreadState, correlationID string) *DraftMessage {
	return &DraftMessage{
		Type:           "draft.released",
		ConversationID: conversationID,
		Stage:          stage,
		Draft:          draft,
		ThreadState:    threadState,
		CorrelationID:  correlationID,
		Timestamp:      time.Now(),
	}
}

// HilRequestMessage announces a draft parked for approval.
type HilRequestMessage struct {
	Type           string       `json:"type"` // "hil.requested"
	TaskID         string       `json:"task_id"`
	ConversationID string       `json:"conversation_id"`
	Stage          models.Stage `json:"stage"`
	Draft          string       `json:"draft"`
	Timestamp      time.Time    `json:"timestamp"`
}

// HilRequested creates a hil.requested event.
func HilRequested(taskID, conversationID string, stage models.Stage, draft string) *HilRequestMessage {
	return &HilRequestMessage{
		Type:           "hil.requested",
		TaskID:         taskID,
		ConversationID: conversationID,
		Stage:          stage,
		Draft:          draft,
		Timestamp:      time.Now(),
	}
}

// HilDecisionMessage carries an approve/reject decision back to the workflow.
type HilDecisionMessage struct {
	Type      string    `json:"type"` // "hil.approved", "hil.rejected"
	TaskID    string    `json:"task_id"`
	Notes     string    `json:"notes,omitempty"`
	DecidedBy string    `json:"decided_by,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HilApproved creates a hil.approved decision.
func HilApproved(taskID, decidedBy string) *HilDecisionMessage {
	return &HilDecisionMessage{
		Type:      "hil.approved",
		TaskID:    taskID,
		DecidedBy: decidedBy,
		Timestamp: time.Now(),
	}
}

// HilRejected creates a hil.rejected decision with manager notes.
func HilRejected(taskID, decidedBy, notes string) *HilDecisionMessage {
	return &HilDecisionMessage{
		Type:      "hil.rejected",
		TaskID:    taskID,
		Notes:     notes,
		DecidedBy: decidedBy,
		Timestamp: time.Now(),
	}
}
