package models

import "time"

// Stage identifies one of the seven ordered workflow steps of a booking
// conversation. Stages only move forward on their own; a backward move is a
// detour triggered by a change to an already-established fact.
type Stage int

const (
	StageIntake           Stage = 1
	StageDateConfirmation Stage = 2
	StageRoomAvailability Stage = 3
	StageOffer            Stage = 4
	StageNegotiation      Stage = 5
	StageTransition       Stage = 6
	StageConfirmation     Stage = 7
)

// StageMin and StageMax bound the valid stage range.
const (
	StageMin = StageIntake
	StageMax = StageConfirmation
)

// String returns the human-readable stage name used in logs and audit entries.
func (s Stage) String() string {
	switch s {
	case StageIntake:
		return "intake"
	case StageDateConfirmation:
		return "date_confirmation"
	case StageRoomAvailability:
		return "room_availability"
	case StageOffer:
		return "offer"
	case StageNegotiation:
		return "negotiation"
	case StageTransition:
		return "transition"
	case StageConfirmation:
		return "confirmation"
	default:
		return "unknown"
	}
}

// Valid reports whether the stage is within the defined range.
func (s Stage) Valid() bool {
	return s >= StageMin && s <= StageMax
}

// ThreadState describes what the conversation is waiting on, if anything.
type ThreadState string

const (
	ThreadInProgress   ThreadState = "in_progress"
	ThreadAwaitClient  ThreadState = "awaiting_client"
	ThreadWaitingOnHIL ThreadState = "waiting_on_hil"
)

// ChangeKind is the signal emitted by the change classifier when a client
// message revises a fact that was already established earlier in the flow.
type ChangeKind string

const (
	ChangeNone         ChangeKind = "none"
	ChangeDate         ChangeKind = "date"
	ChangeRoom         ChangeKind = "room"
	ChangeRequirements ChangeKind = "requirements"
	ChangeProducts     ChangeKind = "products"
	ChangeCommercial   ChangeKind = "commercial"
	ChangeDeposit      ChangeKind = "deposit"
	ChangeSiteVisit    ChangeKind = "site_visit"
	ChangeClientInfo   ChangeKind = "client_info"
)

// HilStatus is the lifecycle state of a human-in-the-loop request.
type HilStatus string

const (
	HilPending  HilStatus = "pending"
	HilApproved HilStatus = "approved"
	HilRejected HilStatus = "rejected"
)

// HilRequest is a draft parked for human sign-off before it is sent to the
// client. Approval resumes the stage that produced the draft.
type HilRequest struct {
	TaskID    string     `json:"task_id"`
	Stage     Stage      `json:"stage"`
	Draft     string     `json:"draft"`
	Status    HilStatus  `json:"status"`
	Notes     string     `json:"notes,omitempty"` // manager notes on rejection
	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// AuditEntry records a single stage transition and why it happened.
// The audit trail is append-only; entries are never mutated.
type AuditEntry struct {
	ID        string    `json:"id"`
	FromStage Stage     `json:"from_stage"`
	ToStage   Stage     `json:"to_stage"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// ProductLine is one product (catering, equipment, ...) attached to the event.
type ProductLine struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"` // cents
}

// ProductsState tracks product selection progress for stage 4.
type ProductsState struct {
	Items                  []ProductLine `json:"items,omitempty"`
	AwaitingClientProducts bool          `json:"awaiting_client_products"`
	CateringTeaserShown    bool          `json:"catering_teaser_shown"`
	PromptCount            int           `json:"prompt_count"` // times the client was asked for preferences
}

// BillingState tracks billing capture around offer acceptance.
type BillingState struct {
	AwaitingBillingForAccept bool              `json:"awaiting_billing_for_accept"`
	Fields                   map[string]string `json:"fields,omitempty"` // company, vat_id, address, ...
}

// QuestionTopic classifies a queued clarifying question so the planner can
// surface the highest-priority one per turn.
type QuestionTopic string

const (
	TopicTime         QuestionTopic = "time"
	TopicAvailability QuestionTopic = "availability"
	TopicSiteVisit    QuestionTopic = "site_visit"
	TopicOfferHIL     QuestionTopic = "offer_hil"
	TopicBudget       QuestionTopic = "budget"
	TopicBilling      QuestionTopic = "billing"
)

// ClarifyingQuestion is an intent whose prerequisite was unmet, converted into
// a question instead of being dropped.
type ClarifyingQuestion struct {
	ID        string        `json:"id"`
	Topic     QuestionTopic `json:"topic"`
	Prompt    string        `json:"prompt"`
	Intent    *Intent       `json:"intent,omitempty"` // the deferred intent, replayed once answerable
	CreatedAt time.Time     `json:"created_at"`
}

// ConversationState is the single per-booking-thread state record. It is
// owned exclusively by the dispatch loop while a message is being processed
// and persisted as a whole record afterward.
type ConversationState struct {
	ID           string `json:"id"`
	CurrentStage Stage  `json:"current_stage"`

	// CallerStage is the return address of a pending detour. It is nil when
	// no detour is in flight and is cleared exactly when the detour's
	// dependent stages re-report readiness.
	CallerStage *Stage `json:"caller_stage,omitempty"`

	ChosenDate    string `json:"chosen_date,omitempty"` // ISO 8601 date
	DateConfirmed bool   `json:"date_confirmed"`

	// The locked room is valid for the current requirements iff
	// RequirementsHash == RoomEvalHash (see hashguard).
	LockedRoomID     string            `json:"locked_room_id,omitempty"`
	Requirements     map[string]string `json:"requirements,omitempty"`
	RequirementsHash string            `json:"requirements_hash,omitempty"`
	RoomEvalHash     string            `json:"room_eval_hash,omitempty"`

	Participants int               `json:"participants,omitempty"` // 0 = unknown
	Facts        map[string]string `json:"facts,omitempty"`        // captured event metadata

	OfferHash     string `json:"offer_hash,omitempty"`
	OfferDirty    bool   `json:"offer_dirty"` // offer must be rebuilt before (re)sending
	OfferSent     bool   `json:"offer_sent"`
	OfferAccepted bool   `json:"offer_accepted"`

	Products ProductsState `json:"products_state"`
	Billing  BillingState  `json:"billing_requirements"`

	DepositPaid      bool   `json:"deposit_paid"`
	SiteVisitAt      string `json:"site_visit_at,omitempty"`
	TransitionSigned bool   `json:"transition_signed"`

	PendingHil       []HilRequest         `json:"pending_hil_requests,omitempty"`
	PendingQuestions []ClarifyingQuestion `json:"pending_questions,omitempty"`
	ManagerNotes     string               `json:"manager_notes,omitempty"`

	AuditTrail  []AuditEntry `json:"audit_trail,omitempty"`
	ThreadState ThreadState  `json:"thread_state"`

	// Version is the optimistic-concurrency token checked by the store on
	// save. A stale save is rejected, never merged.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState returns a fresh conversation at the intake stage.
func NewConversationState(id string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		ID:           id,
		CurrentStage: StageIntake,
		Requirements: make(map[string]string),
		Facts:        make(map[string]string),
		ThreadState:  ThreadInProgress,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RoomValid reports whether the locked room still matches the current
// requirements. This is the hash-guard check behind fast-skips.
func (c *ConversationState) RoomValid() bool {
	return c.LockedRoomID != "" && c.RequirementsHash != "" && c.RequirementsHash == c.RoomEvalHash
}

// Caller returns the pending detour return stage, or (0, false).
func (c *ConversationState) Caller() (Stage, bool) {
	if c.CallerStage == nil {
		return 0, false
	}
	return *c.CallerStage, true
}

// SetCaller records the detour return address unless one is already pending.
// The first detour's return address wins so that nested detours unwind to the
// right place.
func (c *ConversationState) SetCaller(s Stage) {
	if c.CallerStage != nil {
		return
	}
	if s == c.CurrentStage {
		return
	}
	caller := s
	c.CallerStage = &caller
}

// ClearCaller removes the pending detour return address.
func (c *ConversationState) ClearCaller() {
	c.CallerStage = nil
}

// PendingHilByID finds a pending HIL request by task id.
func (c *ConversationState) PendingHilByID(taskID string) (*HilRequest, bool) {
	for i := range c.PendingHil {
		if c.PendingHil[i].TaskID == taskID {
			return &c.PendingHil[i], true
		}
	}
	return nil, false
}

// RemoveHil deletes the HIL request with the given task id, if present.
func (c *ConversationState) RemoveHil(taskID string) {
	for i := range c.PendingHil {
		if c.PendingHil[i].TaskID == taskID {
			c.PendingHil = append(c.PendingHil[:i], c.PendingHil[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy of the state. The dispatch loop mutates a clone
// and commits it only when the whole message cycle succeeds.
func (c *ConversationState) Clone() *ConversationState {
	cp := *c
	if c.CallerStage != nil {
		caller := *c.CallerStage
		cp.CallerStage = &caller
	}
	cp.Requirements = copyStringMap(c.Requirements)
	cp.Facts = copyStringMap(c.Facts)
	cp.Billing.Fields = copyStringMap(c.Billing.Fields)
	cp.Products.Items = append([]ProductLine(nil), c.Products.Items...)
	cp.PendingHil = append([]HilRequest(nil), c.PendingHil...)
	cp.AuditTrail = append([]AuditEntry(nil), c.AuditTrail...)
	cp.PendingQuestions = make([]ClarifyingQuestion, len(c.PendingQuestions))
	for i, q := range c.PendingQuestions {
		cp.PendingQuestions[i] = q
		if q.Intent != nil {
			in := *q.Intent
			cp.PendingQuestions[i].Intent = &in
		}
	}
	return &cp
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
