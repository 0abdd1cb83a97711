package models

// Invalidations lists the derived artifacts a routing decision forces to be
// recomputed. Hash fields are cleared, not recomputed, so the owning stage
// re-evaluates them on its next run.
type Invalidations struct {
	RoomEvalHash  bool `json:"room_eval_hash,omitempty"`
	OfferHash     bool `json:"offer_hash,omitempty"`
	DateConfirmed bool `json:"date_confirmed,omitempty"`
}

// Any reports whether at least one invalidation is requested.
func (inv Invalidations) Any() bool {
	return inv.RoomEvalHash || inv.OfferHash || inv.DateConfirmed
}

// RoutingDecision is the ephemeral output of the DAG router, consumed
// immediately by the dispatch loop.
type RoutingDecision struct {
	NextStage Stage `json:"next_stage"`

	// UpdatedCallerStage is the return address to preserve for the detour,
	// nil when the decision does not open (or change) a detour.
	UpdatedCallerStage *Stage `json:"updated_caller_stage,omitempty"`

	Invalidate Invalidations `json:"invalidate"`

	// SkipReason is set on fast-skip decisions where no stage re-entry is
	// needed (e.g. requirements changed but the hashes still match).
	SkipReason string `json:"skip_reason,omitempty"`

	// NeedsReeval marks decisions that require the target stage to recompute
	// its artifact even though the stage itself is unchanged (products are
	// additive: no hash is invalidated but the offer must be rebuilt).
	NeedsReeval bool `json:"needs_reeval"`
}

// StageResult is what a stage handler reports back to the dispatch loop.
type StageResult struct {
	// Halt stops the loop for this message: the handler produced client
	// output, parked a HIL request, or is waiting on client input.
	Halt bool `json:"halt"`

	// NextStage, when non-nil, continues the loop at another stage
	// (return-to-caller after a detour's dependent stages are satisfied).
	NextStage *Stage `json:"next_stage,omitempty"`

	// Draft is the client-facing message produced by the handler, if any.
	Draft string `json:"draft,omitempty"`

	// HilRequest parks the draft for human approval instead of sending it.
	HilRequest *HilRequest `json:"hil_request,omitempty"`

	// ThreadState the conversation should be left in when the loop halts.
	ThreadState ThreadState `json:"thread_state,omitempty"`

	// Diagnostic carries a fallback trigger reason (low_confidence,
	// llm_exception, empty_results, ...) surfaced only when diagnostics are
	// enabled.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// StagePtr is a convenience for building optional stage fields.
func StagePtr(s Stage) *Stage {
	return &s
}
