package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jordanhubbard/venueflow/internal/classify"
	"github.com/jordanhubbard/venueflow/internal/metrics"
	"github.com/jordanhubbard/venueflow/internal/router"
	"github.com/jordanhubbard/venueflow/internal/store"
	"github.com/jordanhubbard/venueflow/internal/telemetry"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

// DefaultMaxIterations bounds the dispatch loop per inbound message. Six is
// enough for the deepest legal chain (detour to stage 2, return through 3,
// re-enter 4, park); anything longer indicates a routing bug, not real work.
const DefaultMaxIterations = 6

// conflictRetries bounds reprocessing after a version conflict from an
// out-of-process writer.
const conflictRetries = 3

// Reply is the outward-facing result of processing one message or HIL
// decision.
type Reply struct {
	ConversationID string             `json:"conversation_id"`
	Stage          models.Stage       `json:"stage"`
	Draft          string             `json:"draft,omitempty"`
	ThreadState    models.ThreadState `json:"thread_state"`
	HilTaskID      string             `json:"hil_task_id,omitempty"`

	// Diagnostic carries fallback trigger reasons; populated only when the
	// dispatcher runs with diagnostics enabled.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Dispatcher runs the message cycle: classify once, route once, then drive
// stage handlers until one halts. All mutation happens on a clone of the
// loaded state; the clone is persisted exactly once at the end, so a failing
// handler leaves no partial effects behind.
type Dispatcher struct {
	registry   *Registry
	classifier classify.Classifier
	store      store.Store
	owner      *store.Owner
	metrics    *metrics.Metrics

	maxIterations int
	diagnostics   bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxIterations overrides the dispatch loop bound.
func WithMaxIterations(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxIterations = n
		}
	}
}

// WithDiagnostics surfaces fallback trigger reasons on replies.
func WithDiagnostics(enabled bool) Option {
	return func(d *Dispatcher) { d.diagnostics = enabled }
}

// NewDispatcher wires the dispatch loop.
func NewDispatcher(registry *Registry, classifier classify.Classifier, st store.Store, m *metrics.Metrics, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:      registry,
		classifier:    classifier,
		store:         st,
		owner:         store.NewOwner(),
		metrics:       m,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Close stops the per-conversation workers.
func (d *Dispatcher) Close() {
	d.owner.Close()
}

// ProcessMessage runs the full cycle for one inbound client message. Work for
// a conversation is serialized through its owner goroutine; a version
// conflict from another process triggers a bounded reprocess against the
// fresh snapshot.
func (d *Dispatcher) ProcessMessage(ctx context.Context, msg Message) (*Reply, error) {
	var reply *Reply
	err := d.owner.Do(ctx, msg.ConversationID, func(ctx context.Context) error {
		var err error
		for attempt := 0; attempt < conflictRetries; attempt++ {
			reply, err = d.processOnce(ctx, msg)
			if !errors.Is(err, store.ErrVersionConflict) {
				return err
			}
			d.metrics.StoreConflicts.Inc()
			log.Printf("[Dispatcher] Version conflict on conversation %s, reprocessing (attempt %d)", msg.ConversationID, attempt+1)
		}
		return fmt.Errorf("conversation %s: gave up after %d version conflicts", msg.ConversationID, conflictRetries)
	})
	return reply, err
}

func (d *Dispatcher) processOnce(ctx context.Context, msg Message) (*Reply, error) {
	started := time.Now()
	telemetry.MessagesDispatched.Add(ctx, 1)
	defer func() {
		telemetry.DispatchLatency.Record(ctx, float64(time.Since(started).Milliseconds()))
	}()

	state, err := d.store.Load(ctx, msg.ConversationID)
	if err == store.ErrNotFound {
		state = models.NewConversationState(msg.ConversationID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", msg.ConversationID, err)
	}

	work := state.Clone()
	work.ThreadState = models.ThreadInProgress

	// Classify exactly once per message. A classifier failure is never a
	// change: the message falls through to the current stage with the trigger
	// recorded as a diagnostic.
	diagnostic := ""
	kind, err := d.classifier.ClassifyChange(ctx, work, msg.Text, msg.Entities)
	if err != nil {
		kind = models.ChangeNone
		var cerr *classify.Error
		if errors.As(err, &cerr) {
			diagnostic = cerr.Trigger
		} else {
			diagnostic = classify.TriggerLLMException
		}
		log.Printf("[Dispatcher] Classifier failed on conversation %s: %v (continuing without change)", msg.ConversationID, err)
	}

	fromStage := work.CurrentStage
	dec := router.Route(work, kind, fromStage)
	d.metrics.RoutingDecisions.WithLabelValues(string(kind), dec.NextStage.String()).Inc()
	if dec.SkipReason != "" {
		d.metrics.FastSkips.WithLabelValues(dec.SkipReason).Inc()
	}

	moved := router.Apply(work, dec, fmt.Sprintf("%s change detected", kind), uuid.NewString)
	if moved {
		log.Printf("[Dispatcher] Conversation %s: %s change routed %s -> %s", work.ID, kind, fromStage, work.CurrentStage)
		if dec.NextStage < fromStage {
			d.metrics.Detours.WithLabelValues(fromStage.String(), dec.NextStage.String()).Inc()
			telemetry.DetoursTaken.Add(ctx, 1)
		}
	}

	reply, err := d.runLoop(ctx, work, msg, nil)
	if err != nil {
		return nil, err
	}
	if diagnostic != "" && reply.Diagnostic == "" && d.diagnostics {
		reply.Diagnostic = diagnostic
	}

	if err := d.persist(ctx, work); err != nil {
		return nil, err
	}
	d.metrics.MessagesProcessed.WithLabelValues(string(work.ThreadState)).Inc()
	return reply, nil
}

// runLoop drives stage handlers until one halts or the iteration bound trips.
// When injected is non-nil it is consumed as the first iteration's result
// instead of running the current stage's handler; this is how an approved HIL
// draft re-enters the cycle without re-running the handler that produced it.
func (d *Dispatcher) runLoop(ctx context.Context, work *models.ConversationState, msg Message, injected *models.StageResult) (*Reply, error) {
	var last models.StageResult
	iterations := 0

	for iterations < d.maxIterations {
		iterations++

		var result models.StageResult
		if injected != nil {
			result = *injected
			injected = nil
		} else {
			handler, err := d.registry.Handler(work.CurrentStage)
			if err != nil {
				return nil, err
			}

			started := time.Now()
			result, err = handler.Handle(ctx, work, msg)
			elapsed := time.Since(started)
			d.metrics.HandlerDuration.WithLabelValues(work.CurrentStage.String()).Observe(elapsed.Seconds())
			telemetry.StageExecutionTime.Record(ctx, float64(elapsed.Milliseconds()),
				metric.WithAttributes(attribute.String("stage", work.CurrentStage.String())))
			if err != nil {
				d.metrics.HandlerErrors.WithLabelValues(work.CurrentStage.String()).Inc()
				return nil, &HandlerError{Stage: work.CurrentStage, Err: err}
			}
		}
		last = result

		if result.HilRequest != nil {
			req := *result.HilRequest
			if req.TaskID == "" {
				req.TaskID = uuid.NewString()
			}
			if req.Stage == 0 {
				req.Stage = work.CurrentStage
			}
			req.Status = models.HilPending
			if req.CreatedAt.IsZero() {
				req.CreatedAt = time.Now().UTC()
			}
			work.PendingHil = append(work.PendingHil, req)
			work.ThreadState = models.ThreadWaitingOnHIL
			d.metrics.HilPending.Inc()
			telemetry.HilTasksOpened.Add(ctx, 1)
			d.metrics.LoopIterations.Observe(float64(iterations))

			log.Printf("[Dispatcher] Conversation %s: draft parked for approval (task %s, stage %s)", work.ID, req.TaskID, req.Stage)
			return &Reply{
				ConversationID: work.ID,
				Stage:          work.CurrentStage,
				ThreadState:    work.ThreadState,
				HilTaskID:      req.TaskID,
				Diagnostic:     d.diag(result.Diagnostic),
			}, nil
		}

		if result.Halt {
			ts := result.ThreadState
			if ts == "" {
				if result.Draft != "" {
					ts = models.ThreadAwaitClient
				} else {
					ts = models.ThreadInProgress
				}
			}
			work.ThreadState = ts
			d.enforceCallerInvariant(work)
			d.metrics.LoopIterations.Observe(float64(iterations))
			return &Reply{
				ConversationID: work.ID,
				Stage:          work.CurrentStage,
				Draft:          result.Draft,
				ThreadState:    ts,
				Diagnostic:     d.diag(result.Diagnostic),
			}, nil
		}

		if result.NextStage == nil {
			// A handler that neither halts nor forwards is done with the
			// message.
			work.ThreadState = models.ThreadInProgress
			d.enforceCallerInvariant(work)
			d.metrics.LoopIterations.Observe(float64(iterations))
			return &Reply{
				ConversationID: work.ID,
				Stage:          work.CurrentStage,
				Draft:          result.Draft,
				ThreadState:    work.ThreadState,
				Diagnostic:     d.diag(result.Diagnostic),
			}, nil
		}

		next := *result.NextStage
		if !next.Valid() {
			return nil, fmt.Errorf("%w: handler for %s forwarded to %d", ErrUnknownStage, work.CurrentStage, next)
		}
		if caller, ok := work.Caller(); ok && next == caller {
			work.ClearCaller()
		}
		work.AuditTrail = append(work.AuditTrail, models.AuditEntry{
			ID:        uuid.NewString(),
			FromStage: work.CurrentStage,
			ToStage:   next,
			Reason:    "stage complete",
			At:        time.Now().UTC(),
		})
		work.CurrentStage = next
	}

	// Iteration bound tripped. Halt with whatever the last handler produced
	// rather than looping forever on a routing bug.
	log.Printf("[Dispatcher] Conversation %s: iteration bound (%d) reached at stage %s, halting", work.ID, d.maxIterations, work.CurrentStage)
	work.ThreadState = models.ThreadAwaitClient
	d.enforceCallerInvariant(work)
	d.metrics.LoopIterations.Observe(float64(iterations))
	return &Reply{
		ConversationID: work.ID,
		Stage:          work.CurrentStage,
		Draft:          last.Draft,
		ThreadState:    work.ThreadState,
		Diagnostic:     d.diag("iteration_limit"),
	}, nil
}

// enforceCallerInvariant clears a detour return address that points at the
// stage the loop halted on. A caller equal to the current stage would make
// the next return a self-transition.
func (d *Dispatcher) enforceCallerInvariant(work *models.ConversationState) {
	if caller, ok := work.Caller(); ok && caller == work.CurrentStage {
		work.ClearCaller()
	}
}

func (d *Dispatcher) diag(reason string) string {
	if !d.diagnostics {
		return ""
	}
	return reason
}

func (d *Dispatcher) persist(ctx context.Context, work *models.ConversationState) error {
	if err := d.store.Save(ctx, work); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("failed to persist conversation %s: %w", work.ID, err)
	}
	d.metrics.StoreSaves.WithLabelValues("primary").Inc()
	return nil
}

// ResumeApproved applies an approved HIL decision: the parked draft is sent
// as-is and the producing handler is not re-run. Handlers that implement
// Resumer may replace the default output path, e.g. to mark the offer as sent.
func (d *Dispatcher) ResumeApproved(ctx context.Context, conversationID, taskID string) (*Reply, error) {
	var reply *Reply
	err := d.owner.Do(ctx, conversationID, func(ctx context.Context) error {
		state, err := d.store.Load(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
		}
		work := state.Clone()

		req, ok := work.PendingHilByID(taskID)
		if !ok {
			return fmt.Errorf("hil task %s: %w", taskID, store.ErrNotFound)
		}
		approved := *req
		approved.Status = models.HilApproved
		now := time.Now().UTC()
		approved.DecidedAt = &now
		work.RemoveHil(taskID)
		d.metrics.HilPending.Dec()
		telemetry.HilTasksOpened.Add(ctx, -1)
		d.metrics.HilDecisions.WithLabelValues("approved").Inc()

		// The loop resumes at the stage that parked the draft, not wherever
		// the conversation drifted to since.
		if work.CurrentStage != approved.Stage {
			work.AuditTrail = append(work.AuditTrail, models.AuditEntry{
				ID:        uuid.NewString(),
				FromStage: work.CurrentStage,
				ToStage:   approved.Stage,
				Reason:    "hil approved",
				At:        now,
			})
			work.CurrentStage = approved.Stage
		}

		result := models.StageResult{
			Halt:        true,
			Draft:       approved.Draft,
			ThreadState: models.ThreadAwaitClient,
		}
		if handler, herr := d.registry.Handler(approved.Stage); herr == nil {
			if r, okR := handler.(Resumer); okR {
				result = r.Resume(work, approved)
			}
		}

		reply, err = d.runLoop(ctx, work, Message{ConversationID: conversationID}, &result)
		if err != nil {
			return err
		}
		if err := d.persist(ctx, work); err != nil {
			return err
		}
		d.metrics.MessagesProcessed.WithLabelValues(string(work.ThreadState)).Inc()
		log.Printf("[Dispatcher] Conversation %s: hil task %s approved, draft released", conversationID, taskID)
		return nil
	})
	return reply, err
}

// RejectDraft applies a rejected HIL decision: the draft is discarded, the
// manager's notes are recorded for the next attempt, and the conversation
// stays at the producing stage.
func (d *Dispatcher) RejectDraft(ctx context.Context, conversationID, taskID, notes string) (*Reply, error) {
	var reply *Reply
	err := d.owner.Do(ctx, conversationID, func(ctx context.Context) error {
		state, err := d.store.Load(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
		}
		work := state.Clone()

		req, ok := work.PendingHilByID(taskID)
		if !ok {
			return fmt.Errorf("hil task %s: %w", taskID, store.ErrNotFound)
		}
		stage := req.Stage
		work.RemoveHil(taskID)
		d.metrics.HilPending.Dec()
		telemetry.HilTasksOpened.Add(ctx, -1)
		d.metrics.HilDecisions.WithLabelValues("rejected").Inc()

		work.ManagerNotes = notes
		work.ThreadState = models.ThreadInProgress
		if stage == models.StageOffer {
			// The next offer run must rebuild the draft with the notes applied.
			work.OfferDirty = true
		}

		if err := d.persist(ctx, work); err != nil {
			return err
		}
		log.Printf("[Dispatcher] Conversation %s: hil task %s rejected (stage %s)", conversationID, taskID, stage)
		reply = &Reply{
			ConversationID: conversationID,
			Stage:          work.CurrentStage,
			ThreadState:    work.ThreadState,
		}
		return nil
	})
	return reply, err
}
