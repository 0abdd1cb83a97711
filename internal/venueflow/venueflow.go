// Package venueflow wires the workflow core into a runnable service: store,
// message bus, dispatch loop, HIL queue and HTTP API.
package venueflow

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/jordanhubbard/venueflow/internal/api"
	"github.com/jordanhubbard/venueflow/internal/classify"
	"github.com/jordanhubbard/venueflow/internal/engine"
	"github.com/jordanhubbard/venueflow/internal/hil"
	"github.com/jordanhubbard/venueflow/internal/messagebus"
	"github.com/jordanhubbard/venueflow/internal/metrics"
	"github.com/jordanhubbard/venueflow/internal/planner"
	"github.com/jordanhubbard/venueflow/internal/stages"
	"github.com/jordanhubbard/venueflow/internal/store"
	"github.com/jordanhubbard/venueflow/pkg/config"
	"github.com/jordanhubbard/venueflow/pkg/messages"
)

// Service is the assembled venueflow instance.
type Service struct {
	cfg        *config.Config
	store      store.Store
	bus        messagebus.Bus
	dispatcher *engine.Dispatcher
	hil        *hil.Manager
	httpServer *http.Server
}

// Option overrides a default collaborator, e.g. to plug in a PMS-backed
// calendar instead of the built-in inventory.
type Option func(*collaborators)

type collaborators struct {
	calendar   stages.Calendar
	rooms      stages.RoomCatalog
	products   stages.ProductCatalog
	classifier classify.Classifier
}

// WithCalendar overrides the availability calendar.
func WithCalendar(c stages.Calendar) Option {
	return func(co *collaborators) { co.calendar = c }
}

// WithRoomCatalog overrides the room catalog.
func WithRoomCatalog(r stages.RoomCatalog) Option {
	return func(co *collaborators) { co.rooms = r }
}

// WithProductCatalog overrides the product catalog.
func WithProductCatalog(p stages.ProductCatalog) Option {
	return func(co *collaborators) { co.products = p }
}

// WithClassifier overrides the change classifier, e.g. with an LLM-backed one.
func WithClassifier(c classify.Classifier) Option {
	return func(co *collaborators) { co.classifier = c }
}

// NewService builds a service from configuration.
func NewService(cfg *config.Config, opts ...Option) (*Service, error) {
	st, err := newStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	bus, err := newBus(cfg.Nats)
	if err != nil {
		st.Close()
		return nil, err
	}

	co := &collaborators{
		calendar:   stages.NewMemoryCalendar(),
		rooms:      defaultRooms(),
		products:   defaultProducts(),
		classifier: classify.NewRegexClassifier(),
	}
	for _, opt := range opts {
		opt(co)
	}

	m := metrics.NewMetrics()
	deps := &stages.Deps{
		Calendar: co.calendar,
		Rooms:    co.rooms,
		Products: co.products,
		Planner:  planner.New(cfg.QuestionPriority()),
		Intents:  classify.NewEntityIntentParser(),
		Metrics:  m,
	}

	registry, err := engine.NewRegistry(stages.NewHandlers(deps)...)
	if err != nil {
		st.Close()
		bus.Close()
		return nil, err
	}

	dispatcher := engine.NewDispatcher(registry, co.classifier, st, m,
		engine.WithMaxIterations(cfg.Dispatch.MaxIterations),
		engine.WithDiagnostics(cfg.Dispatch.Diagnostics),
	)

	hilManager := hil.NewManager(st, dispatcher)

	server := api.NewServer(st, dispatcher, hilManager, bus)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      server.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Service{
		cfg:        cfg,
		store:      st,
		bus:        bus,
		dispatcher: dispatcher,
		hil:        hilManager,
		httpServer: httpServer,
	}, nil
}

// Start subscribes to inbound bus traffic and serves HTTP until the listener
// fails or Shutdown is called.
func (s *Service) Start(ctx context.Context) error {
	if nats, ok := s.bus.(*messagebus.NatsMessageBus); ok {
		if err := nats.SubscribeInbound(func(msg *messages.InboundMessage) {
			s.handleInbound(ctx, msg)
		}); err != nil {
			return fmt.Errorf("failed to subscribe to inbound messages: %w", err)
		}
		if err := nats.SubscribeHilDecisions(func(decision *messages.HilDecisionMessage) {
			s.handleDecision(ctx, decision)
		}); err != nil {
			return fmt.Errorf("failed to subscribe to hil decisions: %w", err)
		}
	}

	log.Printf("[VenueFlow] Serving HTTP on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleInbound dispatches a client message arriving over the bus and mirrors
// the outcome back onto it.
func (s *Service) handleInbound(ctx context.Context, msg *messages.InboundMessage) {
	reply, err := s.dispatcher.ProcessMessage(ctx, engine.Message{
		ID:             msg.MessageID,
		ConversationID: msg.ConversationID,
		Text:           msg.Text,
		Entities:       msg.Entities,
	})
	if err != nil {
		log.Printf("[VenueFlow] Failed to process message %s: %v", msg.MessageID, err)
		return
	}
	if reply.Draft != "" {
		if err := s.bus.PublishDraft(messages.DraftReleased(reply.ConversationID, reply.Stage, reply.Draft, reply.ThreadState, msg.CorrelationID)); err != nil {
			log.Printf("[VenueFlow] Failed to publish draft for %s: %v", reply.ConversationID, err)
		}
	}
	if reply.HilTaskID != "" {
		if err := s.bus.PublishHilRequest(messages.HilRequested(reply.HilTaskID, reply.ConversationID, reply.Stage, "")); err != nil {
			log.Printf("[VenueFlow] Failed to publish hil request %s: %v", reply.HilTaskID, err)
		}
	}
}

func (s *Service) handleDecision(ctx context.Context, decision *messages.HilDecisionMessage) {
	var err error
	switch decision.Type {
	case "hil.approved":
		_, err = s.hil.Approve(ctx, decision.TaskID)
	case "hil.rejected":
		_, err = s.hil.Reject(ctx, decision.TaskID, decision.Notes)
	default:
		log.Printf("[VenueFlow] Unknown hil decision type %q", decision.Type)
		return
	}
	if err != nil {
		log.Printf("[VenueFlow] Failed to apply hil decision %s: %v", decision.TaskID, err)
	}
}

// Shutdown stops the HTTP server, the dispatch workers and the bus.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.dispatcher.Close()
	if berr := s.bus.Close(); err == nil {
		err = berr
	}
	if serr := s.store.Close(); err == nil {
		err = serr
	}
	return err
}

// Store exposes the conversation store, e.g. for the ctl tool.
func (s *Service) Store() store.Store { return s.store }

func newStore(cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Type {
	case "memory":
		return store.NewMemoryStore(), nil
	case "file":
		return store.NewFileStore(cfg.Path)
	case "sqlite":
		return store.NewSQLite(cfg.Path)
	case "postgres":
		return store.NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Type)
	}
}

func newBus(cfg config.NatsConfig) (messagebus.Bus, error) {
	if cfg.URL == "" {
		log.Printf("[VenueFlow] No NATS URL configured, running without a message bus")
		return messagebus.NoopBus{}, nil
	}
	return messagebus.NewNatsMessageBus(messagebus.Config{
		URL:        cfg.URL,
		StreamName: cfg.StreamName,
	})
}

// defaultRooms is the built-in inventory used until a PMS integration
// provides the real one.
func defaultRooms() stages.RoomCatalog {
	return stages.NewMemoryRoomCatalog(
		stages.Room{ID: "garden-hall", Name: "Garden Hall", Capacity: 60, DayRate: 95000},
		stages.Room{ID: "atrium", Name: "Atrium", Capacity: 140, DayRate: 180000},
		stages.Room{ID: "studio", Name: "Studio", Capacity: 25, DayRate: 45000},
	)
}

func defaultProducts() stages.ProductCatalog {
	return stages.NewMemoryProductCatalog(
		stages.Product{SKU: "coffee-break", Name: "Coffee break", UnitPrice: 450, Category: "catering"},
		stages.Product{SKU: "lunch-buffet", Name: "Lunch buffet", UnitPrice: 2400, Category: "catering"},
		stages.Product{SKU: "beamer", Name: "Projector and screen", UnitPrice: 5000, Category: "equipment"},
		stages.Product{SKU: "sound", Name: "Sound system", UnitPrice: 7500, Category: "equipment"},
	)
}
