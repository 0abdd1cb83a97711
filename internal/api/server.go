// Package api exposes the workflow over HTTP: inbound messages, conversation
// inspection, and the HIL approval queue.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jordanhubbard/venueflow/internal/classify"
	"github.com/jordanhubbard/venueflow/internal/engine"
	"github.com/jordanhubbard/venueflow/internal/hil"
	"github.com/jordanhubbard/venueflow/internal/messagebus"
	"github.com/jordanhubbard/venueflow/internal/store"
	"github.com/jordanhubbard/venueflow/pkg/messages"
)

// Server is the HTTP API server.
type Server struct {
	store      store.Store
	dispatcher *engine.Dispatcher
	hil        *hil.Manager
	bus        messagebus.Bus
}

// NewServer creates the API server.
func NewServer(st store.Store, dispatcher *engine.Dispatcher, hilManager *hil.Manager, bus messagebus.Bus) *Server {
	return &Server{store: st, dispatcher: dispatcher, hil: hilManager, bus: bus}
}

// SetupRoutes configures HTTP routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", s.handleHealth)

	mux.HandleFunc("/api/v1/conversations", s.handleConversations)
	mux.HandleFunc("/api/v1/conversations/", s.handleConversation)

	mux.HandleFunc("/api/v1/hil/tasks", s.handleHilTasks)
	mux.HandleFunc("/api/v1/hil/tasks/", s.handleHilTask)

	mux.Handle("/metrics", promhttp.Handler())

	return otelhttp.NewHandler(mux, "venueflow-api")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := map[string]string{"status": "ok"}
	if err := s.bus.Health(); err != nil {
		status["bus"] = err.Error()
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conversations, err := s.store.List(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, conversations)
}

// handleConversation serves /api/v1/conversations/{id} and the message
// endpoint /api/v1/conversations/{id}/messages.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/conversations/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		s.respondError(w, http.StatusBadRequest, "missing conversation id")
		return
	}
	id := parts[0]

	if len(parts) == 2 && parts[1] == "messages" && r.Method == http.MethodPost {
		s.handlePostMessage(w, r, id)
		return
	}

	if len(parts) != 1 || r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state, err := s.store.Load(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, state)
}

type postMessageRequest struct {
	MessageID string            `json:"message_id"`
	Text      string            `json:"text"`
	Entities  classify.Entities `json:"entities"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request, conversationID string) {
	var req postMessageRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	reply, err := s.dispatcher.ProcessMessage(r.Context(), engine.Message{
		ID:             req.MessageID,
		ConversationID: conversationID,
		Text:           req.Text,
		Entities:       req.Entities,
	})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.publishOutcome(reply)
	s.respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleHilTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tasks, err := s.hil.List(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []hil.Task{}
	}
	s.respondJSON(w, http.StatusOK, tasks)
}

type rejectRequest struct {
	Notes string `json:"notes"`
}

// handleHilTask serves POST /api/v1/hil/tasks/{id}/approve and .../reject.
func (s *Server) handleHilTask(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/hil/tasks/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	taskID, action := parts[0], parts[1]

	var reply *engine.Reply
	var err error
	switch action {
	case "approve":
		reply, err = s.hil.Approve(r.Context(), taskID)
		if err == nil {
			s.publishDecision(messages.HilApproved(taskID, "manager"))
		}
	case "reject":
		var req rejectRequest
		if perr := s.parseJSON(r, &req); perr != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		reply, err = s.hil.Reject(r.Context(), taskID, req.Notes)
		if err == nil {
			s.publishDecision(messages.HilRejected(taskID, "manager", req.Notes))
		}
	default:
		s.respondError(w, http.StatusNotFound, "unknown action")
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.publishOutcome(reply)
	s.respondJSON(w, http.StatusOK, reply)
}

// publishOutcome mirrors a dispatch result onto the bus for downstream
// consumers (channel adapters, manager notifications).
func (s *Server) publishOutcome(reply *engine.Reply) {
	if reply == nil {
		return
	}
	if reply.Draft != "" {
		if err := s.bus.PublishDraft(messages.DraftReleased(reply.ConversationID, reply.Stage, reply.Draft, reply.ThreadState, "")); err != nil {
			log.Printf("[API] Failed to publish draft for %s: %v", reply.ConversationID, err)
		}
	}
	if reply.HilTaskID != "" {
		draft := s.lookupDraft(reply.ConversationID, reply.HilTaskID)
		if err := s.bus.PublishHilRequest(messages.HilRequested(reply.HilTaskID, reply.ConversationID, reply.Stage, draft)); err != nil {
			log.Printf("[API] Failed to publish hil request %s: %v", reply.HilTaskID, err)
		}
	}
}

func (s *Server) publishDecision(decision *messages.HilDecisionMessage) {
	if err := s.bus.PublishHilDecision(decision); err != nil {
		log.Printf("[API] Failed to publish hil decision %s: %v", decision.TaskID, err)
	}
}

func (s *Server) lookupDraft(conversationID, taskID string) string {
	state, err := s.store.Load(context.Background(), conversationID)
	if err != nil {
		return ""
	}
	if req, ok := state.PendingHilByID(taskID); ok {
		return req.Draft
	}
	return ""
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// parseJSON parses a JSON request body.
func (s *Server) parseJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
