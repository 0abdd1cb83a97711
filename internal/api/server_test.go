package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jordanhubbard/venueflow/internal/classify"
	"github.com/jordanhubbard/venueflow/internal/engine"
	"github.com/jordanhubbard/venueflow/internal/hil"
	"github.com/jordanhubbard/venueflow/internal/messagebus"
	"github.com/jordanhubbard/venueflow/internal/metrics"
	"github.com/jordanhubbard/venueflow/internal/planner"
	"github.com/jordanhubbard/venueflow/internal/stages"
	"github.com/jordanhubbard/venueflow/internal/store"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

func testServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()

	deps := &stages.Deps{
		Calendar: stages.NewMemoryCalendar(),
		Rooms:    stages.NewMemoryRoomCatalog(stages.Room{ID: "room-a", Name: "Garden Hall", Capacity: 80, DayRate: 80000}),
		Products: stages.NewMemoryProductCatalog(stages.Product{SKU: "coffee", Name: "Coffee break", UnitPrice: 450}),
		Planner:  planner.New(nil),
		Intents:  classify.NewEntityIntentParser(),
		Metrics:  metrics.NewMetrics(),
	}
	reg, err := engine.NewRegistry(stages.NewHandlers(deps)...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	dispatcher := engine.NewDispatcher(reg, classify.NewRegexClassifier(), st, metrics.NewMetrics())
	t.Cleanup(dispatcher.Close)

	hilManager := hil.NewManager(st, dispatcher)
	return NewServer(st, dispatcher, hilManager, messagebus.NoopBus{}), st
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	handler := srv.SetupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestPostMessageCreatesConversation(t *testing.T) {
	srv, st := testServer(t)
	handler := srv.SetupRoutes()

	body, _ := json.Marshal(postMessageRequest{
		MessageID: "msg-1",
		Text:      "hi, we need a venue",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/conv-1/messages", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var reply engine.Reply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("invalid reply: %v", err)
	}
	if reply.ConversationID != "conv-1" {
		t.Errorf("wrong conversation id: %s", reply.ConversationID)
	}
	if reply.Draft == "" {
		t.Error("expected an intake draft")
	}

	if _, err := st.Load(context.Background(), "conv-1"); err != nil {
		t.Errorf("conversation not persisted: %v", err)
	}
}

func TestGetConversation(t *testing.T) {
	srv, st := testServer(t)
	handler := srv.SetupRoutes()

	state := models.NewConversationState("conv-1")
	state.CurrentStage = models.StageNegotiation
	if err := st.Save(context.Background(), state); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/conv-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got models.ConversationState
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if got.CurrentStage != models.StageNegotiation {
		t.Errorf("wrong stage: %v", got.CurrentStage)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	srv, _ := testServer(t)
	handler := srv.SetupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHilListAndApprove(t *testing.T) {
	srv, st := testServer(t)
	handler := srv.SetupRoutes()

	state := models.NewConversationState("conv-1")
	state.CurrentStage = models.StageOffer
	state.PendingHil = append(state.PendingHil, models.HilRequest{
		TaskID: "task-1",
		Stage:  models.StageOffer,
		Draft:  "the offer",
		Status: models.HilPending,
	})
	state.ThreadState = models.ThreadWaitingOnHIL
	if err := st.Save(context.Background(), state); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hil/tasks", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list failed: %d", rec.Code)
	}
	var tasks []hil.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Request.TaskID != "task-1" {
		t.Fatalf("unexpected task list: %+v", tasks)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/hil/tasks/task-1/approve", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve failed: %d: %s", rec.Code, rec.Body.String())
	}

	var reply engine.Reply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("invalid reply: %v", err)
	}
	if reply.Draft != "the offer" {
		t.Errorf("approved draft not released: %q", reply.Draft)
	}

	saved, _ := st.Load(context.Background(), "conv-1")
	if len(saved.PendingHil) != 0 {
		t.Errorf("task not cleared: %+v", saved.PendingHil)
	}
}

func TestHilReject(t *testing.T) {
	srv, st := testServer(t)
	handler := srv.SetupRoutes()

	state := models.NewConversationState("conv-1")
	state.CurrentStage = models.StageOffer
	state.PendingHil = append(state.PendingHil, models.HilRequest{
		TaskID: "task-1",
		Stage:  models.StageOffer,
		Draft:  "the offer",
		Status: models.HilPending,
	})
	if err := st.Save(context.Background(), state); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}

	body, _ := json.Marshal(rejectRequest{Notes: "add the weekend surcharge"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hil/tasks/task-1/reject", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reject failed: %d: %s", rec.Code, rec.Body.String())
	}

	saved, _ := st.Load(context.Background(), "conv-1")
	if saved.ManagerNotes != "add the weekend surcharge" {
		t.Errorf("notes not stored: %q", saved.ManagerNotes)
	}
}

func TestPostMessageValidation(t *testing.T) {
	srv, _ := testServer(t)
	handler := srv.SetupRoutes()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/conv-1/messages", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", rec.Code)
	}
}
