package stages

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jordanhubbard/venueflow/internal/engine"
	"github.com/jordanhubbard/venueflow/internal/hashguard"
	"github.com/jordanhubbard/venueflow/pkg/models"
)

// RoomAvailabilityHandler locks a room that covers the current requirements
// on the chosen date. When an already-locked room still fits and is still
// free, the handler forwards immediately without re-locking; that is the
// fast path a date change takes when the room survives it.
type RoomAvailabilityHandler struct {
	deps *Deps
}

func (h *RoomAvailabilityHandler) Stage() models.Stage { return models.StageRoomAvailability }

func (h *RoomAvailabilityHandler) Handle(ctx context.Context, state *models.ConversationState, msg engine.Message) (models.StageResult, error) {
	h.deps.plan(state, msg)

	if !state.DateConfirmed {
		return models.StageResult{NextStage: models.StagePtr(models.StageDateConfirmation)}, nil
	}

	state.RequirementsHash = hashguard.Requirements(state.Requirements, state.Participants)

	// Fast path: a kept lock survives when the room still fits the current
	// requirements and is free on the current date. The recorded evaluation
	// hash is no guide here, a date detour clears it; the lock is re-checked
	// against the live catalog and calendar and the hash refreshed.
	if state.LockedRoomID != "" && state.Facts["requested_room_id"] == "" {
		room, ok, err := h.deps.Rooms.Room(ctx, state.LockedRoomID)
		if err != nil {
			return models.StageResult{}, fmt.Errorf("room lookup %s: %w", state.LockedRoomID, err)
		}
		if ok && room.Capacity >= state.Participants {
			free, err := h.deps.Calendar.Available(ctx, state.LockedRoomID, state.ChosenDate)
			if err != nil {
				return models.StageResult{}, fmt.Errorf("calendar check for room %s: %w", state.LockedRoomID, err)
			}
			if free {
				state.RoomEvalHash = state.RequirementsHash
				log.Printf("[RoomAvailability] Conversation %s: room %s still fits on %s, keeping lock", state.ID, state.LockedRoomID, state.ChosenDate)
				return models.StageResult{NextStage: models.StagePtr(h.next(state))}, nil
			}
		}
		// The change killed the lock after all.
		state.LockedRoomID = ""
		state.RoomEvalHash = ""
	}

	candidate, err := h.pickRoom(ctx, state)
	if err != nil {
		return models.StageResult{}, err
	}
	if candidate == nil {
		alternatives, err := h.freeRooms(ctx, state)
		if err != nil {
			return models.StageResult{}, err
		}
		if len(alternatives) == 0 {
			return models.StageResult{
				Halt:        true,
				Draft:       fmt.Sprintf("Unfortunately nothing suitable is free on %s. Would another date work?", state.ChosenDate),
				ThreadState: models.ThreadAwaitClient,
			}, nil
		}
		return models.StageResult{
			Halt:        true,
			Draft:       fmt.Sprintf("That room isn't available on %s, but these are: %s. Any preference?", state.ChosenDate, strings.Join(alternatives, ", ")),
			ThreadState: models.ThreadAwaitClient,
		}, nil
	}

	state.LockedRoomID = candidate.ID
	state.RoomEvalHash = state.RequirementsHash
	delete(state.Facts, "requested_room_id")
	log.Printf("[RoomAvailability] Conversation %s: locked room %s (%s)", state.ID, candidate.ID, dateSummary(state))

	return models.StageResult{NextStage: models.StagePtr(h.next(state))}, nil
}

// next returns where the loop continues: back to the detour's caller when one
// is pending, forward to the offer stage otherwise.
func (h *RoomAvailabilityHandler) next(state *models.ConversationState) models.Stage {
	if caller, ok := state.Caller(); ok {
		return caller
	}
	return models.StageOffer
}

// pickRoom resolves the room to lock: an explicit client request first, then
// the smallest free room with enough capacity.
func (h *RoomAvailabilityHandler) pickRoom(ctx context.Context, state *models.ConversationState) (*Room, error) {
	if requested := state.Facts["requested_room_id"]; requested != "" {
		room, ok, err := h.deps.Rooms.Room(ctx, requested)
		if err != nil {
			return nil, fmt.Errorf("room lookup %s: %w", requested, err)
		}
		if !ok || room.Capacity < state.Participants {
			return nil, nil
		}
		free, err := h.deps.Calendar.Available(ctx, room.ID, state.ChosenDate)
		if err != nil {
			return nil, fmt.Errorf("calendar check for room %s: %w", room.ID, err)
		}
		if !free {
			return nil, nil
		}
		return &room, nil
	}

	rooms, err := h.deps.Rooms.Rooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("room catalog: %w", err)
	}
	var best *Room
	for i := range rooms {
		r := rooms[i]
		if r.Capacity < state.Participants {
			continue
		}
		free, err := h.deps.Calendar.Available(ctx, r.ID, state.ChosenDate)
		if err != nil {
			return nil, fmt.Errorf("calendar check for room %s: %w", r.ID, err)
		}
		if !free {
			continue
		}
		if best == nil || r.Capacity < best.Capacity {
			best = &r
		}
	}
	return best, nil
}

func (h *RoomAvailabilityHandler) freeRooms(ctx context.Context, state *models.ConversationState) ([]string, error) {
	rooms, err := h.deps.Rooms.Rooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("room catalog: %w", err)
	}
	var names []string
	for _, r := range rooms {
		if r.Capacity < state.Participants {
			continue
		}
		free, err := h.deps.Calendar.Available(ctx, r.ID, state.ChosenDate)
		if err != nil {
			return nil, fmt.Errorf("calendar check for room %s: %w", r.ID, err)
		}
		if free {
			names = append(names, r.Name)
		}
	}
	return names, nil
}
