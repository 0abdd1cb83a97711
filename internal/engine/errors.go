package engine

import (
	"errors"
	"fmt"

	"github.com/jordanhubbard/venueflow/pkg/models"
)

// ErrUnknownStage marks a dispatch target with no registered handler.
var ErrUnknownStage = errors.New("unknown stage")

// HandlerError wraps a stage handler failure. The loop halts without
// persisting the working copy, so none of the failed handler's mutations are
// committed.
type HandlerError struct {
	Stage models.Stage
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("stage %v handler failed: %v", e.Stage, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
