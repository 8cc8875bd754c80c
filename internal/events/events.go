package events

import (
	"context"
	"fmt"

	"github.com/tuberip/tuberip/internal/model"
)

// Conn is a live connection to the backend event stream.
type Conn interface {
	// ReadMessage blocks until a frame is received. After Close it must return an error.
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer knows how to connect to the event stream of a backend endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// State is the connection state of the event channel, it's only informative.
type State struct {
	Connected bool
	SessionID string
	Endpoint  string
}

// ProgressHandler receives the task updates streamed by the backend.
type ProgressHandler func(taskID string, u model.TaskUpdate)

// StateHandler receives the connection state changes.
type StateHandler func(s State)

// PartialEventError is a field of an event that could not be decoded and was dropped.
type PartialEventError struct {
	TaskID string
	Field  string
	Err    error
}

func (e PartialEventError) Error() string {
	return fmt.Sprintf("task %q event field %q dropped: %s", e.TaskID, e.Field, e.Err)
}

func (e PartialEventError) Unwrap() error { return e.Err }
