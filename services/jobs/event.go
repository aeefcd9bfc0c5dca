package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event is a named occurrence that starts a job function run.
type Event struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"ts"`
}

// NewEvent marshals data and stamps the event with a fresh ID.
func NewEvent(name string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        uuid.NewString(),
		Name:      name,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Input is what a Function receives for a single attempt.
type Input struct {
	Event   Event
	Attempt int
	Step    StepRunner
}

// Function handles events of one name. The returned value is the run output.
type Function func(ctx context.Context, in Input) (any, error)

// Client sends events to whatever runs the functions.
type Client interface {
	Send(ctx context.Context, ev Event) error
}

// IsNonRetriable reports whether any error in err's chain asks not to be retried.
func IsNonRetriable(err error) bool {
	var nr interface{ NonRetriable() bool }
	if errors.As(err, &nr) {
		return nr.NonRetriable()
	}
	return false
}

// NonRetriable marks err so the runner stops retrying.
func NonRetriable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetriableError{err: err}
}

type nonRetriableError struct {
	err error
}

func (e *nonRetriableError) Error() string      { return e.err.Error() }
func (e *nonRetriableError) Unwrap() error      { return e.err }
func (e *nonRetriableError) NonRetriable() bool { return true }
