package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrBotNotFound is returned when no flow graph exists for a bot ID.
var ErrBotNotFound = errors.New("bot not found")

// ErrInputRequired is returned when a waiting node is answered without input.
var ErrInputRequired = errors.New("input required")

// ErrInvalidBranchOption is returned when a branch selector matches no option.
var ErrInvalidBranchOption = errors.New("branch option not recognized")

// ErrStepLimit is returned when a run visits more nodes than the configured limit.
var ErrStepLimit = errors.New("step limit exceeded")

// ErrVersionConflict is returned by stores when a concurrent write was detected.
var ErrVersionConflict = errors.New("session was modified concurrently")

// InputError reports a rejected user response. The session is left unchanged.
type InputError struct {
	NodeID string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("node %s: %s", e.NodeID, e.Reason)
}

func (e *InputError) Unwrap() error {
	return e.Err
}
