package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is by callers that only need the class.
var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrTerminalState     = errors.New("terminal state")
)

// InvalidTransitionError is returned when the requested status is not in the
// allowed next states for the current status and role.
type InvalidTransitionError struct {
	PanelID string
	From    Status
	To      Status
	Role    Role
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("panel %s: role %s cannot move %s to %s", e.PanelID, e.Role, e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// TerminalStateError is returned for any transition out of a terminal status.
type TerminalStateError struct {
	PanelID string
	Status  Status
}

func (e TerminalStateError) Error() string {
	return fmt.Sprintf("panel %s is in terminal status %s", e.PanelID, e.Status)
}

// Is matches ErrTerminalState.
func (e TerminalStateError) Is(target error) bool { return target == ErrTerminalState }

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
