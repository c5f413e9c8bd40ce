package board

import (
	"errors"
	"fmt"

	"ticketflow/internal/domain"
)

var (
	// ErrNotFound means the operation referenced an unknown ticket id.
	ErrNotFound = errors.New("ticket not found")

	// ErrAlreadyRunning means a verification run is already in flight for the
	// ticket. Callers may treat it as an idempotent no-op.
	ErrAlreadyRunning = errors.New("verification already running")
)

// PersistenceError reports that a repository write failed after the optimistic
// local change was applied. The snapshot is not rolled back; reconciliation is
// the caller's policy decision.
type PersistenceError struct {
	TicketID string
	Status   domain.Status
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist move of %s to %s: %v", e.TicketID, e.Status, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// InvocationError reports that the verification runner could not be started or
// reached. Distinct from a completed-but-failing verification.
type InvocationError struct {
	TicketID string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke verification for %s: %v", e.TicketID, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
