package board

import (
	"context"

	"ticketflow/internal/domain"
)

// TicketRepository is the durable ticket store the board persists against.
// The board never reads back through it after the initial load; the in-memory
// snapshot stays authoritative for rendering.
type TicketRepository interface {
	ListTickets(ctx context.Context) ([]domain.Ticket, error)
	SetStatus(ctx context.Context, id string, status domain.Status) error
	MergeVerification(ctx context.Context, t domain.Ticket) error
}

// VerificationRunner executes a ticket's verification procedure and resolves
// exactly once per call. A returned error means the runner could not be
// invoked; a completed-but-failing verification is a result with Success=false.
type VerificationRunner interface {
	Run(ctx context.Context, t domain.Ticket) (domain.VerificationResult, error)
}

// AssetStore ingests uploaded files and returns stored references.
type AssetStore interface {
	Upload(ctx context.Context, data []byte, name string) (domain.AssetRef, error)
	List(ctx context.Context) ([]domain.AssetRef, error)
}
