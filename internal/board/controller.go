package board

import (
	"context"

	"ticketflow/internal/domain"
)

// Controller is the façade the presentation layer talks to. It owns no state
// of its own; it composes the state machine and the orchestrator and keeps
// the fixed column order.
type Controller struct {
	state *StateMachine
	orch  *Orchestrator
}

// NewController builds a controller over the given collaborators and loads the
// initial snapshot from the repository.
func NewController(ctx context.Context, repo TicketRepository, runner VerificationRunner, events EventSink, actorID string) (*Controller, error) {
	sm := NewStateMachine(repo)
	tickets, err := repo.ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	sm.Load(tickets)
	return &Controller{
		state: sm,
		orch:  NewOrchestrator(sm, runner, repo, events, actorID),
	}, nil
}

// Column is one rendered board column.
type Column struct {
	Status  domain.Status   `json:"status"`
	Tickets []domain.Ticket `json:"tickets"`
}

// Board projects the snapshot into columns in the fixed order
// todo, active, review, done.
func (c *Controller) Board() []Column {
	out := make([]Column, 0, len(domain.Columns))
	for _, status := range domain.Columns {
		out = append(out, Column{Status: status, Tickets: c.state.Column(status)})
	}
	return out
}

// Ticket returns a copy of one ticket from the snapshot.
func (c *Controller) Ticket(id string) (domain.Ticket, error) {
	return c.state.Get(id)
}

// MoveTicket passes through to the state machine and records the move.
func (c *Controller) MoveTicket(ctx context.Context, id string, status domain.Status) (*MoveHandle, error) {
	h, err := c.state.MoveTicket(ctx, id, status)
	if err == nil {
		c.orch.appendEvent(ctx, "ticket.moved", id, map[string]any{"status": string(status)})
	}
	return h, err
}

// RunVerification passes through to the orchestrator.
func (c *Controller) RunVerification(ctx context.Context, id string) (*RunHandle, error) {
	return c.orch.RunVerification(ctx, id)
}

// IsRunning reports whether a verification run is in flight for the ticket.
func (c *Controller) IsRunning(id string) bool {
	return c.orch.IsRunning(id)
}

// Reload replaces the snapshot from the repository. Used after out-of-band
// edits (ticket created or updated through the repo directly). The snapshot
// replace and the running-status reapplication happen in one critical section
// so a reader never observes an in-flight run as settled.
func (c *Controller) Reload(ctx context.Context) error {
	tickets, err := c.state.repo.ListTickets(ctx)
	if err != nil {
		return err
	}
	c.state.mu.Lock()
	c.state.loadLocked(tickets)
	c.orch.reapplyRunning()
	c.state.mu.Unlock()
	return nil
}
