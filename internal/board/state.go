package board

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ticketflow/internal/domain"
)

// StateMachine holds the authoritative in-memory view of tickets and their
// column membership. Moves apply to the snapshot immediately (optimistic
// update); persistence happens asynchronously and never blocks a read.
//
// All mutations run under mu, which the orchestrator shares so that ticket
// state and the active-run set change atomically with respect to readers.
type StateMachine struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	order   []string

	repo TicketRepository
	Now  func() time.Time
}

func NewStateMachine(repo TicketRepository) *StateMachine {
	return &StateMachine{
		tickets: map[string]*domain.Ticket{},
		repo:    repo,
		Now:     time.Now,
	}
}

// Load replaces the entire snapshot. No partial-merge semantics.
func (s *StateMachine) Load(tickets []domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(tickets)
}

// loadLocked replaces the snapshot. Caller must hold mu.
func (s *StateMachine) loadLocked(tickets []domain.Ticket) {
	s.tickets = make(map[string]*domain.Ticket, len(tickets))
	s.order = make([]string, 0, len(tickets))
	for i := range tickets {
		t := cloneTicket(tickets[i])
		if _, dup := s.tickets[t.ID]; dup {
			continue
		}
		s.tickets[t.ID] = &t
		s.order = append(s.order, t.ID)
	}
}

// MoveHandle resolves once the repository write for a move has settled.
// Callers that only care about the optimistic state may discard it.
type MoveHandle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the persistence call settles or ctx is done. A nil return
// means the durable store matches the snapshot.
func (h *MoveHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MoveTicket applies the status change to the snapshot synchronously and
// persists it in the background. The returned error covers only immediate
// failures (unknown id, invalid status); persistence failures surface through
// the handle as *PersistenceError and do not roll the snapshot back.
//
// Successive moves on one ticket hit the snapshot in call order. Their
// repository writes are not coalesced or cancelled, so under latency the last
// write to the store wins; that race is an accepted limitation.
func (s *StateMachine) MoveTicket(ctx context.Context, id string, status domain.Status) (*MoveHandle, error) {
	if !domain.ValidStatus(status) {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	s.mu.Lock()
	t, ok := s.tickets[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = s.Now().UTC().Format(time.RFC3339)
	s.mu.Unlock()

	h := &MoveHandle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		if err := s.repo.SetStatus(ctx, id, status); err != nil {
			h.err = &PersistenceError{TicketID: id, Status: status, Err: err}
		}
	}()
	return h, nil
}

// Column returns the tickets currently in the given column, in load order.
// Order is stable across reads that do not change membership.
func (s *StateMachine) Column(status domain.Status) []domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ticket
	for _, id := range s.order {
		if t := s.tickets[id]; t != nil && t.Status == status {
			out = append(out, cloneTicket(*t))
		}
	}
	return out
}

// Get returns a copy of the ticket, or ErrNotFound.
func (s *StateMachine) Get(id string) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, ErrNotFound
	}
	return cloneTicket(*t), nil
}

// apply mutates a ticket in place. Caller must hold mu.
func (s *StateMachine) apply(id string, fn func(*domain.Ticket)) bool {
	t, ok := s.tickets[id]
	if !ok {
		return false
	}
	fn(t)
	return true
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	out := t
	if t.Metrics != nil {
		m := *t.Metrics
		out.Metrics = &m
	}
	if t.Artifacts != nil {
		a := *t.Artifacts
		out.Artifacts = &a
	}
	if t.Logs != nil {
		out.Logs = append([]string(nil), t.Logs...)
	}
	return out
}
