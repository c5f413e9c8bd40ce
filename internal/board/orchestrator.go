package board

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"ticketflow/internal/domain"
)

// runningLogLine is the synthetic entry that marks an in-flight run. It is
// appended when a run starts and removed when the run settles.
const runningLogLine = "[verification] running..."

// Artifact slot names a runner's artifact directory is scanned for.
const (
	beforeImageName = "before.png"
	afterImageName  = "after.png"
	diffImageName   = "diff.png"
)

// EventSink receives workflow events. Nil disables event logging.
type EventSink interface {
	Append(ctx context.Context, evtType, ticketID, actorID string, payload map[string]any) error
}

// Orchestrator runs at most one concurrent verification per ticket and merges
// asynchronous results back into the snapshot. It shares the state machine's
// lock so invariant "verification_status == running iff a run is in flight"
// holds at every observable point.
type Orchestrator struct {
	sm     *StateMachine
	runner VerificationRunner
	repo   TicketRepository
	events EventSink
	actor  string

	runs map[string]*RunHandle

	Now func() time.Time
}

func NewOrchestrator(sm *StateMachine, runner VerificationRunner, repo TicketRepository, events EventSink, actorID string) *Orchestrator {
	return &Orchestrator{
		sm:     sm,
		runner: runner,
		repo:   repo,
		events: events,
		actor:  actorID,
		runs:   map[string]*RunHandle{},
		Now:    time.Now,
	}
}

// RunHandle tracks one verification run. Awaiting it is optional; the
// orchestrator merges the result regardless.
type RunHandle struct {
	Run domain.VerificationRun

	done   chan struct{}
	result domain.VerificationResult
	err    error
}

// Wait blocks until the run settles or ctx is done. The error is an
// *InvocationError when the runner could not be started, or a
// *PersistenceError when the merged record could not be written back.
func (h *RunHandle) Wait(ctx context.Context) (domain.VerificationResult, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return domain.VerificationResult{}, ctx.Err()
	}
}

// RunVerification starts a run for the ticket, or fails immediately with
// ErrAlreadyRunning (idempotent rejection, not queuing) or ErrNotFound.
// Rerunning after a terminated run is always allowed.
func (o *Orchestrator) RunVerification(ctx context.Context, id string) (*RunHandle, error) {
	o.sm.mu.Lock()
	if _, inFlight := o.runs[id]; inFlight {
		o.sm.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	t, ok := o.sm.tickets[id]
	if !ok {
		o.sm.mu.Unlock()
		return nil, ErrNotFound
	}
	prev := t.VerificationStatus
	t.VerificationStatus = domain.VerificationRunning
	t.Logs = append(t.Logs, runningLogLine)
	snapshot := cloneTicket(*t)

	h := &RunHandle{
		Run: domain.VerificationRun{
			ID:        uuid.New().String(),
			TicketID:  id,
			StartedAt: o.Now().UTC().Format(time.RFC3339),
		},
		done: make(chan struct{}),
	}
	o.runs[id] = h
	o.sm.mu.Unlock()

	o.appendEvent(ctx, "verification.started", id, map[string]any{"run_id": h.Run.ID})

	// The run is decoupled from the caller's context: abandoning the handle
	// must not cancel the execution. Timeout policy belongs to the runner.
	go o.execute(context.Background(), h, snapshot, prev)
	return h, nil
}

// reapplyRunning restores the running status on tickets with in-flight runs
// after a snapshot reload, keeping the running-iff-active-run invariant.
// Caller must hold the state machine's mutex so the reload and the
// reapplication are one atomic step for readers.
func (o *Orchestrator) reapplyRunning() {
	for id := range o.runs {
		o.sm.apply(id, func(t *domain.Ticket) {
			t.VerificationStatus = domain.VerificationRunning
			if len(t.Logs) == 0 || t.Logs[len(t.Logs)-1] != runningLogLine {
				t.Logs = append(t.Logs, runningLogLine)
			}
		})
	}
}

// IsRunning reports whether a run is in flight for the ticket.
func (o *Orchestrator) IsRunning(id string) bool {
	o.sm.mu.Lock()
	defer o.sm.mu.Unlock()
	_, ok := o.runs[id]
	return ok
}

func (o *Orchestrator) execute(ctx context.Context, h *RunHandle, snapshot domain.Ticket, prev domain.VerificationStatus) {
	defer close(h.done)
	id := snapshot.ID

	result, err := o.runner.Run(ctx, snapshot)

	o.sm.mu.Lock()
	delete(o.runs, id)
	if err != nil {
		// Failed invocation: no transition. The verification status reverts
		// to its pre-run value and only the synthetic line is removed.
		o.sm.apply(id, func(t *domain.Ticket) {
			t.VerificationStatus = prev
			t.Logs = removeLine(t.Logs, runningLogLine)
		})
		o.sm.mu.Unlock()
		h.err = &InvocationError{TicketID: id, Err: err}
		o.appendEvent(ctx, "verification.invocation_failed", id, map[string]any{"error": err.Error()})
		return
	}
	var merged domain.Ticket
	present := o.sm.apply(id, func(t *domain.Ticket) {
		*t = MergeResult(*t, result)
		merged = cloneTicket(*t)
	})
	if !present {
		// Snapshot was replaced without the ticket; merge against the result
		// alone so the durable record still receives the outcome.
		merged = MergeResult(snapshot, result)
	}
	o.sm.mu.Unlock()

	h.result = result
	if perr := o.repo.MergeVerification(ctx, merged); perr != nil {
		h.err = &PersistenceError{TicketID: id, Status: merged.Status, Err: perr}
	}
	o.appendEvent(ctx, "verification.completed", id, map[string]any{
		"run_id":      h.Run.ID,
		"success":     result.Success,
		"duration_ms": result.DurationMs,
	})
}

func (o *Orchestrator) appendEvent(ctx context.Context, evtType, ticketID string, payload map[string]any) {
	if o.events == nil {
		return
	}
	_ = o.events.Append(ctx, evtType, ticketID, o.actor, payload)
}

// MergeResult folds a terminal verification result into a ticket. It touches
// only the verification dimension: status, metrics, artifacts, and logs. The
// synthetic running line is replaced by the captured output, prior log entries
// stay untouched and ordered.
func MergeResult(t domain.Ticket, res domain.VerificationResult) domain.Ticket {
	out := cloneTicket(t)
	if res.Success {
		out.VerificationStatus = domain.VerificationSuccess
	} else {
		out.VerificationStatus = domain.VerificationFailure
	}
	out.Logs = removeLine(out.Logs, runningLogLine)
	if s := strings.TrimRight(res.Stdout, "\n"); s != "" {
		out.Logs = append(out.Logs, strings.Split(s, "\n")...)
	}
	if s := strings.TrimRight(res.Stderr, "\n"); s != "" {
		out.Logs = append(out.Logs, "--- stderr ---")
		out.Logs = append(out.Logs, strings.Split(s, "\n")...)
	}
	verdict := "FAIL"
	if res.Success {
		verdict = "PASS"
	}
	out.Logs = append(out.Logs, fmt.Sprintf("[verification] %s in %dms", verdict, res.DurationMs))
	if res.Metrics != nil {
		m := *res.Metrics
		out.Metrics = &m
	}
	if a := resolveArtifacts(res.ArtifactsPath); a != nil {
		out.Artifacts = a
	}
	return out
}

// resolveArtifacts maps an artifact directory onto the three expected slots.
// Absent files leave the corresponding field unset; an empty path yields nil.
func resolveArtifacts(dir string) *domain.Artifacts {
	if dir == "" {
		return nil
	}
	a := &domain.Artifacts{}
	if p := filepath.Join(dir, beforeImageName); fileExists(p) {
		a.BeforeImage = p
	}
	if p := filepath.Join(dir, afterImageName); fileExists(p) {
		a.AfterImage = p
	}
	if p := filepath.Join(dir, diffImageName); fileExists(p) {
		a.DiffImage = p
	}
	if *a == (domain.Artifacts{}) {
		return nil
	}
	return a
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func removeLine(logs []string, line string) []string {
	out := logs[:0]
	for _, l := range logs {
		if l != line {
			out = append(out, l)
		}
	}
	return out
}
