package worker

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"ticketflow/internal/domain"
	ticketflowsdk "ticketflow/sdk/go"
)

// Worker polls the board for todo tickets owned by its agent, moves them
// through active, lets the agent command work the ticket, runs verification,
// and parks the ticket in review when it passes. A failed verification feeds
// its output back to the next agent attempt until the retry budget runs out.
type Worker struct {
	Client *ticketflowsdk.Client
	Agent  string
	// AgentCommand, when set, is the shell command run before each
	// verification attempt. The ticket and the previous attempt's output
	// reach it through TF_* environment variables.
	AgentCommand string
	// MaxRetries bounds verification attempts per ticket; <=0 means one.
	MaxRetries   int
	Workdir      string
	PollInterval time.Duration
	Logger       *log.Logger
}

func (w *Worker) logger() *log.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return log.Default()
}

func (w *Worker) owner() string {
	return domain.AgentOwnerPrefix + w.Agent
}

// Run polls until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	w.logger().Printf("worker %s polling every %s", w.owner(), interval)
	for {
		if err := w.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger().Printf("worker tick: %v", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// tick claims and processes at most one ticket so a slow verification does
// not starve the poll loop of fresh errors.
func (w *Worker) tick(ctx context.Context) error {
	tickets, err := w.Client.ListTickets(ctx, string(domain.StatusTodo))
	if err != nil {
		return err
	}
	for _, t := range tickets {
		if !strings.EqualFold(t.Owner, w.owner()) {
			continue
		}
		return w.process(ctx, t)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, t ticketflowsdk.Ticket) error {
	w.logger().Printf("worker %s picked ticket %s (%s)", w.owner(), t.ID, t.Title)
	if _, err := w.Client.MoveTicket(ctx, t.ID, string(domain.StatusActive)); err != nil {
		return err
	}
	attempts := w.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	var feedback string
	for attempt := 1; attempt <= attempts; attempt++ {
		if w.AgentCommand != "" {
			if err := w.runAgent(ctx, t, attempt, feedback); err != nil {
				return err
			}
		}
		if t.VerificationCommand == "" {
			// Nothing to verify; hand straight to review.
			_, err := w.Client.MoveTicket(ctx, t.ID, string(domain.StatusReview))
			return err
		}
		if _, err := w.Client.Verify(ctx, t.ID); err != nil {
			if ticketflowsdk.IsConflict(err) {
				// Someone else started a run; leave the ticket where it is.
				w.logger().Printf("ticket %s: verification already running", t.ID)
				return nil
			}
			return err
		}
		state, err := w.Client.WaitVerification(ctx, t.ID, w.PollInterval)
		if err != nil {
			return err
		}
		if state.VerificationStatus == "success" {
			w.logger().Printf("ticket %s verified, moving to review", t.ID)
			_, err := w.Client.MoveTicket(ctx, t.ID, string(domain.StatusReview))
			return err
		}
		feedback = strings.Join(state.Logs, "\n")
		w.logger().Printf("ticket %s verification %s (attempt %d/%d)", t.ID, state.VerificationStatus, attempt, attempts)
	}
	// Out of attempts. The ticket stays in active so the logs stay visible
	// where the work is.
	return nil
}

// runAgent shells out to the configured agent command. The previous attempt's
// verification output rides along in TF_FEEDBACK so the agent can react to
// the failure.
func (w *Worker) runAgent(ctx context.Context, t ticketflowsdk.Ticket, attempt int, feedback string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", w.AgentCommand)
	cmd.Dir = w.Workdir
	cmd.Env = append(os.Environ(),
		"TF_TICKET_ID="+t.ID,
		"TF_TICKET_TITLE="+t.Title,
		"TF_TICKET_DESCRIPTION="+t.Description,
		"TF_ATTEMPT="+strconv.Itoa(attempt),
		"TF_FEEDBACK="+feedback,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("agent command for %s (attempt %d): %w: %s", t.ID, attempt, err, bytes.TrimSpace(out))
	}
	return nil
}
