package board_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ticketflow/internal/board"
	"ticketflow/internal/domain"
)

const runningLine = "[verification] running..."

type fakeRepo struct {
	mu      sync.Mutex
	tickets []domain.Ticket

	setStatusErr  error
	setStatusGate chan struct{} // non-nil: SetStatus blocks until closed
	moves         []string

	mergeErr error
	merged   []domain.Ticket
}

func (f *fakeRepo) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Ticket, len(f.tickets))
	copy(out, f.tickets)
	return out, nil
}

func (f *fakeRepo) SetStatus(ctx context.Context, id string, status domain.Status) error {
	if f.setStatusGate != nil {
		<-f.setStatusGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setStatusErr != nil {
		return f.setStatusErr
	}
	f.moves = append(f.moves, fmt.Sprintf("%s:%s", id, status))
	return nil
}

func (f *fakeRepo) MergeVerification(ctx context.Context, t domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeErr != nil {
		return f.mergeErr
	}
	f.merged = append(f.merged, t)
	return nil
}

func (f *fakeRepo) movesCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.moves)
}

type fakeRunner struct {
	started chan string
	release chan struct{}
	result  domain.VerificationResult
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, t domain.Ticket) (domain.VerificationResult, error) {
	if f.started != nil {
		f.started <- t.ID
	}
	if f.release != nil {
		<-f.release
	}
	return f.result, f.err
}

func seedTickets() []domain.Ticket {
	mk := func(id, title string, status domain.Status) domain.Ticket {
		return domain.Ticket{
			ID:                 id,
			Title:              title,
			Status:             status,
			Priority:           domain.PriorityMedium,
			VerificationStatus: domain.VerificationPending,
			CreatedAt:          "2026-01-01T00:00:00Z",
			UpdatedAt:          "2026-01-01T00:00:00Z",
		}
	}
	return []domain.Ticket{
		mk("t-1", "first", domain.StatusTodo),
		mk("t-2", "second", domain.StatusTodo),
		mk("t-3", "third", domain.StatusActive),
	}
}

func newTestController(t *testing.T, repo *fakeRepo, run board.VerificationRunner) *board.Controller {
	t.Helper()
	ctrl, err := board.NewController(context.Background(), repo, run, nil, "tester")
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return ctrl
}

func TestBoardFixedColumnOrder(t *testing.T) {
	repo := &fakeRepo{tickets: seedTickets()}
	ctrl := newTestController(t, repo, &fakeRunner{})
	cols := ctrl.Board()
	want := []domain.Status{domain.StatusTodo, domain.StatusActive, domain.StatusReview, domain.StatusDone}
	if len(cols) != len(want) {
		t.Fatalf("got %d columns, want %d", len(cols), len(want))
	}
	for i, col := range cols {
		if col.Status != want[i] {
			t.Fatalf("column %d is %s, want %s", i, col.Status, want[i])
		}
	}
	if len(cols[0].Tickets) != 2 || cols[0].Tickets[0].ID != "t-1" || cols[0].Tickets[1].ID != "t-2" {
		t.Fatalf("todo column out of order: %+v", cols[0].Tickets)
	}
	if len(cols[2].Tickets) != 0 || len(cols[3].Tickets) != 0 {
		t.Fatalf("review/done should be empty")
	}
}

func TestMoveTicketOptimistic(t *testing.T) {
	gate := make(chan struct{})
	repo := &fakeRepo{tickets: seedTickets(), setStatusGate: gate}
	ctrl := newTestController(t, repo, &fakeRunner{})

	h, err := ctrl.MoveTicket(context.Background(), "t-1", domain.StatusActive)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	// Snapshot reflects the move while the repository write is still stalled.
	got, err := ctrl.Ticket("t-1")
	if err != nil || got.Status != domain.StatusActive {
		t.Fatalf("ticket after move: %+v, %v", got, err)
	}
	if n := repo.movesCount(); n != 0 {
		t.Fatalf("persistence ran early: %d writes", n)
	}
	close(gate)
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if n := repo.movesCount(); n != 1 {
		t.Fatalf("want 1 write, got %d", n)
	}
}

func TestMoveTicketPersistenceFailureKeepsSnapshot(t *testing.T) {
	repo := &fakeRepo{tickets: seedTickets(), setStatusErr: errors.New("disk full")}
	ctrl := newTestController(t, repo, &fakeRunner{})

	h, err := ctrl.MoveTicket(context.Background(), "t-1", domain.StatusDone)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	err = h.Wait(context.Background())
	var pe *board.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("want PersistenceError, got %v", err)
	}
	if pe.TicketID != "t-1" || pe.Status != domain.StatusDone {
		t.Fatalf("error detail: %+v", pe)
	}
	// No rollback: the snapshot keeps the optimistic state.
	got, _ := ctrl.Ticket("t-1")
	if got.Status != domain.StatusDone {
		t.Fatalf("snapshot rolled back to %s", got.Status)
	}
}

func TestMoveTicketValidation(t *testing.T) {
	repo := &fakeRepo{tickets: seedTickets()}
	ctrl := newTestController(t, repo, &fakeRunner{})

	if _, err := ctrl.MoveTicket(context.Background(), "t-1", domain.Status("backlog")); err == nil {
		t.Fatal("want error for invalid status")
	}
	if _, err := ctrl.MoveTicket(context.Background(), "ghost", domain.StatusDone); !errors.Is(err, board.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMovesToDoneNeverBlocked(t *testing.T) {
	repo := &fakeRepo{tickets: seedTickets()}
	ctrl := newTestController(t, repo, &fakeRunner{})
	// A pending (never verified) ticket moves straight to done.
	h, err := ctrl.MoveTicket(context.Background(), "t-2", domain.StatusDone)
	if err != nil {
		t.Fatalf("move to done: %v", err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestVerificationSingleFlight(t *testing.T) {
	run := &fakeRunner{
		started: make(chan string, 1),
		release: make(chan struct{}),
		result:  domain.VerificationResult{Success: true, Stdout: "ok\n", DurationMs: 5},
	}
	repo := &fakeRepo{tickets: seedTickets()}
	ctrl := newTestController(t, repo, run)

	h, err := ctrl.RunVerification(context.Background(), "t-3")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	<-run.started

	if !ctrl.IsRunning("t-3") {
		t.Fatal("IsRunning false during run")
	}
	got, _ := ctrl.Ticket("t-3")
	if got.VerificationStatus != domain.VerificationRunning {
		t.Fatalf("status during run: %s", got.VerificationStatus)
	}
	if len(got.Logs) == 0 || got.Logs[len(got.Logs)-1] != runningLine {
		t.Fatalf("missing running log line: %v", got.Logs)
	}

	if _, err := ctrl.RunVerification(context.Background(), "t-3"); !errors.Is(err, board.ErrAlreadyRunning) {
		t.Fatalf("second run: want ErrAlreadyRunning, got %v", err)
	}

	close(run.release)
	if _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if ctrl.IsRunning("t-3") {
		t.Fatal("IsRunning true after run settled")
	}
	got, _ = ctrl.Ticket("t-3")
	if got.VerificationStatus != domain.VerificationSuccess {
		t.Fatalf("status after run: %s", got.VerificationStatus)
	}

	// Rerun after a terminated run is allowed.
	run.release = nil
	h2, err := ctrl.RunVerification(context.Background(), "t-3")
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	<-run.started
	if _, err := h2.Wait(context.Background()); err != nil {
		t.Fatalf("rerun wait: %v", err)
	}
}

func TestVerificationMergesResult(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"before.png", "after.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("png"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	run := &fakeRunner{
		result: domain.VerificationResult{
			Success:       false,
			Stdout:        "line one\nline two\n",
			Stderr:        "boom\n",
			ArtifactsPath: dir,
			Metrics:       &domain.Metrics{RenderTimeMs: 12.5, RenderTimeDiff: "+2.1ms"},
			DurationMs:    42,
		},
	}
	seed := seedTickets()
	seed[0].Logs = []string{"created"}
	repo := &fakeRepo{tickets: seed}
	ctrl := newTestController(t, repo, run)

	h, err := ctrl.RunVerification(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	got, _ := ctrl.Ticket("t-1")
	if got.VerificationStatus != domain.VerificationFailure {
		t.Fatalf("status: %s", got.VerificationStatus)
	}
	wantLogs := []string{
		"created",
		"line one",
		"line two",
		"--- stderr ---",
		"boom",
		"[verification] FAIL in 42ms",
	}
	if len(got.Logs) != len(wantLogs) {
		t.Fatalf("logs: %v", got.Logs)
	}
	for i := range wantLogs {
		if got.Logs[i] != wantLogs[i] {
			t.Fatalf("log %d: %q want %q", i, got.Logs[i], wantLogs[i])
		}
	}
	if got.Metrics == nil || got.Metrics.RenderTimeMs != 12.5 {
		t.Fatalf("metrics: %+v", got.Metrics)
	}
	if got.Artifacts == nil || got.Artifacts.BeforeImage == "" || got.Artifacts.AfterImage == "" {
		t.Fatalf("artifacts: %+v", got.Artifacts)
	}
	if got.Artifacts.DiffImage != "" {
		t.Fatalf("diff slot should be unset: %+v", got.Artifacts)
	}

	// Merged record reached the repository.
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.merged) != 1 || repo.merged[0].VerificationStatus != domain.VerificationFailure {
		t.Fatalf("merge write: %+v", repo.merged)
	}
}

func TestInvocationFailureReverts(t *testing.T) {
	seed := seedTickets()
	seed[2].VerificationStatus = domain.VerificationSuccess
	seed[2].Logs = []string{"older run"}
	run := &fakeRunner{err: errors.New("sh: not found")}
	repo := &fakeRepo{tickets: seed}
	ctrl := newTestController(t, repo, run)

	h, err := ctrl.RunVerification(context.Background(), "t-3")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	_, err = h.Wait(context.Background())
	var ie *board.InvocationError
	if !errors.As(err, &ie) || ie.TicketID != "t-3" {
		t.Fatalf("want InvocationError, got %v", err)
	}

	got, _ := ctrl.Ticket("t-3")
	if got.VerificationStatus != domain.VerificationSuccess {
		t.Fatalf("status not reverted: %s", got.VerificationStatus)
	}
	if len(got.Logs) != 1 || got.Logs[0] != "older run" {
		t.Fatalf("logs not restored: %v", got.Logs)
	}
	if ctrl.IsRunning("t-3") {
		t.Fatal("run slot not released")
	}
	// The slot is free again after the failed invocation.
	if _, err := ctrl.RunVerification(context.Background(), "t-3"); err == nil {
		// the second run fails the same way; only the admission matters here
	} else {
		t.Fatalf("rerun after invocation failure: %v", err)
	}
}

func TestMovesIndependentOfRunningVerification(t *testing.T) {
	run := &fakeRunner{
		started: make(chan string, 1),
		release: make(chan struct{}),
		result:  domain.VerificationResult{Success: true},
	}
	repo := &fakeRepo{tickets: seedTickets()}
	ctrl := newTestController(t, repo, run)

	h, err := ctrl.RunVerification(context.Background(), "t-3")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	<-run.started

	mh, err := ctrl.MoveTicket(context.Background(), "t-3", domain.StatusReview)
	if err != nil {
		t.Fatalf("move during run: %v", err)
	}
	if err := mh.Wait(context.Background()); err != nil {
		t.Fatalf("move wait: %v", err)
	}
	got, _ := ctrl.Ticket("t-3")
	if got.Status != domain.StatusReview || got.VerificationStatus != domain.VerificationRunning {
		t.Fatalf("after move during run: %+v", got)
	}

	close(run.release)
	if _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	got, _ = ctrl.Ticket("t-3")
	if got.Status != domain.StatusReview {
		t.Fatalf("merge touched the column: %s", got.Status)
	}
}

func TestReloadPreservesRunningStatus(t *testing.T) {
	run := &fakeRunner{
		started: make(chan string, 1),
		release: make(chan struct{}),
		result:  domain.VerificationResult{Success: true},
	}
	repo := &fakeRepo{tickets: seedTickets()}
	ctrl := newTestController(t, repo, run)

	h, err := ctrl.RunVerification(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	<-run.started

	// A reload pulls the stored (pending) state; the in-flight run must keep
	// its running marker.
	if err := ctrl.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, _ := ctrl.Ticket("t-1")
	if got.VerificationStatus != domain.VerificationRunning {
		t.Fatalf("reload dropped running status: %s", got.VerificationStatus)
	}

	close(run.release)
	if _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestReloadAtomicWhileRunInFlight(t *testing.T) {
	run := &fakeRunner{
		started: make(chan string, 1),
		release: make(chan struct{}),
		result:  domain.VerificationResult{Success: true},
	}
	repo := &fakeRepo{tickets: seedTickets()}
	ctrl := newTestController(t, repo, run)

	h, err := ctrl.RunVerification(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	<-run.started

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = ctrl.Reload(context.Background())
		}
	}()

	// While reloads churn, the in-flight run must never be visible as settled.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if !ctrl.IsRunning("t-1") {
			t.Fatal("run slot lost during reload")
		}
		got, err := ctrl.Ticket("t-1")
		if err != nil {
			t.Fatalf("ticket: %v", err)
		}
		if got.VerificationStatus != domain.VerificationRunning {
			t.Fatalf("in-flight run observed as %s during reload", got.VerificationStatus)
		}
	}
	close(stop)
	wg.Wait()

	close(run.release)
	if _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestMergeResultPassLine(t *testing.T) {
	in := domain.Ticket{ID: "x", Logs: []string{runningLine}}
	out := board.MergeResult(in, domain.VerificationResult{Success: true, DurationMs: 7})
	if out.VerificationStatus != domain.VerificationSuccess {
		t.Fatalf("status: %s", out.VerificationStatus)
	}
	if len(out.Logs) != 1 || out.Logs[0] != "[verification] PASS in 7ms" {
		t.Fatalf("logs: %v", out.Logs)
	}
	if len(in.Logs) != 1 || in.Logs[0] != runningLine {
		t.Fatal("input mutated")
	}
}

func TestMoveHandleWaitHonorsContext(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	repo := &fakeRepo{tickets: seedTickets(), setStatusGate: gate}
	ctrl := newTestController(t, repo, &fakeRunner{})

	h, err := ctrl.MoveTicket(context.Background(), "t-1", domain.StatusActive)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline error, got %v", err)
	}
}
