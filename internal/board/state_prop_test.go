package board_test

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"ticketflow/internal/board"
	"ticketflow/internal/domain"
)

// Any sequence of moves keeps the board a partition: every ticket sits in
// exactly one column and the column set never changes.
func TestMoveSequenceKeepsPartition(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "tickets")
		var seed []domain.Ticket
		for i := 0; i < n; i++ {
			seed = append(seed, domain.Ticket{
				ID:                 fmt.Sprintf("t-%d", i),
				Title:              fmt.Sprintf("ticket %d", i),
				Status:             rapid.SampledFrom(domain.Columns).Draw(rt, "seed_status"),
				Priority:           domain.PriorityMedium,
				VerificationStatus: domain.VerificationPending,
			})
		}
		repo := &fakeRepo{tickets: seed}
		ctrl, err := board.NewController(context.Background(), repo, &fakeRunner{}, nil, "prop")
		if err != nil {
			rt.Fatalf("controller: %v", err)
		}

		moves := rapid.IntRange(0, 20).Draw(rt, "moves")
		for i := 0; i < moves; i++ {
			id := fmt.Sprintf("t-%d", rapid.IntRange(0, n-1).Draw(rt, "ticket"))
			status := rapid.SampledFrom(domain.Columns).Draw(rt, "status")
			h, err := ctrl.MoveTicket(context.Background(), id, status)
			if err != nil {
				rt.Fatalf("move %s -> %s: %v", id, status, err)
			}
			if err := h.Wait(context.Background()); err != nil {
				rt.Fatalf("persist %s: %v", id, err)
			}

			cols := ctrl.Board()
			if len(cols) != len(domain.Columns) {
				rt.Fatalf("column count changed: %d", len(cols))
			}
			seen := map[string]int{}
			for ci, col := range cols {
				if col.Status != domain.Columns[ci] {
					rt.Fatalf("column %d became %s", ci, col.Status)
				}
				for _, tk := range col.Tickets {
					seen[tk.ID]++
					if tk.Status != col.Status {
						rt.Fatalf("ticket %s has status %s inside column %s", tk.ID, tk.Status, col.Status)
					}
				}
			}
			if len(seen) != n {
				rt.Fatalf("partition lost tickets: %d of %d", len(seen), n)
			}
			for id, count := range seen {
				if count != 1 {
					rt.Fatalf("ticket %s appears %d times", id, count)
				}
			}
		}
	})
}
