package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticketflow/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const ticketColumns = `id,title,status,priority,COALESCE(owner,'') AS owner,COALESCE(description,'') AS description,
COALESCE(verification_command,'') AS verification_command,COALESCE(golden_image,'') AS golden_image,
verification_status,render_time_ms,render_time_diff,before_image,after_image,diff_image,created_at,updated_at`

func scanTicket(scan func(dest ...any) error) (domain.Ticket, error) {
	var t domain.Ticket
	var renderMs sql.NullFloat64
	var renderDiff, before, after, diff sql.NullString
	err := scan(&t.ID, &t.Title, &t.Status, &t.Priority, &t.Owner, &t.Description,
		&t.VerificationCommand, &t.GoldenImage,
		&t.VerificationStatus, &renderMs, &renderDiff, &before, &after, &diff,
		&t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if renderMs.Valid {
		t.Metrics = &domain.Metrics{RenderTimeMs: renderMs.Float64, RenderTimeDiff: renderDiff.String}
	}
	if before.Valid || after.Valid || diff.Valid {
		t.Artifacts = &domain.Artifacts{
			BeforeImage: before.String,
			AfterImage:  after.String,
			DiffImage:   diff.String,
		}
	}
	return t, nil
}

// ListTickets returns all tickets with their logs, ordered by id.
// Implements the board's TicketRepository port.
func (r Repo) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	return r.ListTicketsByStatus(ctx, "")
}

// ListTicketsByStatus filters by column; empty status returns everything.
func (r Repo) ListTicketsByStatus(ctx context.Context, status domain.Status) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logs, err := r.allLogs(ctx)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Logs = logs[res[i].ID]
	}
	return res, nil
}

func (r Repo) allLogs(ctx context.Context) (map[string][]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT ticket_id,line FROM ticket_logs ORDER BY ticket_id,seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]string{}
	for rows.Next() {
		var id, line string
		if err := rows.Scan(&id, &line); err != nil {
			return nil, err
		}
		out[id] = append(out[id], line)
	}
	return out, rows.Err()
}

// GetTicket returns one ticket with its log lines.
func (r Repo) GetTicket(ctx context.Context, id string) (domain.Ticket, error) {
	t, err := scanTicket(r.DB.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=?`, id).Scan)
	if err != nil {
		return t, err
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT line FROM ticket_logs WHERE ticket_id=? ORDER BY seq`, id)
	if err != nil {
		return t, err
	}
	defer rows.Close()
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return t, err
		}
		t.Logs = append(t.Logs, line)
	}
	return t, rows.Err()
}

func (r Repo) InsertTicket(ctx context.Context, t domain.Ticket) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO tickets(id,title,status,priority,owner,description,verification_command,golden_image,verification_status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Status, t.Priority, nullable(t.Owner), nullable(t.Description),
		nullable(t.VerificationCommand), nullable(t.GoldenImage), t.VerificationStatus, t.CreatedAt, t.UpdatedAt); err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	if err := insertLogsTx(ctx, tx, t.ID, t.Logs, 0); err != nil {
		return err
	}
	return tx.Commit()
}

// SetStatus persists a single column move. Implements the board port.
func (r Repo) SetStatus(ctx context.Context, id string, status domain.Status) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx, `UPDATE tickets SET status=?,updated_at=? WHERE id=?`, status, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TicketUpdate carries the optional field updates a PATCH may apply.
type TicketUpdate struct {
	Title               *string
	Owner               *string
	Priority            *domain.Priority
	Description         *string
	VerificationCommand *string
	GoldenImage         *string
}

func (r Repo) UpdateTicket(ctx context.Context, id string, u TicketUpdate) error {
	var (
		fields []string
		args   []any
	)
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.Owner != nil {
		fields = append(fields, "owner=?")
		args = append(args, nullable(*u.Owner))
	}
	if u.Priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, *u.Priority)
	}
	if u.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*u.Description))
	}
	if u.VerificationCommand != nil {
		fields = append(fields, "verification_command=?")
		args = append(args, nullable(*u.VerificationCommand))
	}
	if u.GoldenImage != nil {
		fields = append(fields, "golden_image=?")
		args = append(args, nullable(*u.GoldenImage))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE tickets SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MergeVerification writes the verification dimension of a ticket back:
// status, metrics, artifacts, and the full log sequence. Board status is left
// alone; moves own that column. Implements the board port.
func (r Repo) MergeVerification(ctx context.Context, t domain.Ticket) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var renderMs any
	var renderDiff any
	if t.Metrics != nil {
		renderMs = t.Metrics.RenderTimeMs
		renderDiff = nullable(t.Metrics.RenderTimeDiff)
	}
	var before, after, diff any
	if t.Artifacts != nil {
		before = nullable(t.Artifacts.BeforeImage)
		after = nullable(t.Artifacts.AfterImage)
		diff = nullable(t.Artifacts.DiffImage)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `UPDATE tickets SET verification_status=?,render_time_ms=?,render_time_diff=?,before_image=?,after_image=?,diff_image=?,updated_at=? WHERE id=?`,
		t.VerificationStatus, renderMs, renderDiff, before, after, diff, now, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ticket_logs WHERE ticket_id=?`, t.ID); err != nil {
		return err
	}
	if err := insertLogsTx(ctx, tx, t.ID, t.Logs, 0); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendLog adds one line at the end of a ticket's log.
func (r Repo) AppendLog(ctx context.Context, id, line string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var next int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq)+1,0) FROM ticket_logs WHERE ticket_id=?`, id).Scan(&next); err != nil {
		return err
	}
	if err := insertLogsTx(ctx, tx, id, []string{line}, next); err != nil {
		return err
	}
	return tx.Commit()
}

func insertLogsTx(ctx context.Context, tx *sql.Tx, ticketID string, lines []string, startSeq int) error {
	for i, line := range lines {
		if _, err := tx.ExecContext(ctx, `INSERT INTO ticket_logs(ticket_id,seq,line) VALUES (?,?,?)`, ticketID, startSeq+i, line); err != nil {
			return fmt.Errorf("insert log line: %w", err)
		}
	}
	return nil
}

func (r Repo) DeleteTicket(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM tickets WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountTicketsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status,COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// LatestEvents returns the newest events, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, ticketID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if ticketID != "" {
		clauses = append(clauses, "ticket_id=?")
		args = append(args, ticketID)
	}
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)
	query := `SELECT id,ts,type,COALESCE(ticket_id,'') AS ticket_id,actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.TicketID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
