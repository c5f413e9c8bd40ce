package server

import (
	"ticketflow/internal/board"
	"ticketflow/internal/domain"
)

// Request payloads

type CreateTicketRequest struct {
	ID                  string `json:"id,omitempty"`
	Title               string `json:"title"`
	Status              string `json:"status,omitempty" enum:"todo,active,review,done,"`
	Priority            string `json:"priority,omitempty" enum:"low,medium,high,"`
	Owner               string `json:"owner,omitempty"`
	Description         string `json:"description,omitempty"`
	VerificationCommand string `json:"verification_command,omitempty"`
	GoldenImage         string `json:"golden_image,omitempty"`
}

type UpdateTicketRequest struct {
	Title               *string `json:"title,omitempty"`
	Priority            *string `json:"priority,omitempty" enum:"low,medium,high"`
	Owner               *string `json:"owner,omitempty"`
	Description         *string `json:"description,omitempty"`
	VerificationCommand *string `json:"verification_command,omitempty"`
	GoldenImage         *string `json:"golden_image,omitempty"`
}

type MoveTicketRequest struct {
	Status string `json:"status" enum:"todo,active,review,done"`
}

type UploadAssetRequest struct {
	Name string `json:"name"`
	Data []byte `json:"data"` // base64 in JSON
}

// Response payloads

type TicketResponse struct {
	ID                  string            `json:"id"`
	Title               string            `json:"title"`
	Status              string            `json:"status" enum:"todo,active,review,done"`
	Priority            string            `json:"priority" enum:"low,medium,high"`
	Owner               string            `json:"owner,omitempty"`
	Description         string            `json:"description,omitempty"`
	VerificationCommand string            `json:"verification_command,omitempty"`
	GoldenImage         string            `json:"golden_image,omitempty"`
	VerificationStatus  string            `json:"verification_status" enum:"pending,running,success,failure"`
	Running             bool              `json:"running"`
	Metrics             *domain.Metrics   `json:"metrics,omitempty"`
	Artifacts           *domain.Artifacts `json:"artifacts,omitempty"`
	Logs                []string          `json:"logs,omitempty"`
	CreatedAt           string            `json:"created_at" format:"date-time"`
	UpdatedAt           string            `json:"updated_at" format:"date-time"`
}

type ColumnResponse struct {
	Status  string           `json:"status" enum:"todo,active,review,done"`
	Tickets []TicketResponse `json:"tickets"`
}

type BoardResponse struct {
	Columns []ColumnResponse `json:"columns"`
}

type VerificationRunResponse struct {
	RunID     string `json:"run_id"`
	TicketID  string `json:"ticket_id"`
	StartedAt string `json:"started_at" format:"date-time"`
}

type VerificationStateResponse struct {
	TicketID           string            `json:"ticket_id"`
	VerificationStatus string            `json:"verification_status" enum:"pending,running,success,failure"`
	Running            bool              `json:"running"`
	Metrics            *domain.Metrics   `json:"metrics,omitempty"`
	Artifacts          *domain.Artifacts `json:"artifacts,omitempty"`
	Logs               []string          `json:"logs,omitempty"`
}

type AssetResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at,omitempty" format:"date-time"`
}

func ticketResponse(t domain.Ticket, running bool) TicketResponse {
	return TicketResponse{
		ID:                  t.ID,
		Title:               t.Title,
		Status:              string(t.Status),
		Priority:            string(t.Priority),
		Owner:               t.Owner,
		Description:         t.Description,
		VerificationCommand: t.VerificationCommand,
		GoldenImage:         t.GoldenImage,
		VerificationStatus:  string(t.VerificationStatus),
		Running:             running,
		Metrics:             t.Metrics,
		Artifacts:           t.Artifacts,
		Logs:                t.Logs,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

func verificationStateResponse(t domain.Ticket, running bool) VerificationStateResponse {
	return VerificationStateResponse{
		TicketID:           t.ID,
		VerificationStatus: string(t.VerificationStatus),
		Running:            running,
		Metrics:            t.Metrics,
		Artifacts:          t.Artifacts,
		Logs:               t.Logs,
	}
}

func boardResponse(cols []board.Column, ctrl *board.Controller) BoardResponse {
	out := BoardResponse{Columns: make([]ColumnResponse, 0, len(cols))}
	for _, col := range cols {
		cr := ColumnResponse{Status: string(col.Status), Tickets: make([]TicketResponse, 0, len(col.Tickets))}
		for _, t := range col.Tickets {
			cr.Tickets = append(cr.Tickets, ticketResponse(t, ctrl.IsRunning(t.ID)))
		}
		out.Columns = append(out.Columns, cr)
	}
	return out
}

func assetResponse(a domain.AssetRef) AssetResponse {
	return AssetResponse{
		ID:        a.ID,
		Name:      a.Name,
		Type:      a.Type,
		URL:       a.URL,
		CreatedAt: a.CreatedAt,
	}
}
