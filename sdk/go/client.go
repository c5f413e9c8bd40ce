package ticketflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Ticketflow HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. The returned client is safe for
// concurrent use.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Timeout:    10 * time.Second,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Ticket represents the API ticket model.
type Ticket struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Status              string     `json:"status"`
	Priority            string     `json:"priority"`
	Owner               string     `json:"owner,omitempty"`
	Description         string     `json:"description,omitempty"`
	VerificationCommand string     `json:"verification_command,omitempty"`
	GoldenImage         string     `json:"golden_image,omitempty"`
	VerificationStatus  string     `json:"verification_status"`
	Running             bool       `json:"running"`
	Metrics             *Metrics   `json:"metrics,omitempty"`
	Artifacts           *Artifacts `json:"artifacts,omitempty"`
	Logs                []string   `json:"logs,omitempty"`
	CreatedAt           string     `json:"created_at"`
	UpdatedAt           string     `json:"updated_at"`
}

type Metrics struct {
	RenderTimeMs   float64 `json:"render_time_ms"`
	RenderTimeDiff string  `json:"render_time_diff,omitempty"`
}

type Artifacts struct {
	BeforeImage string `json:"before_image,omitempty"`
	AfterImage  string `json:"after_image,omitempty"`
	DiffImage   string `json:"diff_image,omitempty"`
}

type Column struct {
	Status  string   `json:"status"`
	Tickets []Ticket `json:"tickets"`
}

type Board struct {
	Columns []Column `json:"columns"`
}

type VerificationRun struct {
	RunID     string `json:"run_id"`
	TicketID  string `json:"ticket_id"`
	StartedAt string `json:"started_at"`
}

type VerificationState struct {
	TicketID           string     `json:"ticket_id"`
	VerificationStatus string     `json:"verification_status"`
	Running            bool       `json:"running"`
	Metrics            *Metrics   `json:"metrics,omitempty"`
	Artifacts          *Artifacts `json:"artifacts,omitempty"`
	Logs               []string   `json:"logs,omitempty"`
}

type Asset struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsConflict reports whether the error is a 409, e.g. a verification run
// rejected because one is already in flight.
func IsConflict(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusConflict
}

// Board returns the full board snapshot.
func (c *Client) Board(ctx context.Context) (Board, error) {
	var resp Board
	err := c.do(ctx, http.MethodGet, "v0/board", nil, &resp)
	return resp, err
}

// CreateTicket creates a ticket in the todo column.
func (c *Client) CreateTicket(ctx context.Context, t Ticket) (Ticket, error) {
	var resp Ticket
	err := c.do(ctx, http.MethodPost, "v0/tickets", t, &resp)
	return resp, err
}

// ListTickets lists tickets, optionally filtered by column.
func (c *Client) ListTickets(ctx context.Context, status string) ([]Ticket, error) {
	endpoint := "v0/tickets"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Ticket
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetTicket fetches one ticket.
func (c *Client) GetTicket(ctx context.Context, id string) (Ticket, error) {
	var resp Ticket
	err := c.do(ctx, http.MethodGet, c.ticketPath(id, ""), nil, &resp)
	return resp, err
}

// MoveTicket moves a ticket to a column.
func (c *Client) MoveTicket(ctx context.Context, id, status string) (Ticket, error) {
	var resp Ticket
	err := c.do(ctx, http.MethodPost, c.ticketPath(id, "move"), map[string]any{"status": status}, &resp)
	return resp, err
}

// UpdateTicket patches ticket fields; nil fields are left unchanged.
func (c *Client) UpdateTicket(ctx context.Context, id string, fields map[string]any) (Ticket, error) {
	var resp Ticket
	err := c.do(ctx, http.MethodPatch, c.ticketPath(id, ""), fields, &resp)
	return resp, err
}

// Verify starts a verification run. A 409 means one is already in flight.
func (c *Client) Verify(ctx context.Context, id string) (VerificationRun, error) {
	var resp VerificationRun
	err := c.do(ctx, http.MethodPost, c.ticketPath(id, "verify"), nil, &resp)
	return resp, err
}

// Verification returns the verification state and logs for a ticket.
func (c *Client) Verification(ctx context.Context, id string) (VerificationState, error) {
	var resp VerificationState
	err := c.do(ctx, http.MethodGet, c.ticketPath(id, "verification"), nil, &resp)
	return resp, err
}

// WaitVerification polls until the run settles or ctx is done.
func (c *Client) WaitVerification(ctx context.Context, id string, interval time.Duration) (VerificationState, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		state, err := c.Verification(ctx, id)
		if err != nil {
			return VerificationState{}, err
		}
		if !state.Running && state.VerificationStatus != "running" {
			return state, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return VerificationState{}, ctx.Err()
		}
	}
}

// UploadAsset uploads a file under the given name.
func (c *Client) UploadAsset(ctx context.Context, name string, data []byte) (Asset, error) {
	var resp Asset
	err := c.do(ctx, http.MethodPost, "v0/assets", map[string]any{"name": name, "data": data}, &resp)
	return resp, err
}

// ListAssets lists uploaded assets.
func (c *Client) ListAssets(ctx context.Context) ([]Asset, error) {
	var resp []Asset
	err := c.do(ctx, http.MethodGet, "v0/assets", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	// Zero-value clients get a per-call fallback instead of mutating shared
	// state.
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) ticketPath(id, suffix string) string {
	p := "v0/tickets/" + url.PathEscape(id)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
