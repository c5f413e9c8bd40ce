package domain

// Status is the board column a ticket sits in.
type Status string

const (
	StatusTodo   Status = "todo"
	StatusActive Status = "active"
	StatusReview Status = "review"
	StatusDone   Status = "done"
)

// Columns is the fixed board column order.
var Columns = []Status{StatusTodo, StatusActive, StatusReview, StatusDone}

// ValidStatus reports whether s is a known board column.
func ValidStatus(s Status) bool {
	for _, c := range Columns {
		if c == s {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func ValidPriority(p Priority) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// VerificationStatus is owned by the orchestrator; board moves never touch it.
type VerificationStatus string

const (
	VerificationPending VerificationStatus = "pending"
	VerificationRunning VerificationStatus = "running"
	VerificationSuccess VerificationStatus = "success"
	VerificationFailure VerificationStatus = "failure"
)

// AgentOwnerPrefix marks tickets owned by an automated agent. Purely a naming
// convention; the engine treats agent owners like any other.
const AgentOwnerPrefix = "agent:"

type Ticket struct {
	ID                  string             `json:"id"`
	Title               string             `json:"title"`
	Status              Status             `json:"status" enum:"todo,active,review,done"`
	Priority            Priority           `json:"priority" enum:"low,medium,high"`
	Owner               string             `json:"owner,omitempty"`
	Description         string             `json:"description,omitempty"`
	VerificationCommand string             `json:"verification_command,omitempty"`
	GoldenImage         string             `json:"golden_image,omitempty"`
	VerificationStatus  VerificationStatus `json:"verification_status" enum:"pending,running,success,failure"`
	Metrics             *Metrics           `json:"metrics,omitempty"`
	Artifacts           *Artifacts         `json:"artifacts,omitempty"`
	Logs                []string           `json:"logs,omitempty"`
	CreatedAt           string             `json:"created_at" format:"date-time"`
	UpdatedAt           string             `json:"updated_at" format:"date-time"`
}

// Metrics are set only from a completed verification result.
type Metrics struct {
	RenderTimeMs   float64 `json:"render_time_ms"`
	RenderTimeDiff string  `json:"render_time_diff,omitempty"`
}

// Artifacts reference the visual evidence a verification run produced.
// Absent slots stay empty; that is not an error.
type Artifacts struct {
	BeforeImage string `json:"before_image,omitempty"`
	AfterImage  string `json:"after_image,omitempty"`
	DiffImage   string `json:"diff_image,omitempty"`
}

// VerificationResult is the single terminal outcome of one verification run.
type VerificationResult struct {
	Success       bool     `json:"success"`
	Stdout        string   `json:"stdout,omitempty"`
	Stderr        string   `json:"stderr,omitempty"`
	ArtifactsPath string   `json:"artifacts_path,omitempty"`
	Metrics       *Metrics `json:"metrics,omitempty"`
	DurationMs    int64    `json:"duration_ms"`
}

// VerificationRun is the ephemeral record of an in-flight run. Never persisted.
type VerificationRun struct {
	ID        string `json:"id"`
	TicketID  string `json:"ticket_id"`
	StartedAt string `json:"started_at" format:"date-time"`
}

type AssetRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Path      string `json:"path"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at,omitempty" format:"date-time"`
}

type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts" format:"date-time"`
	Type     string `json:"type"`
	TicketID string `json:"ticket_id,omitempty"`
	ActorID  string `json:"actor_id"`
	Payload  string `json:"payload_json"`
}

type APIToken struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Name      string `json:"name,omitempty"`
	TokenHash string `json:"token_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
