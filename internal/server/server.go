package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ticketflow/internal/board"
	"ticketflow/internal/domain"
	"ticketflow/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Controller *board.Controller
	Repo       repo.Repo
	Assets     board.AssetStore
	Events     board.EventSink
	BasePath   string
	Auth       AuthConfig

	// ArtifactsDir and AssetsDir, when set, are served read-only under
	// /artifacts and /assets.
	ArtifactsDir string
	AssetsDir    string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"already_running"`
	Message string         `json:"message" example:"verification already running"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the board API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("Ticketflow API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerBoard(group, cfg)
	registerTickets(group, cfg)
	registerVerify(group, cfg)
	registerAssets(group, cfg)
	registerEvents(group, cfg)
	registerOpenAPI(router, api, basePath)
	registerStatic(router, "/artifacts", cfg.ArtifactsDir)
	registerStatic(router, "/assets", cfg.AssetsDir)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, board.ErrAlreadyRunning) {
		return newAPIError(http.StatusConflict, "already_running", err.Error(), nil)
	}
	if errors.Is(err, board.ErrNotFound) || errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var pe *board.PersistenceError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusBadGateway, "persistence_failed", err.Error(),
			map[string]any{"ticket_id": pe.TicketID, "status": pe.Status})
	}
	var ie *board.InvocationError
	if errors.As(err, &ie) {
		return newAPIError(http.StatusUnprocessableEntity, "invocation_failed", err.Error(),
			map[string]any{"ticket_id": ie.TicketID})
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

// recordEvent writes an API-originated event attributed to the request's
// principal. Event write failures never fail the request.
func recordEvent(ctx context.Context, cfg Config, evtType, ticketID string, payload map[string]any) {
	if cfg.Events == nil {
		return
	}
	actor := ""
	if p, ok := principalFromContext(ctx); ok {
		actor = p.ActorID
	}
	_ = cfg.Events.Append(ctx, evtType, ticketID, actor, payload)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusBadGateway:
		return "persistence_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	// Marshalled once on first request; sync.Once keeps concurrent first
	// fetches from racing on the cached bytes.
	var once sync.Once
	var doc []byte
	docPath := path.Join(basePath, "openapi.json")
	r.Get(docPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			doc, _ = json.Marshal(api.OpenAPI())
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func registerStatic(r chi.Router, prefix, dir string) {
	if dir == "" {
		return
	}
	fs := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	r.Get(prefix+"/*", func(w http.ResponseWriter, req *http.Request) {
		fs.ServeHTTP(w, req)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Ticketflow API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerBoard(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/board",
		Summary:     "Board snapshot by column",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body BoardResponse `json:"body"`
	}, error) {
		return &struct {
			Body BoardResponse `json:"body"`
		}{Body: boardResponse(cfg.Controller.Board(), cfg.Controller)}, nil
	})
}

func registerTickets(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-ticket",
		Method:        http.MethodPost,
		Path:          "/tickets",
		Summary:       "Create ticket",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateTicketRequest `json:"body"`
	}) (*struct {
		Body TicketResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Title) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		t := domain.Ticket{
			ID:                  input.Body.ID,
			Title:               input.Body.Title,
			Status:              domain.StatusTodo,
			Priority:            domain.PriorityMedium,
			Owner:               input.Body.Owner,
			Description:         input.Body.Description,
			VerificationCommand: input.Body.VerificationCommand,
			GoldenImage:         input.Body.GoldenImage,
			VerificationStatus:  domain.VerificationPending,
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if input.Body.Status != "" {
			if !domain.ValidStatus(domain.Status(input.Body.Status)) {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid status %q", input.Body.Status), nil)
			}
			t.Status = domain.Status(input.Body.Status)
		}
		if input.Body.Priority != "" {
			t.Priority = domain.Priority(input.Body.Priority)
		}
		now := time.Now().UTC().Format(time.RFC3339)
		t.CreatedAt, t.UpdatedAt = now, now
		if err := cfg.Repo.InsertTicket(ctx, t); err != nil {
			return nil, handleError(err)
		}
		if err := cfg.Controller.Reload(ctx); err != nil {
			return nil, handleError(err)
		}
		recordEvent(ctx, cfg, "ticket.created", t.ID, map[string]any{"status": string(t.Status)})
		return &struct {
			Body TicketResponse `json:"body"`
		}{Body: ticketResponse(t, false)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tickets",
		Method:      http.MethodGet,
		Path:        "/tickets",
		Summary:     "List tickets",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"todo,active,review,done,"`
	}) (*struct {
		Body []TicketResponse `json:"body"`
	}, error) {
		var tickets []domain.Ticket
		if input.Status != "" {
			if !domain.ValidStatus(domain.Status(input.Status)) {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid status %q", input.Status), nil)
			}
			for _, col := range cfg.Controller.Board() {
				if col.Status == domain.Status(input.Status) {
					tickets = col.Tickets
				}
			}
		} else {
			for _, col := range cfg.Controller.Board() {
				tickets = append(tickets, col.Tickets...)
			}
		}
		out := make([]TicketResponse, 0, len(tickets))
		for _, t := range tickets {
			out = append(out, ticketResponse(t, cfg.Controller.IsRunning(t.ID)))
		}
		return &struct {
			Body []TicketResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ticket",
		Method:      http.MethodGet,
		Path:        "/tickets/{ticket_id}",
		Summary:     "Get ticket",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TicketID string `path:"ticket_id"`
	}) (*struct {
		Body TicketResponse `json:"body"`
	}, error) {
		t, err := cfg.Controller.Ticket(input.TicketID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TicketResponse `json:"body"`
		}{Body: ticketResponse(t, cfg.Controller.IsRunning(t.ID))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-ticket",
		Method:      http.MethodPatch,
		Path:        "/tickets/{ticket_id}",
		Summary:     "Update ticket fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TicketID string              `path:"ticket_id"`
		Body     UpdateTicketRequest `json:"body"`
	}) (*struct {
		Body TicketResponse `json:"body"`
	}, error) {
		u := repo.TicketUpdate{
			Title:               input.Body.Title,
			Owner:               input.Body.Owner,
			Description:         input.Body.Description,
			VerificationCommand: input.Body.VerificationCommand,
			GoldenImage:         input.Body.GoldenImage,
		}
		if input.Body.Priority != nil {
			p := domain.Priority(*input.Body.Priority)
			u.Priority = &p
		}
		if err := cfg.Repo.UpdateTicket(ctx, input.TicketID, u); err != nil {
			return nil, handleError(err)
		}
		if err := cfg.Controller.Reload(ctx); err != nil {
			return nil, handleError(err)
		}
		t, err := cfg.Controller.Ticket(input.TicketID)
		if err != nil {
			return nil, handleError(err)
		}
		recordEvent(ctx, cfg, "ticket.updated", t.ID, nil)
		return &struct {
			Body TicketResponse `json:"body"`
		}{Body: ticketResponse(t, cfg.Controller.IsRunning(t.ID))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-ticket",
		Method:        http.MethodDelete,
		Path:          "/tickets/{ticket_id}",
		Summary:       "Delete ticket",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TicketID string `path:"ticket_id"`
	}) (*struct{}, error) {
		if err := cfg.Repo.DeleteTicket(ctx, input.TicketID); err != nil {
			return nil, handleError(err)
		}
		if err := cfg.Controller.Reload(ctx); err != nil {
			return nil, handleError(err)
		}
		recordEvent(ctx, cfg, "ticket.deleted", input.TicketID, nil)
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-ticket",
		Method:      http.MethodPost,
		Path:        "/tickets/{ticket_id}/move",
		Summary:     "Move ticket to a column",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		TicketID string            `path:"ticket_id"`
		Body     MoveTicketRequest `json:"body"`
	}) (*struct {
		Body TicketResponse `json:"body"`
	}, error) {
		h, err := cfg.Controller.MoveTicket(ctx, input.TicketID, domain.Status(input.Body.Status))
		if err != nil {
			return nil, handleError(err)
		}
		// The board already shows the new column; surface the write outcome
		// to the caller so a failed persist is not silent.
		if err := h.Wait(ctx); err != nil {
			return nil, handleError(err)
		}
		t, err := cfg.Controller.Ticket(input.TicketID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TicketResponse `json:"body"`
		}{Body: ticketResponse(t, cfg.Controller.IsRunning(t.ID))}, nil
	})
}

func registerVerify(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "verify-ticket",
		Method:        http.MethodPost,
		Path:          "/tickets/{ticket_id}/verify",
		Summary:       "Start a verification run",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TicketID string `path:"ticket_id"`
	}) (*struct {
		Body VerificationRunResponse `json:"body"`
	}, error) {
		h, err := cfg.Controller.RunVerification(ctx, input.TicketID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body VerificationRunResponse `json:"body"`
		}{Body: VerificationRunResponse{
			RunID:     h.Run.ID,
			TicketID:  h.Run.TicketID,
			StartedAt: h.Run.StartedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-verification",
		Method:      http.MethodGet,
		Path:        "/tickets/{ticket_id}/verification",
		Summary:     "Verification state and logs",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TicketID string `path:"ticket_id"`
	}) (*struct {
		Body VerificationStateResponse `json:"body"`
	}, error) {
		t, err := cfg.Controller.Ticket(input.TicketID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body VerificationStateResponse `json:"body"`
		}{Body: verificationStateResponse(t, cfg.Controller.IsRunning(t.ID))}, nil
	})
}

func registerAssets(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "upload-asset",
		Method:        http.MethodPost,
		Path:          "/assets",
		Summary:       "Upload an asset",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body UploadAssetRequest `json:"body"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		if len(input.Body.Data) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "data is required", nil)
		}
		ref, err := cfg.Assets.Upload(ctx, input.Body.Data, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		recordEvent(ctx, cfg, "asset.uploaded", "", map[string]any{"name": ref.Name})
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(ref)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assets",
		Method:      http.MethodGet,
		Path:        "/assets",
		Summary:     "List assets",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AssetResponse `json:"body"`
	}, error) {
		refs, err := cfg.Assets.List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]AssetResponse, 0, len(refs))
		for _, ref := range refs {
			out = append(out, assetResponse(ref))
		}
		return &struct {
			Body []AssetResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerEvents(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest events",
	}, func(ctx context.Context, input *struct {
		Limit    int    `query:"limit" minimum:"0" maximum:"500"`
		Type     string `query:"type"`
		TicketID string `query:"ticket_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := cfg.Repo.LatestEvents(ctx, input.Limit, input.Type, input.TicketID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
