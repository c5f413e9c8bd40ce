package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ticketflow/internal/app"
	"ticketflow/internal/assets"
	"ticketflow/internal/board"
	"ticketflow/internal/config"
	"ticketflow/internal/db"
	"ticketflow/internal/domain"
	"ticketflow/internal/events"
	"ticketflow/internal/migrate"
	"ticketflow/internal/repo"
	"ticketflow/internal/runner"
	"ticketflow/internal/server"
	"ticketflow/internal/worker"
	ticketflowsdk "ticketflow/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "tf",
	Short: "Ticketflow CLI",
	Long: `Ticketflow is a ticket board with built-in verification runs.
- Workspace: your .ticketflow directory holding the database; settings live in ticketflow.yml.
- Board: four fixed columns (todo, active, review, done); moves are free-form, no gate between columns.
- Verification: each ticket may carry a shell command; 'tf verify' runs it, captures logs,
  metrics.json, and before/after/diff images, and marks the ticket success or failure.
  At most one run per ticket at a time; board moves stay independent of runs.
- Worker: 'tf worker' polls for todo tickets owned by agent:<name> and drives them
  through active -> verify -> review.
- Event log: every move and run is recorded, view with 'tf log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TICKETFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(ticketCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(assetCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
}

func boardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, env boardEnv) error {
				cols := env.Ctrl.Board()
				if viper.GetBool("json") {
					return printJSON(cols)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Column", "ID", "Title", "Priority", "Owner", "Verification"})
				for _, col := range cols {
					for _, t := range col.Tickets {
						vs := string(t.VerificationStatus)
						if env.Ctrl.IsRunning(t.ID) {
							vs = "running"
						}
						tw.AppendRow(table.Row{col.Status, t.ID, t.Title, t.Priority, t.Owner, vs})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func ticketCmd() *cobra.Command {
	t := &cobra.Command{Use: "ticket", Short: "Manage tickets"}
	t.AddCommand(ticketCreateCmd())
	t.AddCommand(ticketListCmd())
	t.AddCommand(ticketShowCmd())
	t.AddCommand(ticketMoveCmd())
	t.AddCommand(ticketUpdateCmd())
	t.AddCommand(ticketDeleteCmd())
	return t
}

func ticketCreateCmd() *cobra.Command {
	var id, title, priority, owner, desc, command, golden string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create ticket in todo",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			return withBoard(cmd.Context(), func(ctx context.Context, env boardEnv) error {
				t := domain.Ticket{
					ID:                  id,
					Title:               title,
					Status:              domain.StatusTodo,
					Priority:            domain.PriorityMedium,
					Owner:               owner,
					Description:         desc,
					VerificationCommand: command,
					GoldenImage:         golden,
					VerificationStatus:  domain.VerificationPending,
				}
				if t.ID == "" {
					t.ID = uuid.NewString()
				}
				if priority != "" {
					p := domain.Priority(priority)
					if !domain.ValidPriority(p) {
						return fmt.Errorf("invalid priority %q", priority)
					}
					t.Priority = p
				}
				now := time.Now().UTC().Format(time.RFC3339)
				t.CreatedAt, t.UpdatedAt = now, now
				if err := env.Repo.InsertTicket(ctx, t); err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "ticket id (generated if empty)")
	cmd.Flags().StringVar(&title, "title", "", "ticket title")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium, or high")
	cmd.Flags().StringVar(&owner, "owner", "", "owner (agent:<name> for worker tickets)")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&command, "command", "", "verification command")
	cmd.Flags().StringVar(&golden, "golden-image", "", "golden image asset name")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func ticketListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tickets, err := r.ListTicketsByStatus(ctx, domain.Status(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tickets)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Owner", "Verification"})
				for _, t := range tickets {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, t.Owner, t.VerificationStatus})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "column filter (todo, active, review, done)")
	return cmd
}

func ticketShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a ticket with logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTicket(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func ticketMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <id> <column>",
		Short: "Move ticket to a column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, env boardEnv) error {
				h, err := env.Ctrl.MoveTicket(ctx, args[0], domain.Status(args[1]))
				if err != nil {
					return err
				}
				if err := h.Wait(ctx); err != nil {
					return err
				}
				t, err := env.Ctrl.Ticket(args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func ticketUpdateCmd() *cobra.Command {
	var title, priority, owner, desc, command, golden string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update ticket fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				var u repo.TicketUpdate
				if cmd.Flags().Changed("title") {
					u.Title = &title
				}
				if cmd.Flags().Changed("priority") {
					p := domain.Priority(priority)
					if !domain.ValidPriority(p) {
						return fmt.Errorf("invalid priority %q", priority)
					}
					u.Priority = &p
				}
				if cmd.Flags().Changed("owner") {
					u.Owner = &owner
				}
				if cmd.Flags().Changed("description") {
					u.Description = &desc
				}
				if cmd.Flags().Changed("command") {
					u.VerificationCommand = &command
				}
				if cmd.Flags().Changed("golden-image") {
					u.GoldenImage = &golden
				}
				if err := r.UpdateTicket(ctx, args[0], u); err != nil {
					return err
				}
				t, err := r.GetTicket(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "ticket title")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium, or high")
	cmd.Flags().StringVar(&owner, "owner", "", "owner")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&command, "command", "", "verification command")
	cmd.Flags().StringVar(&golden, "golden-image", "", "golden image asset name")
	return cmd
}

func ticketDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteTicket(ctx, args[0])
			})
		},
	}
	return cmd
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Run the ticket's verification and wait for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, env boardEnv) error {
				h, err := env.Ctrl.RunVerification(ctx, args[0])
				if err != nil {
					return err
				}
				res, err := h.Wait(ctx)
				if err != nil {
					return err
				}
				t, err := env.Ctrl.Ticket(args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				for _, line := range t.Logs {
					fmt.Println(line)
				}
				if !res.Success {
					// Logs already show the FAIL line; exit non-zero for scripts.
					os.Exit(1)
				}
				return nil
			})
		},
	}
	return cmd
}

func assetCmd() *cobra.Command {
	a := &cobra.Command{Use: "asset", Short: "Manage assets (golden images etc.)"}
	a.AddCommand(assetUploadCmd())
	a.AddCommand(assetListCmd())
	return a
}

func assetUploadCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file into the assets directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(args[0])
			}
			return withBoard(cmd.Context(), func(ctx context.Context, env boardEnv) error {
				ref, err := env.Assets.Upload(ctx, data, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(ref)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "asset name (defaults to file name)")
	return cmd
}

func assetListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, env boardEnv) error {
				refs, err := env.Assets.List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(refs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Type", "URL"})
				for _, ref := range refs {
					tw.AppendRow(table.Row{ref.Name, ref.Type, ref.URL})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	c.AddCommand(configShowCmd())
	c.AddCommand(configInitCmd())
	c.AddCommand(configImportCmd())
	return c
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show resolved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				_, cfg, err := app.ResolveConfig(ctx, viper.GetString("workspace"), viper.GetString("project"), r)
				if err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default ticketflow.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				projectID = "default"
			}
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(projectID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project-id", "", "project id")
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import config YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				data, err := json.Marshal(cfg)
				if err != nil {
					return err
				}
				if err := r.UpsertConfig(ctx, cfg.Project.ID, string(data)); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func tokenCmd() *cobra.Command {
	t := &cobra.Command{Use: "token", Short: "Manage API tokens"}
	t.AddCommand(tokenCreateCmd())
	t.AddCommand(tokenListCmd())
	t.AddCommand(tokenDeleteCmd())
	return t
}

func tokenCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API token (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				token := uuid.NewString()
				rec := domain.APIToken{
					ID:        uuid.NewString(),
					Owner:     viper.GetString("actor-id"),
					Name:      name,
					TokenHash: repo.HashToken(token),
				}
				if err := r.InsertAPIToken(ctx, rec); err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "token label")
	return cmd
}

func tokenListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tokens, err := r.ListAPITokens(ctx, "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tokens)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Owner", "Name", "Created"})
				for _, t := range tokens {
					tw.AppendRow(table.Row{t.ID, t.Owner, t.Name, t.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func tokenDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIToken(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, ticketID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.LatestEvents(ctx, n, evtType, ticketID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&ticketID, "ticket-id", "", "ticket filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, env boardEnv) error {
				handler, err := server.New(server.Config{
					Controller: env.Ctrl,
					Repo:       env.Repo,
					Assets:     env.Assets,
					Events:     env.Events,
					BasePath:   basePath,
					Auth: server.AuthConfig{
						JWTSecret:  os.Getenv("TICKETFLOW_JWT_SECRET"),
						LocalActor: viper.GetString("actor-id"),
					},
					ArtifactsDir: env.ArtifactsDir,
					AssetsDir:    env.AssetsDir,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Ticketflow API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func workerCmd() *cobra.Command {
	var serverURL, agent, agentCommand string
	var pollSeconds, maxRetries int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the polling agent worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg != nil {
				if agent == "" {
					agent = cfg.Worker.Agent
				}
				if agentCommand == "" {
					agentCommand = cfg.Worker.Command
				}
				if pollSeconds == 0 {
					pollSeconds = cfg.Worker.PollSeconds
				}
				if maxRetries == 0 {
					maxRetries = cfg.Verification.MaxRetries
				}
			}
			if agent == "" {
				return fmt.Errorf("--agent required")
			}
			client := ticketflowsdk.New(serverURL)
			client.APIKey = os.Getenv("TICKETFLOW_API_TOKEN")
			client.BearerToken = os.Getenv("TICKETFLOW_BEARER_TOKEN")
			w := &worker.Worker{
				Client:       client,
				Agent:        agent,
				AgentCommand: agentCommand,
				MaxRetries:   maxRetries,
				Workdir:      workspace,
				PollInterval: time.Duration(pollSeconds) * time.Second,
			}
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "API server URL")
	cmd.Flags().StringVar(&agent, "agent", "", "agent name (owner agent:<name>)")
	cmd.Flags().StringVar(&agentCommand, "agent-command", "", "shell command run on each attempt")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "verification attempts per ticket")
	cmd.Flags().IntVar(&pollSeconds, "poll-seconds", 0, "poll interval seconds")
	return cmd
}

// --- helpers ---

type boardEnv struct {
	Repo         repo.Repo
	Ctrl         *board.Controller
	Assets       assets.Store
	Events       events.Writer
	Config       *config.Config
	ArtifactsDir string
	AssetsDir    string
}

func withBoard(ctx context.Context, fn func(context.Context, boardEnv) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveConfig(ctx, workspace, viper.GetString("project"), r)
	if err != nil {
		return err
	}
	artifactsDir := filepath.Join(workspace, cfg.Verification.ArtifactsDir)
	assetsDir := filepath.Join(workspace, cfg.Assets.Dir)
	run := runner.ExecRunner{
		ArtifactsDir: artifactsDir,
		Workdir:      workspace,
		Timeout:      time.Duration(cfg.Verification.TimeoutSeconds) * time.Second,
		AssetsDir:    assetsDir,
	}
	w := events.Writer{DB: conn}
	ctrl, err := board.NewController(ctx, r, run, w, viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	return fn(ctx, boardEnv{
		Repo:         r,
		Ctrl:         ctrl,
		Assets:       assets.Store{Dir: assetsDir, Repo: r},
		Events:       w,
		Config:       cfg,
		ArtifactsDir: artifactsDir,
		AssetsDir:    assetsDir,
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
