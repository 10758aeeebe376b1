package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"talentline/internal/app"
	"talentline/internal/config"
	"talentline/internal/db"
	"talentline/internal/domain"
	"talentline/internal/events"
	"talentline/internal/orchestrator"
	"talentline/internal/repo"
	"talentline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Talentline CLI",
	Long: `Talentline runs recruiting pipelines: it keeps every open role stocked with
sourced candidates, drives multi-step outreach sequences with exponential
backoff, and folds engagement signals (opens, replies, bounces) back into
each candidate's funnel state.

Core concepts:
- Workspace: the .talentline directory holding the database; settings live
  in talentline.yml next to it.
- Role: an open position with a tenant, requirements, and a minimum pipeline
  depth the orchestrator keeps topped up.
- Candidate: one person per role, moving sourced -> contacted -> interested
  -> screened -> interviewing -> offered -> hired (or rejected).
- Cycle: one orchestration pass over all open roles; runs on a timer under
  'tl serve' or on demand with 'tl cycle run'.
- Engagement log: append-only record of sends and provider signals, view
  with 'tl log tail'.`,
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
	viper.SetEnvPrefix("TALENTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(candidateCmd())
	rootCmd.AddCommand(cycleCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default talentline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})
	return cfg
}

func roleCmd() *cobra.Command {
	role := &cobra.Command{Use: "role", Short: "Manage roles"}
	role.AddCommand(roleCreateCmd())
	role.AddCommand(roleListCmd())
	role.AddCommand(roleShowCmd())
	role.AddCommand(roleSetStatusCmd("pause", domain.RolePaused, "Pause sourcing and outreach for a role"))
	role.AddCommand(roleSetStatusCmd("resume", domain.RoleOpen, "Reopen a paused role"))
	role.AddCommand(roleSetStatusCmd("close", domain.RoleClosed, "Close a role"))
	return role
}

func roleCreateCmd() *cobra.Command {
	var id, tenant, title, requirements string
	var minPipeline int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			if tenant == "" {
				return fmt.Errorf("--tenant required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				now := time.Now().UTC().Format(time.RFC3339)
				role := domain.Role{
					ID:          id,
					TenantID:    tenant,
					Title:       title,
					Status:      domain.RoleOpen,
					MinPipeline: minPipeline,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if role.ID == "" {
					role.ID = uuid.NewString()
				}
				if requirements != "" {
					role.Requirements = &requirements
				}
				if err := a.Repo.InsertRole(ctx, role); err != nil {
					return err
				}
				return printJSONOrTable(role)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "role id (generated if omitted)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&title, "title", "", "role title")
	cmd.Flags().StringVar(&requirements, "requirements", "", "role requirements")
	cmd.Flags().IntVar(&minPipeline, "min-pipeline", 10, "minimum pipeline depth")
	return cmd
}

func roleListCmd() *cobra.Command {
	var tenant, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				roles, err := a.Repo.ListRoles(ctx, repo.RoleFilters{TenantID: tenant, Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(roles)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Tenant", "Title", "Status", "Min Pipeline"})
				for _, r := range roles {
					tw.AppendRow(table.Row{r.ID, r.TenantID, r.Title, r.Status, r.MinPipeline})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter (open, paused, closed)")
	return cmd
}

func roleShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <role-id>",
		Short: "Show role with pipeline depth",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				role, err := a.Repo.GetRole(ctx, args[0])
				if err != nil {
					return err
				}
				depth, err := a.Repo.CountActiveByRole(ctx, role.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"role":           role,
					"pipeline_depth": depth,
				})
			})
		},
	}
	return cmd
}

func roleSetStatusCmd(use, status, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <role-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s := status
				if err := a.Repo.UpdateRole(ctx, args[0], repo.RoleUpdate{Status: &s}); err != nil {
					return err
				}
				role, err := a.Repo.GetRole(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(role)
			})
		},
	}
}

func candidateCmd() *cobra.Command {
	cand := &cobra.Command{Use: "candidate", Short: "Inspect candidates"}
	cand.AddCommand(candidateListCmd())
	cand.AddCommand(candidateShowCmd())
	return cand
}

func candidateListCmd() *cobra.Command {
	var roleID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List candidates for a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if roleID == "" {
				return fmt.Errorf("--role required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				candidates, err := a.Repo.ListCandidatesByRole(ctx, roleID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(candidates)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Company", "Status", "Fit"})
				for _, c := range candidates {
					fit := ""
					if c.FitScore != nil {
						fit = fmt.Sprintf("%d", *c.FitScore)
					}
					tw.AppendRow(table.Row{c.ID, c.Name, c.Company, c.Status, fit})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&roleID, "role", "", "role id")
	return cmd
}

func candidateShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <candidate-id>",
		Short: "Show candidate with outreach state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Repo.GetCandidate(ctx, args[0])
				if err != nil {
					return err
				}
				out := map[string]any{"candidate": c}
				if o, err := a.Repo.GetOutreach(ctx, c.ID); err == nil {
					out["outreach"] = o
				} else if !errors.Is(err, repo.ErrNotFound) {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func cycleCmd() *cobra.Command {
	cyc := &cobra.Command{Use: "cycle", Short: "Orchestration cycles"}
	cyc.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one orchestration cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				summary, err := a.Orch.RunCycle(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(summary)
			})
		},
	})
	return cyc
}

func eventCmd() *cobra.Command {
	evt := &cobra.Command{Use: "event", Short: "Engagement events"}
	evt.AddCommand(eventInjectCmd())
	return evt
}

func eventInjectCmd() *cobra.Command {
	var kind, payloadJSON string
	cmd := &cobra.Command{
		Use:   "inject <candidate-id>",
		Short: "Inject a provider signal (opened, replied, bounced)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind == "" {
				return fmt.Errorf("--kind required")
			}
			var payload events.EventPayload
			if payloadJSON != "" {
				if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
					return fmt.Errorf("invalid --payload: %w", err)
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Ingest.Ingest(ctx, args[0], kind, payload); err != nil {
					return err
				}
				c, err := a.Repo.GetCandidate(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "event kind (opened, replied, bounced)")
	cmd.Flags().StringVar(&payloadJSON, "payload", "", "JSON payload")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Engagement log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var candidateID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail engagement events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if candidateID == "" {
				return fmt.Errorf("--candidate required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Repo.ListEngagement(ctx, candidateID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&candidateID, "candidate", "", "candidate id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noCycles bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server and the orchestration loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			a, err := app.Open(viper.GetString("workspace"), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var runner *orchestrator.Runner
			if !noCycles {
				runner = orchestrator.NewRunner(a.Orch, a.Cfg.Orchestrator.Interval(), logger)
				go runner.Start(cmd.Context())
			}
			handler, err := server.New(server.Config{
				Repo:     a.Repo,
				Gateway:  a.Gateway,
				Ingest:   a.Ingest,
				Orch:     a.Orch,
				Runner:   runner,
				BasePath: basePath,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Talentline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&noCycles, "no-cycles", false, "serve the API without the recurring cycle loop")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	a, err := app.Open(viper.GetString("workspace"), logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
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
