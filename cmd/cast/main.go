package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"castline/internal/app"
	"castline/internal/broadcast"
	"castline/internal/config"
	"castline/internal/db"
	"castline/internal/depth"
	"castline/internal/domain"
	"castline/internal/repo"
	"castline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cast",
	Short: "Castline CLI",
	Long: `Castline schedules WhatsApp broadcast campaigns and resolves per-user
agent capabilities from depth levels.
- Workspace: the .castline directory holding the database.
- Campaigns: a message, target groups, and a once/daily/weekly schedule;
  sends are paced with randomized delays and optional operating windows.
- Depth: each user has a base level 1-10; temporary boosts stack on top
  and expire on their own. The resolved level drives the agent's
  capability context, including send jitter.
- Event log: every mutation and batch outcome, view with 'cast log tail'.`,
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
	viper.SetEnvPrefix("CASTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user", "local-user", "user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func registerCommands() {
	rootCmd.AddCommand(campaignCmd())
	rootCmd.AddCommand(depthCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func campaignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Manage broadcast campaigns",
		Long:  "Campaigns deliver one message to many groups on a schedule. Sends are paced with randomized delays so batches look human; failures are counted per group, never fatal.",
	}
	cmd.AddCommand(campaignCreateCmd())
	cmd.AddCommand(campaignListCmd())
	cmd.AddCommand(campaignShowCmd())
	cmd.AddCommand(campaignStatusCmd("pause", domain.CampaignPaused))
	cmd.AddCommand(campaignStatusCmd("resume", domain.CampaignActive))
	cmd.AddCommand(campaignTriggerCmd())
	cmd.AddCommand(campaignDeleteCmd())
	return cmd
}

func campaignCreateCmd() *cobra.Command {
	var name, message, mediaURL, scheduleType, clock string
	var groups []string
	var days []int
	var minDelay, maxDelay, windowStart, windowEnd int
	var spintax bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(ctx context.Context, c *app.Components) error {
				cfg := c.Config
				if !cmd.Flags().Changed("min-delay") {
					minDelay = cfg.Sends.MinDelaySec
				}
				if !cmd.Flags().Changed("max-delay") {
					maxDelay = cfg.Sends.MaxDelaySec
				}
				sendCfg := domain.SendConfig{
					MinDelaySec: minDelay,
					MaxDelaySec: maxDelay,
					UseSpintax:  spintax,
				}
				if cmd.Flags().Changed("window-start") || cmd.Flags().Changed("window-end") {
					sendCfg.Window = &domain.OperatingWindow{StartHour: windowStart, EndHour: windowEnd}
				} else if cfg.Window.StartHour != nil {
					sendCfg.Window = &domain.OperatingWindow{StartHour: *cfg.Window.StartHour, EndHour: *cfg.Window.EndHour}
				}
				now := time.Now()
				schedule := domain.Schedule{Type: scheduleType, Time: clock, DaysOfWeek: days}
				userID := viper.GetString("user")
				camp := domain.Campaign{
					ID:       uuid.NewString(),
					UserID:   userID,
					Name:     name,
					Message:  message,
					MediaURL: mediaURL,
					Groups:   groups,
					Schedule: schedule,
					Config:   sendCfg,
					Stats: domain.CampaignStats{
						NextRunAt: broadcast.InitialRun(schedule, now),
					},
					Status:    domain.CampaignActive,
					CreatedAt: now.UTC().Format(time.RFC3339),
					UpdatedAt: now.UTC().Format(time.RFC3339),
				}
				if err := domain.ValidateCampaign(camp); err != nil {
					return err
				}
				if err := c.Repo.EnsureUser(ctx, userID, c.Resolver.DefaultLevel, now); err != nil {
					return err
				}
				if err := c.Repo.InsertCampaign(ctx, camp); err != nil {
					return err
				}
				return printJSON(camp)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "campaign name")
	cmd.Flags().StringVar(&message, "message", "", "message text; supports {option|option} spintax and {group_name}")
	cmd.Flags().StringVar(&mediaURL, "media-url", "", "media attachment URL")
	cmd.Flags().StringArrayVar(&groups, "group", []string{}, "target group id (repeatable)")
	cmd.Flags().StringVar(&scheduleType, "schedule", domain.ScheduleOnce, "once, daily, or weekly")
	cmd.Flags().StringVar(&clock, "time", "09:00", "send time HH:MM")
	cmd.Flags().IntSliceVar(&days, "day", []int{}, "weekday 0-6 for weekly schedules (repeatable)")
	cmd.Flags().IntVar(&minDelay, "min-delay", 0, "min seconds between sends (default from config)")
	cmd.Flags().IntVar(&maxDelay, "max-delay", 0, "max seconds between sends (default from config)")
	cmd.Flags().BoolVar(&spintax, "spintax", false, "enable spintax rendering")
	cmd.Flags().IntVar(&windowStart, "window-start", 0, "operating window start hour")
	cmd.Flags().IntVar(&windowEnd, "window-end", 0, "operating window end hour")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func campaignListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(ctx context.Context, c *app.Components) error {
				userID := viper.GetString("user")
				if all {
					userID = ""
				}
				items, err := c.Repo.ListCampaigns(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Name", "User", "Status", "Schedule", "Sent", "Failed", "Next run"})
				for _, it := range items {
					t.AppendRow(table.Row{
						it.ID, it.Name, it.UserID, it.Status,
						scheduleLabel(it.Schedule),
						it.Stats.TotalSent, it.Stats.TotalFailed, it.Stats.NextRunAt,
					})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list campaigns for every user")
	return cmd
}

func campaignShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(ctx context.Context, c *app.Components) error {
				camp, err := c.Repo.GetCampaign(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(camp)
			})
		},
	}
	return cmd
}

func campaignStatusCmd(verb, status string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   verb + " <id>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(ctx context.Context, c *app.Components) error {
				now := time.Now()
				if err := c.Repo.SetCampaignStatus(ctx, args[0], status, now.UTC().Format(time.RFC3339)); err != nil {
					return err
				}
				if status == domain.CampaignActive {
					camp, err := c.Repo.GetCampaign(ctx, args[0])
					if err != nil {
						return err
					}
					camp.Stats.NextRunAt = broadcast.InitialRun(camp.Schedule, now)
					camp.UpdatedAt = now.UTC().Format(time.RFC3339)
					if err := c.Repo.UpdateCampaign(ctx, camp); err != nil {
						return err
					}
				}
				camp, err := c.Repo.GetCampaign(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(camp)
			})
		},
	}
	return cmd
}

func campaignTriggerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger <id>",
		Short: "Make a campaign due on the next tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(ctx context.Context, c *app.Components) error {
				if err := c.Repo.TriggerCampaign(ctx, args[0], time.Now()); err != nil {
					return err
				}
				camp, err := c.Repo.GetCampaign(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(camp)
			})
		},
	}
	return cmd
}

func campaignDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(ctx context.Context, c *app.Components) error {
				return c.Repo.DeleteCampaign(ctx, args[0])
			})
		},
	}
	return cmd
}

func depthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "depth",
		Short: "Manage depth levels and capabilities",
		Long:  "Depth 1-10 controls how capable a user's agent is: analysis horizon, memory, inference passes, and send variation all derive from it.",
	}
	cmd.AddCommand(depthShowCmd())
	cmd.AddCommand(depthSetCmd())
	cmd.AddCommand(depthBoostCmd())
	cmd.AddCommand(depthBoostsCmd())
	return cmd
}

func depthShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [user-id]",
		Short: "Show a user's resolved capability context",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(ctx context.Context, c *app.Components) error {
				userID := viper.GetString("user")
				if len(args) == 1 {
					userID = args[0]
				}
				cc, err := c.Resolver.ResolveUser(ctx, userID)
				if err != nil {
					return err
				}
				return printJSON(cc)
			})
		},
	}
	return cmd
}

func depthSetCmd() *cobra.Command {
	var level int
	cmd := &cobra.Command{
		Use:   "set <user-id>",
		Short: "Set a user's base depth level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if level < depth.MinLevel || level > depth.MaxLevel {
				return fmt.Errorf("--level must be between %d and %d", depth.MinLevel, depth.MaxLevel)
			}
			return withComponents(cmd.Context(), func(ctx context.Context, c *app.Components) error {
				if err := c.Repo.SetBaseDepth(ctx, args[0], level, time.Now()); err != nil {
					return err
				}
				cc, err := c.Resolver.ResolveUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cc)
			})
		},
	}
	cmd.Flags().IntVar(&level, "level", 0, "depth level 1-10")
	_ = cmd.MarkFlagRequired("level")
	return cmd
}

func depthBoostCmd() *cobra.Command {
	var delta int
	var expiresIn time.Duration
	cmd := &cobra.Command{
		Use:   "boost <user-id>",
		Short: "Grant a temporary depth boost",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if delta == 0 {
				return fmt.Errorf("--delta must be non-zero")
			}
			if expiresIn <= 0 {
				return fmt.Errorf("--expires-in must be positive")
			}
			return withComponents(cmd.Context(), func(ctx context.Context, c *app.Components) error {
				now := time.Now()
				if err := c.Repo.EnsureUser(ctx, args[0], c.Resolver.DefaultLevel, now); err != nil {
					return err
				}
				b := domain.DepthBoost{
					ID:         uuid.NewString(),
					UserID:     args[0],
					DepthDelta: delta,
					ExpiresAt:  now.Add(expiresIn).UTC().Format(time.RFC3339),
					GrantedBy:  viper.GetString("user"),
					CreatedAt:  now.UTC().Format(time.RFC3339),
				}
				if err := c.Repo.InsertBoost(ctx, b); err != nil {
					return err
				}
				return printJSON(b)
			})
		},
	}
	cmd.Flags().IntVar(&delta, "delta", 0, "levels to add (may be negative)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 24*time.Hour, "boost lifetime, e.g. 48h")
	return cmd
}

func depthBoostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boosts <user-id>",
		Short: "List a user's boosts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(ctx context.Context, c *app.Components) error {
				boosts, err := c.Repo.ListBoosts(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(boosts)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Delta", "Expires", "Granted by"})
				for _, b := range boosts {
					t.AppendRow(table.Row{b.ID, b.DepthDelta, b.ExpiresAt, b.GrantedBy})
				}
				t.Render()
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, userID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(ctx context.Context, c *app.Components) error {
				items, err := c.Repo.LatestEvents(ctx, n, userID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"TS", "Type", "User", "Entity", "Payload"})
				for _, e := range items {
					t.AppendRow(table.Row{e.TS, e.Type, e.UserID, e.EntityKind + "/" + e.EntityID, e.Payload})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&userID, "user-id", "", "user filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyRevokeCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (prints the raw key once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(ctx context.Context, c *app.Components) error {
				raw := "cl_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   viper.GetString("user"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := c.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				fmt.Printf("API key %s created for %s\n", key.ID, key.ActorID)
				fmt.Printf("Key (store it now, it is not retrievable): %s\n", raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(ctx context.Context, c *app.Components) error {
				keys, err := c.Repo.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					t.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				t.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(ctx context.Context, c *app.Components) error {
				return c.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Workspace configuration",
	}
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configShowCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default castline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and campaign scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			components, err := app.Build(workspace, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			secret := os.Getenv("CASTLINE_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("CASTLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Repo:     components.Repo,
				Resolver: components.Resolver,
				Events:   components.Events,
				Auth:     server.AuthConfig{JWTSecret: secret, Logger: logger.Named("auth")},
				BasePath: basePath,
				Logger:   logger.Named("api"),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			schedDone := make(chan struct{})
			if noScheduler {
				close(schedDone)
			} else {
				go func() {
					defer close(schedDone)
					components.Scheduler.Run(ctx)
				}()
			}

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving castline API", zap.String("addr", addr), zap.String("base_path", basePath))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			<-schedDone
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without running campaigns")
	return cmd
}

// --- helpers ---

func withComponents(ctx context.Context, fn func(context.Context, *app.Components) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	components, err := app.Build(workspace, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(ctx, components)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func scheduleLabel(s domain.Schedule) string {
	switch s.Type {
	case domain.ScheduleWeekly:
		return fmt.Sprintf("%s %v %s", s.Type, s.DaysOfWeek, s.Time)
	default:
		return s.Type + " " + s.Time
	}
}
