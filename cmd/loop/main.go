package main

import (
	"bufio"
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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"loopline/internal/ai"
	"loopline/internal/config"
	"loopline/internal/db"
	"loopline/internal/domain"
	"loopline/internal/engine"
	"loopline/internal/focus"
	"loopline/internal/inspect"
	"loopline/internal/migrate"
	"loopline/internal/repo"
	"loopline/internal/server"
	"loopline/internal/session"
	"loopline/internal/sync"
)

var rootCmd = &cobra.Command{
	Use:   "loop",
	Short: "Loopline CLI",
	Long: `Loopline keeps every captured distraction as an open loop until you
confront it. Capture turns an impulse into an uncommitted card; a
confrontation forces one of three decisions: execute it now inside a
bounded window, shadow it for later, or discard it for good. The status
line aggregates all open loops into a single system state.`,
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
	viper.SetEnvPrefix("LOOPLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(captureCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(confrontCmd())
	rootCmd.AddCommand(focusCmd())
	rootCmd.AddCommand(domainsCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func captureCmd() *cobra.Command {
	var sourceType, platform, title, category string
	var duration int
	cmd := &cobra.Command{
		Use:   "capture <content>",
		Short: "Capture an open loop",
		Long:  "Turn an impulse into an uncommitted card instead of acting on it. The card waits until you confront it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				card, err := e.Capture(ctx, engine.CaptureOptions{
					SourceType:      sourceType,
					SourceContent:   args[0],
					PlatformName:    platform,
					ExtractedTitle:  title,
					Category:        category,
					DurationMinutes: duration,
					ActorID:         viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(card)
			})
		},
	}
	cmd.Flags().StringVar(&sourceType, "type", "text", "source type (url, text, image)")
	cmd.Flags().StringVar(&platform, "platform", "", "platform name")
	cmd.Flags().StringVar(&title, "title", "", "extracted title")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().IntVar(&duration, "duration", 0, "execute duration in minutes (default from config)")
	return cmd
}

func listCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cards, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				cards, err := e.List(ctx)
				if err != nil {
					return err
				}
				if state != "" {
					filtered := cards[:0:0]
					for _, c := range cards {
						if c.State == state {
							filtered = append(filtered, c)
						}
					}
					cards = filtered
				}
				if viper.GetBool("json") {
					return printJSON(cards)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "State", "Confronts", "Created"})
				for _, c := range cards {
					tw.AppendRow(table.Row{shortID(c.ID), cardTitle(c), c.State, c.TotalConfrontations, c.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "state filter (uncommitted, executed, shadowed, discarded)")
	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				card, err := resolveCard(ctx, e, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(card)
			})
		},
	}
	return cmd
}

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a card record entirely",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				card, err := resolveCard(ctx, e, args[0])
				if err != nil {
					return err
				}
				return e.Delete(ctx, card.ID, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func confrontCmd() *cobra.Command {
	var decision, startAction, stopRule string
	var duration int
	cmd := &cobra.Command{
		Use:   "confront <id>",
		Short: "Confront a card through the three-phase session",
		Long: `Walk one card through Gate, Reality Check, and Decision. Quitting at
any point cancels the session: the card reverts, but the confrontation
still counts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				card, err := resolveCard(ctx, e, args[0])
				if err != nil {
					return err
				}
				s, err := session.Begin(ctx, e, card.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if decision != "" {
					// non-interactive: pass the gate, sit out the check, decide
					if err := s.Proceed(); err != nil {
						return err
					}
					if err := s.Wait(ctx); err != nil {
						_, _ = s.Cancel()
						return err
					}
					decided, err := s.Decide(ctx, decision, startAction, stopRule, duration)
					if err != nil {
						_, _ = s.Cancel()
						return err
					}
					return printJSONOrTable(decided)
				}
				return runInteractiveConfrontation(ctx, e, s)
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decide", "", "skip prompts and decide (execute, shadow, discard)")
	cmd.Flags().StringVar(&startAction, "start-action", "", "first concrete step (execute)")
	cmd.Flags().StringVar(&stopRule, "stop-rule", "", "when to stop (execute)")
	cmd.Flags().IntVar(&duration, "duration", 0, "execute duration in minutes")
	return cmd
}

func runInteractiveConfrontation(ctx context.Context, e *engine.Engine, s *session.Session) error {
	in := bufio.NewReader(os.Stdin)
	card := s.Card()

	fmt.Printf("\n  %s\n", cardTitle(card))
	if card.AISummary != "" {
		fmt.Printf("  %s\n", card.AISummary)
	}
	fmt.Printf("  captured %s, confrontation #%d\n\n", card.CreatedAt, card.TotalConfrontations)
	fmt.Print("This loop is still open. Face it now? [Enter to proceed, q to walk away] ")
	line, err := in.ReadString('\n')
	if err != nil || strings.TrimSpace(line) == "q" {
		reverted, cerr := s.Cancel()
		if cerr != nil {
			return cerr
		}
		fmt.Printf("Walked away; card back to %s.\n", reverted.State)
		return nil
	}
	if err := s.Proceed(); err != nil {
		return err
	}

	fmt.Print("Look at it. ")
	if err := s.Wait(ctx); err != nil {
		_, _ = s.Cancel()
		return err
	}
	fmt.Println("Decide.")

	fmt.Print("[e]xecute now, [s]hadow for later, [d]iscard for good, [q] walk away: ")
	line, err = in.ReadString('\n')
	if err != nil {
		_, _ = s.Cancel()
		return err
	}
	var decision string
	switch strings.TrimSpace(strings.ToLower(line)) {
	case "e":
		decision = domain.DecisionExecute
	case "s":
		decision = domain.DecisionShadow
	case "d":
		decision = domain.DecisionDiscard
	default:
		reverted, cerr := s.Cancel()
		if cerr != nil {
			return cerr
		}
		fmt.Printf("Walked away; card back to %s.\n", reverted.State)
		return nil
	}
	decided, err := s.Decide(ctx, decision, "", "", 0)
	if err != nil {
		_, _ = s.Cancel()
		return err
	}
	switch decided.State {
	case domain.StateExecuted:
		fmt.Printf("\nExecute within %d minutes.\n  start: %s\n  stop:  %s\n", decided.ExecuteDuration, decided.StartAction, decided.StopRule)
		fmt.Printf("Run 'loop focus start %s' when you begin.\n", shortID(decided.ID))
	case domain.StateShadowed:
		fmt.Println("\nShadowed. It stays on the board and keeps counting.")
	case domain.StateDiscarded:
		fmt.Println("\nDiscarded. The loop is closed.")
	}
	return nil
}

func focusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "focus",
		Short: "Execution windows",
		Long:  "Start, watch, and end the bounded execution window of an executed card.",
	}
	cmd.AddCommand(focusStartCmd())
	cmd.AddCommand(focusWatchCmd())
	cmd.AddCommand(focusStopCmd())
	cmd.AddCommand(focusAbortCmd())
	return cmd
}

func focusStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start the execution timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				card, err := resolveCard(ctx, e, args[0])
				if err != nil {
					return err
				}
				started, err := e.StartTimer(ctx, card.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(started)
			})
		},
	}
	return cmd
}

func focusWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Watch a running execution window",
		Long: `Run the focus monitor against the active browser tab (or the configured
static surface): countdown plus domain compliance. Breaches are advisory;
they are logged and shown, never enforced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withEngine(ctx, func(ctx context.Context, e *engine.Engine) error {
				card, err := resolveCard(ctx, e, args[0])
				if err != nil {
					return err
				}
				return watchFocus(ctx, e, card)
			})
		},
	}
	return cmd
}

func watchFocus(ctx context.Context, e *engine.Engine, card domain.Card) error {
	inspector := inspect.FromConfig(e.Config)
	actorID := viper.GetString("actor-id")
	expired := make(chan struct{})
	mon, err := focus.NewMonitor(card, inspector, focus.Options{
		Tick: e.Config.TickInterval(),
		Poll: e.Config.PollInterval(),
		Hooks: focus.Hooks{
			OnTick: func(remaining time.Duration) {
				fmt.Printf("\r  %s remaining   ", remaining.Round(time.Second))
			},
			OnBreach: func(offending string) {
				fmt.Printf("\n  off the path: %s\n", offending)
				if err := e.RecordBreach(context.Background(), card.ID, offending, actorID); err != nil {
					fmt.Printf("  record breach: %v\n", err)
				}
			},
			OnClear: func() {
				fmt.Println("\n  back on the path")
			},
			OnExpired: func() {
				close(expired)
			},
		},
	})
	if err != nil {
		return err
	}
	mon.Start()
	defer mon.Stop()

	select {
	case <-expired:
		fmt.Println("\nTime is up. Stop (close the loop) or abort (back to shadow):")
		fmt.Printf("  loop focus stop %s\n  loop focus abort %s\n", shortID(card.ID), shortID(card.ID))
		return nil
	case <-ctx.Done():
		fmt.Println("\nWatch interrupted; the window keeps running.")
		return nil
	}
}

func focusStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop execution, closing the loop for good",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				card, err := resolveCard(ctx, e, args[0])
				if err != nil {
					return err
				}
				stopped, err := e.StopExecution(ctx, card.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(stopped)
			})
		},
	}
	return cmd
}

func focusAbortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abort <id>",
		Short: "Abort execution; the card returns to shadowed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				card, err := resolveCard(ctx, e, args[0])
				if err != nil {
					return err
				}
				aborted, err := e.AbortExecution(ctx, card.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(aborted)
			})
		},
	}
	return cmd
}

func domainsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "Per-card execution whitelists",
	}
	cmd.AddCommand(domainsAddCmd())
	cmd.AddCommand(domainsRemoveCmd())
	cmd.AddCommand(domainsListCmd())
	return cmd
}

func domainsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <id> <domain>",
		Short: "Whitelist a domain for a card's execution window",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				card, err := resolveCard(ctx, e, args[0])
				if err != nil {
					return err
				}
				updated, err := e.AddAllowedDomain(ctx, card.ID, args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(updated.AllowedDomains)
			})
		},
	}
	return cmd
}

func domainsRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id> <domain>",
		Short: "Remove a whitelisted domain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				card, err := resolveCard(ctx, e, args[0])
				if err != nil {
					return err
				}
				updated, err := e.RemoveAllowedDomain(ctx, card.ID, args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(updated.AllowedDomains)
			})
		},
	}
	return cmd
}

func domainsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <id>",
		Short: "List a card's whitelisted domains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				card, err := resolveCard(ctx, e, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(card.AllowedDomains)
			})
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the aggregated system state",
		Long: `One line for the whole board: focused, deferred, void, stable,
turbulent, or critical. A corrupt card blob normally fails open to an empty
board; --strict fails closed and reports the corruption instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if strict {
					if _, err := e.Repo.LoadCards(ctx); err != nil {
						return err
					}
				}
				m, err := e.Metrics(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				fmt.Printf("system: %s\n", m.State)
				fmt.Printf("  open loops:  %d (%d uncommitted, %d shadowed, %d executing)\n",
					m.TotalOpenLoops, m.UncommittedCount, m.ShadowedCount, m.ExecutingCount)
				fmt.Printf("  captures:    %d\n", m.TotalCaptures)
				if m.LastClosedAt != nil {
					fmt.Printf("  last closed: %s\n", *m.LastClosedAt)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on a corrupt card blob instead of reporting an empty board")
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
	var evtType, cardID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, cardID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&cardID, "card-id", "", "card id filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "API keys for the HTTP server",
	}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create <key>",
		Short: "Register an API key for the current actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				key := domain.APIKey{
					ID:        repo.HashAPIKey(args[0])[:12],
					ActorID:   viper.GetString("actor-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(args[0]),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// never echo the raw key back
				key.KeyHash = ""
				return printJSONOrTable(key)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				for i := range keys {
					keys[i].KeyHash = ""
				}
				return printJSONOrTable(keys)
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Workspace config",
	}
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configShowCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default loopline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			wireCollaborators(cmd.Context(), e, cfg)
			authCfg := server.AuthConfig{
				JWTSecret: os.Getenv("LOOPLINE_JWT_SECRET"),
				DevLogin:  devLogin,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("LOOPLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Loopline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose /auth/dev/login (local only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	wireCollaborators(ctx, e, cfg)
	return fn(ctx, e)
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

// wireCollaborators attaches the optional AI suggester and outbound sync.
// Both degrade to nothing when unconfigured.
func wireCollaborators(ctx context.Context, e *engine.Engine, cfg *config.Config) {
	if suggester, err := ai.New(ctx, cfg); err != nil {
		fmt.Printf("warning: ai suggester unavailable: %v\n", err)
	} else if suggester != nil {
		e.Suggest = suggester
	}
	sync.Start(e, cfg)
}

// resolveCard accepts a full card id or an unambiguous prefix.
func resolveCard(ctx context.Context, e *engine.Engine, id string) (domain.Card, error) {
	card, err := e.Get(ctx, id)
	if err == nil {
		return card, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Card{}, err
	}
	cards, err := e.List(ctx)
	if err != nil {
		return domain.Card{}, err
	}
	var match *domain.Card
	for i := range cards {
		if strings.HasPrefix(cards[i].ID, id) {
			if match != nil {
				return domain.Card{}, fmt.Errorf("ambiguous card id prefix %q", id)
			}
			match = &cards[i]
		}
	}
	if match == nil {
		return domain.Card{}, repo.ErrNotFound
	}
	return *match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func cardTitle(c domain.Card) string {
	if c.AITitle != "" {
		return c.AITitle
	}
	if c.ExtractedTitle != "" {
		return c.ExtractedTitle
	}
	if len(c.SourceContent) > 60 {
		return c.SourceContent[:57] + "..."
	}
	return c.SourceContent
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
