package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"replaylens/internal/app"
	"replaylens/internal/config"
	"replaylens/internal/db"
	"replaylens/internal/domain"
	"replaylens/internal/lichess"
	"replaylens/internal/migrate"
	"replaylens/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "replaylens",
	Short: "Replaylens CLI",
	Long: `Replaylens grades every move of a played chess game.
It pulls the game and engine evaluations from lichess, classifies each
move from accurate to blunder, computes per-player accuracy, and can ask
a language model for a plain-language review. Run 'replaylens serve' for
the HTTP API or 'replaylens analyze <url>' for a one-shot report.`,
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
	viper.SetEnvPrefix("REPLAYLENS")
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
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

func loadConfig() (*config.Config, error) {
	return config.LoadOptional(viper.GetString("workspace"))
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			handler, err := a.Handler(basePath)
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Replaylens API on http://%s%s (OpenAPI at /openapi.json)\n", cfg.Server.Addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var withSummary bool
	cmd := &cobra.Command{
		Use:   "analyze <game-url-or-id>",
		Short: "Analyze a game and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, err := lichess.ExtractGameID(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if !a.Store.BeginIfAbsent(gameID) {
				return fmt.Errorf("game %s already claimed", gameID)
			}
			a.Progress.Begin(gameID)
			rep, err := a.Runner.Run(cmd.Context(), gameID)
			if err != nil {
				return err
			}
			if withSummary {
				text, err := a.Summaries.Generate(cmd.Context(), rep)
				if err != nil {
					return fmt.Errorf("generate summary: %w", err)
				}
				rep.Summary = text
			}
			if viper.GetBool("json") {
				return printJSON(rep)
			}
			printReport(rep)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withSummary, "summary", false, "also generate the language model review")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <game-id>",
		Short: "Show an archived report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rep, err := r.GetReport(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				printReport(rep)
				return nil
			})
		},
	}
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rows, err := r.ListReports(ctx, limit, "", "")
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Game", "White", "Black", "Result", "W Acc", "B Acc", "Analyzed"})
				for _, row := range rows {
					tw.AppendRow(table.Row{
						row.GameID, row.White, row.Black, row.Result,
						fmt.Sprintf("%.1f", row.WhiteAccuracy),
						fmt.Sprintf("%.1f", row.BlackAccuracy),
						row.CreatedAt,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of reports")
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
	var gameID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				evts, err := r.LatestEvents(ctx, n, gameID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Game", "Payload"})
				for _, e := range evts {
					tw.AppendRow(table.Row{e.TS, e.Type, e.GameID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&gameID, "game", "", "filter by game id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
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
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

// --- helpers ---

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

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(rep *domain.Report) {
	g := rep.Game
	fmt.Printf("%s (%d) vs %s (%d)  %s\n", g.White.Name, g.White.Rating, g.Black.Name, g.Black.Rating, g.Result)
	if g.Opening != "" {
		fmt.Printf("Opening: %s\n", g.Opening)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Ply", "Move", "Side", "Delta", "Category", "Best"})
	for _, ev := range rep.Evaluations {
		tw.AppendRow(table.Row{ev.Ply, ev.SAN, ev.Side, formatDelta(ev), ev.Category, ev.BestMove})
	}
	tw.Render()
	fmt.Printf("White: %.1f accuracy, %s\n", rep.Stats.White.Accuracy, rep.Stats.White.Label)
	fmt.Printf("Black: %.1f accuracy, %s\n", rep.Stats.Black.Accuracy, rep.Stats.Black.Label)
	if rep.Summary != "" {
		fmt.Printf("\n%s\n", rep.Summary)
	}
}

func formatDelta(ev domain.MoveEvaluation) string {
	if ev.DeltaMate != nil {
		return fmt.Sprintf("mate %+d", *ev.DeltaMate)
	}
	if ev.DeltaCP != nil {
		return fmt.Sprintf("%+d cp", *ev.DeltaCP)
	}
	return "-"
}
