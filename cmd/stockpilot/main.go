// StockPilot: daily forecast and LLM analyst panel for a list of stocks.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/seenimoa/stockpilot/api"
	"github.com/seenimoa/stockpilot/internal/config"
	"github.com/seenimoa/stockpilot/internal/datasource"
	"github.com/seenimoa/stockpilot/internal/infra"
	"github.com/seenimoa/stockpilot/internal/llm"
	"github.com/seenimoa/stockpilot/internal/pipeline"
	"github.com/seenimoa/stockpilot/internal/report"
	"github.com/seenimoa/stockpilot/internal/scheduler"
	"github.com/seenimoa/stockpilot/internal/store"
	"github.com/seenimoa/stockpilot/pkg/models"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stockpilot",
	Short: "StockPilot: forecasts and analyst reports for your watchlist",
	Long: `StockPilot fetches prices, news and company profiles, builds a
statistical forecast ensemble, asks three LLM analysts for their view and
synthesizes a BUY / HOLD / SELL recommendation per symbol.

For educational purposes only. Not investment advice.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		level := cfg.Logging.Level
		if lv, _ := cmd.Flags().GetString("log-level"); lv != "" {
			level = lv
		}
		infra.SetupLogger(level, cfg.Logging.Format, os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("StockPilot %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Run Command ---

var runCmd = &cobra.Command{
	Use:   "run [SYMBOL...]",
	Short: "Analyze symbols once and write reports",
	Long: `Run the full pipeline for the given symbols, or for the configured
watchlist when none are given. One symbol failing never stops the others;
the command exits non-zero only when every symbol failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		symbols := cfg.Symbols
		if len(args) > 0 {
			symbols = args
		}
		noReport, _ := cmd.Flags().GetBool("no-report")
		text, _ := cmd.Flags().GetBool("text")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := newApp(nil)
		if err != nil {
			return err
		}
		defer app.Close()

		batch := app.pipeline.RunBatch(ctx, symbols)

		if text {
			for _, run := range batch.Succeeded() {
				out, err := report.GenerateText(run)
				if err != nil {
					return err
				}
				fmt.Println(out)
			}
		}
		if cfg.Report.Enabled && !noReport {
			paths, err := report.WriteAll(cfg.Report.OutputDir, batch, report.FromConfig(cfg.Report))
			if err != nil {
				log.Warn().Err(err).Msg("some reports could not be written")
			}
			if len(paths) > 0 {
				fmt.Printf("Reports written to %s\n", cfg.Report.OutputDir)
			}
		}
		fmt.Println(renderBatch(batch))
		app.logUsage()
		return batchError(batch)
	},
}

func init() {
	runCmd.Flags().Bool("no-report", false, "skip HTML report generation")
	runCmd.Flags().Bool("text", false, "print plain-text reports to stdout")
}

// --- Schedule Command ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the watchlist on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		now, _ := cmd.Flags().GetBool("now")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := newApp(nil)
		if err != nil {
			return err
		}
		defer app.Close()

		sched, err := app.scheduler()
		if err != nil {
			return err
		}
		if now || cfg.Schedule.RunOnStart {
			if _, err := sched.RunNow(ctx); err != nil {
				log.Error().Err(err).Msg("initial batch failed")
			}
		}

		sched.Start(ctx)
		fmt.Printf("Scheduled %d symbols with %q, next run %s\n",
			len(cfg.Symbols), cfg.Schedule.Cron, sched.Next().Format("Mon 02 Jan 15:04 MST"))
		<-ctx.Done()
		sched.Stop()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().Bool("now", false, "run one batch immediately before waiting for the schedule")
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		withSchedule, _ := cmd.Flags().GetBool("schedule")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		hub := api.NewWSHub()
		app, err := newApp(hub)
		if err != nil {
			return err
		}
		defer app.Close()

		if withSchedule {
			sched, err := app.scheduler()
			if err != nil {
				return err
			}
			sched.Start(ctx)
			defer sched.Stop()
			log.Info().Str("cron", cfg.Schedule.Cron).Msg("scheduler started")
		}

		srv := api.NewServer(cfg, app.pipeline, app.store, hub)
		addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
		fmt.Printf("Starting StockPilot API server on %s\n", addr)
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().Bool("schedule", false, "also run the cron scheduler in this process")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, API keys and LLM provider health",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(titleStyle.Render("StockPilot: System Status"))
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Println()

		fmt.Println(sectionStyle.Render("Configuration"))
		fmt.Printf("    Symbols:       %v\n", cfg.Symbols)
		fmt.Printf("    LLM Provider:  %s (model: %s)\n", cfg.LLM.Primary, cfg.LLM.Model)
		if len(cfg.LLM.Fallbacks) > 0 {
			fmt.Printf("    Fallbacks:     %v\n", cfg.LLM.Fallbacks)
		}
		fmt.Printf("    Horizon:       %d trading days\n", cfg.Forecast.Horizon)
		fmt.Printf("    Store:         %s\n", cfg.Store.Backend)
		fmt.Printf("    Schedule:      %s %s\n", cfg.Schedule.Cron, cfg.Schedule.Timezone)
		fmt.Printf("    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println()

		fmt.Println(sectionStyle.Render("API Keys"))
		for _, k := range config.CheckAPIKeys(cfg) {
			status := failStyle.Render("not set")
			if k.IsSet {
				status = okStyle.Render(fmt.Sprintf("set (%s: %s)", k.Source, k.Masked))
			}
			fmt.Printf("    %-28s %s\n", k.Name, status)
		}
		fmt.Println()

		router, err := llm.NewRouterFromConfig(cfg)
		if err != nil {
			return err
		}
		fmt.Println(sectionStyle.Render("LLM Providers"))
		for name, perr := range router.HealthCheck(cmd.Context()) {
			status := okStyle.Render("reachable")
			if perr != nil {
				status = failStyle.Render(perr.Error())
			}
			fmt.Printf("    %-28s %s\n", name, status)
		}
		return nil
	},
}

// ── wiring ──

type app struct {
	store    store.Store
	router   *llm.Router
	pipeline *pipeline.Pipeline
}

// newApp wires the store, LLM router and pipeline. Stage events go to the
// log and, when hub is non-nil, to WebSocket clients.
func newApp(hub *api.WSHub) (*app, error) {
	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, err
	}
	router, err := llm.NewRouterFromConfig(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("llm: %w", err)
	}

	obs := pipeline.Observers{pipeline.LogObserver{}}
	if hub != nil {
		obs = append(obs, hub)
	}
	return &app{
		store:    st,
		router:   router,
		pipeline: pipeline.NewFromConfig(cfg, router, st, obs),
	}, nil
}

func (a *app) scheduler() (*scheduler.Scheduler, error) {
	opts := scheduler.OptionsFromConfig(cfg)
	opts.OnBatch = func(b *models.BatchResult) {
		fmt.Println(renderBatch(b))
	}
	symbols := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols = append(symbols, datasource.NormalizeSymbol(s))
	}
	return scheduler.New(a.pipeline, symbols, opts)
}

// logUsage reports per-provider LLM calls made during this process.
func (a *app) logUsage() {
	for name, st := range a.router.Stats() {
		log.Info().Str("provider", name).Int("calls", st.Calls).Int("failures", st.Failures).
			Int("fallbacks", st.Fallbacks).Int("tokens", st.Tokens).Msg("llm usage")
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("closing store")
	}
}

// batchError is non-nil only when every symbol failed.
func batchError(b *models.BatchResult) error {
	if len(b.Status) == 0 {
		return errors.New("no symbols analyzed")
	}
	if failed := len(b.Failed()); failed == len(b.Status) {
		return fmt.Errorf("all %d symbols failed", failed)
	}
	return nil
}
