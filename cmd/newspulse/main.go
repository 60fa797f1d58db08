// NewsPulse is a news intelligence pipeline: it ingests articles from
// feeds, APIs and scraped sites, enriches them with LLM-derived signals,
// and serves windowed analytics and keyword alerts from the result.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/newspulse/newspulse/internal/alerts"
	"github.com/newspulse/newspulse/internal/analytics"
	"github.com/newspulse/newspulse/internal/config"
	"github.com/newspulse/newspulse/internal/enrich"
	"github.com/newspulse/newspulse/internal/pipeline"
	"github.com/newspulse/newspulse/internal/scheduler"
	"github.com/newspulse/newspulse/internal/store"
	"github.com/newspulse/newspulse/pkg/llm"
	"github.com/newspulse/newspulse/pkg/logbuf"
	"github.com/newspulse/newspulse/pkg/notify"
)

var version = "dev"

var (
	configPath string
	logBuffer  = logbuf.New(logbuf.DefaultCapacity)
)

func main() {
	// Missing .env is fine; the environment may be set by the host.
	godotenv.Load()

	handler := logbuf.NewHandler(slog.NewTextHandler(os.Stderr, nil), logBuffer)
	slog.SetDefault(slog.New(handler))

	rootCmd := &cobra.Command{
		Use:   "newspulse",
		Short: "News ingestion, enrichment and alerting pipeline",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "newspulse.yaml", "path to config file")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(cycleCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(alertsCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired components behind every command.
type app struct {
	cfg      *config.Config
	store    store.Store
	llm      llm.Client
	orch     *pipeline.Orchestrator
	engine   *analytics.Engine
	eval     *alerts.Evaluator
	shutdown func()
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create LLM client: %w", err)
	}

	sink := notify.NewDispatcher(slog.Default())
	if cfg.Notify.Stdout {
		sink.Register(notify.NewStdoutNotifier(nil))
	}
	if cfg.Notify.WebhookURL != "" {
		sink.Register(notify.NewWebhookNotifier(notify.WebhookConfig{URL: cfg.Notify.WebhookURL}))
	}

	enricher := enrich.New(client, slog.Default())
	return &app{
		cfg:    cfg,
		store:  st,
		llm:    client,
		orch:   pipeline.NewOrchestrator(st, enricher, cfg, slog.Default()),
		engine: analytics.NewEngine(st, slog.Default()),
		eval:   alerts.NewEvaluator(st, sink, slog.Default()),
		shutdown: func() {
			client.Close()
			st.Close()
		},
	}, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline daemon with all scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			if err := a.orch.SyncFeeds(ctx); err != nil {
				return err
			}

			sched := scheduler.New(slog.Default())
			sched.Add(scheduler.Job{
				Name:       "ingest",
				Interval:   a.cfg.Ingest.Interval,
				RunOnStart: true,
				Run: func(ctx context.Context) error {
					_, err := a.orch.RunCycle(ctx)
					return err
				},
			})
			sched.Add(scheduler.Job{
				Name:     "alerts",
				Interval: a.cfg.Alerts.Interval,
				Run: func(ctx context.Context) error {
					_, err := a.eval.Evaluate(ctx, time.Now())
					return err
				},
			})
			sched.Add(scheduler.Job{
				Name:     "snapshot",
				Interval: a.cfg.Analytics.SnapshotInterval,
				Run: func(ctx context.Context) error {
					for _, tf := range []store.Timeframe{store.TimeframeHour, store.TimeframeDay, store.TimeframeWeek, store.TimeframeMonth} {
						if _, err := a.engine.CacheSnapshot(ctx, tf, time.Now()); err != nil {
							return err
						}
					}
					return nil
				},
			})

			sched.Start(ctx)
			<-ctx.Done()
			slog.Info("shutting down")
			sched.Stop()
			printRunSummary(os.Stdout, sched.Status(), logBuffer)
			return nil
		},
	}
}

// printRunSummary renders the final job run state and the buffered log
// tail when the daemon exits.
func printRunSummary(w io.Writer, jobs []scheduler.JobStatus, buf *logbuf.Buffer) {
	fmt.Fprintln(w, "jobs:")
	for _, js := range jobs {
		fmt.Fprintf(w, "  %-10s runs=%d failures=%d", js.Name, js.Runs, js.Failures)
		if !js.LastRun.IsZero() {
			fmt.Fprintf(w, " last=%s", js.LastRun.Format("15:04:05"))
		}
		if js.LastError != "" {
			fmt.Fprintf(w, " error=%q", js.LastError)
		}
		fmt.Fprintln(w)
	}

	counts := buf.CountByLevel()
	fmt.Fprintf(w, "log: %d warnings, %d errors\n", counts[slog.LevelWarn], counts[slog.LevelError])
	for _, e := range buf.Recent(10) {
		fmt.Fprintf(w, "  %s %-5s %s\n", e.Time.Format("15:04:05"), e.Level, e.Message)
	}
}

func cycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one ingestion cycle and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			if err := a.orch.SyncFeeds(ctx); err != nil {
				return err
			}
			report, err := a.orch.RunCycle(ctx)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}

func evaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate keyword tracks and raise alerts once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			raised, err := a.eval.Evaluate(ctx, time.Now())
			if err != nil {
				return err
			}
			if len(raised) == 0 {
				fmt.Println("no alerts raised")
				return nil
			}
			return printJSON(raised)
		},
	}
}

func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Cache analytics snapshots for every timeframe",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			for _, tf := range []store.Timeframe{store.TimeframeHour, store.TimeframeDay, store.TimeframeWeek, store.TimeframeMonth} {
				if _, err := a.engine.CacheSnapshot(ctx, tf, time.Now()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func metricsCmd() *cobra.Command {
	var timeframe string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Compute dashboard metrics for a timeframe",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			m, err := a.engine.ComputeMetrics(ctx, store.Timeframe(timeframe), time.Now())
			if err != nil {
				return err
			}
			return printJSON(m)
		},
	}
	cmd.Flags().StringVarP(&timeframe, "timeframe", "t", "day", "hour, day, week or month")
	return cmd
}

func watchCmd() *cobra.Command {
	var (
		category  string
		volume    float64
		sentiment float64
	)

	cmd := &cobra.Command{
		Use:   "watch <keyword>",
		Short: "Track a keyword for volume and sentiment alerts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			track := &store.KeywordTrack{
				Keyword:                args[0],
				Category:               category,
				Active:                 true,
				VolumeSpikePercent:     volume,
				SentimentChangePercent: sentiment,
				CreatedAt:              time.Now(),
			}
			if err := a.store.UpsertTrack(ctx, track); err != nil {
				return err
			}
			fmt.Printf("watching %q (volume spike >= %.0f%%, sentiment change >= %.0f points)\n",
				track.Keyword, volume, sentiment)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "optional category label")
	cmd.Flags().Float64Var(&volume, "volume", 50, "volume spike threshold in percent, 0 disables")
	cmd.Flags().Float64Var(&sentiment, "sentiment", 25, "sentiment change threshold in points, 0 disables")
	return cmd
}

func alertsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show recent alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			recent, err := a.store.RecentAlerts(ctx, limit)
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				fmt.Println("no alerts")
				return nil
			}
			for _, al := range recent {
				fmt.Printf("%s  [%s] %s\n", al.CreatedAt.Format("2006-01-02 15:04"), al.Severity, al.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum alerts to show")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show feed health and article counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			feeds, err := a.store.ListActiveFeeds(ctx)
			if err != nil {
				return err
			}
			now := time.Now()
			count24h, err := a.store.CountArticlesBetween(ctx, now.Add(-24*time.Hour), now)
			if err != nil {
				return err
			}

			fmt.Printf("articles ingested in the last 24h: %d\n\n", count24h)
			if len(feeds) == 0 {
				fmt.Println("no feeds configured (run 'newspulse seed' after adding feeds to the config)")
				return nil
			}
			for _, f := range feeds {
				state := "ok"
				if f.ErrorCount > 0 {
					state = fmt.Sprintf("%d consecutive errors: %s", f.ErrorCount, f.LastError)
				}
				last := "never"
				if !f.LastSuccessAt.IsZero() {
					last = f.LastSuccessAt.Format("2006-01-02 15:04")
				}
				fmt.Printf("%-30s last success: %-17s %s\n", f.Name, last, state)
			}
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Sync configured feeds into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			if err := a.orch.SyncFeeds(ctx); err != nil {
				return err
			}
			fmt.Printf("synced %d feeds\n", len(a.cfg.Feeds))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("newspulse %s\n", version)
		},
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
