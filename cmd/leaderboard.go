package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/naka-gawa/github-leaderboard/internal/config"
	"github.com/naka-gawa/github-leaderboard/internal/domain"
	"github.com/naka-gawa/github-leaderboard/internal/gateway"
	"github.com/naka-gawa/github-leaderboard/internal/report"
	"github.com/naka-gawa/github-leaderboard/internal/telemetry"
	"github.com/naka-gawa/github-leaderboard/internal/usecase"
)

func init() {
	rootCmd.AddCommand(newLeaderboardCommand())
}

func newLeaderboardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Builds the organization leaderboard and renders it as SVG",
		Long: `Lists every non-archived repository of the organization, sums each contributor's
commits over the window, enriches the top contributors with issue and pull request
counts, and writes the result as an SVG image. With --json the dataset is also
printed to standard output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runLeaderboard(ctx, cmd)
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("env-file", ".env", "Path to a .env file loaded before reading the environment")
	flags.StringP("org", "o", "", "Target GitHub organization name")
	flags.Int("months", 0, "Lookback window in months")
	flags.Int("overall-top", 0, "Number of contributors in the overall ranking")
	flags.Int("repo-top", 0, "Number of contributors per repository")
	flags.Int("enrich-repos", 0, "Number of repositories whose ranking gets issue and PR counts")
	flags.Int("concurrency", 0, "Repositories fetched in parallel")
	flags.String("output", "", "Path of the SVG file to write")
	flags.String("metrics-file", "", "Path of a Prometheus textfile to write run metrics to")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
	flags.Bool("json", false, "Also print the leaderboard as JSON to stdout")
	return cmd
}

func runLeaderboard(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := cfg.ResolveToken(ctx); err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}

	tracing, err := telemetry.SetupTracing(telemetry.TracingConfig{
		ServiceName:      "github-leaderboard",
		TraceMode:        cfg.Telemetry.TraceMode,
		TraceSampleRatio: cfg.Telemetry.TraceSampleRatio,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	metrics := telemetry.NewRunMetrics()
	started := time.Now()

	// Inject dependencies and run the main business logic.
	githubGateway, err := gateway.NewGitHubGateway(gateway.Options{
		Token:      cfg.GitHub.Token,
		APIBaseURL: cfg.GitHub.APIBaseURL,
		GraphQLURL: cfg.GitHub.GraphQLURL,
		PendingRetry: gateway.PendingRetryConfig{
			MaxAttempts:    cfg.Fetch.PendingMaxAttempts,
			InitialBackoff: cfg.Fetch.PendingInitialBackoff,
			MaxBackoff:     cfg.Fetch.PendingMaxBackoff,
		},
		Metrics: metrics,
	}, logger)
	if err != nil {
		return fmt.Errorf("create GitHub gateway: %w", err)
	}

	window := domain.NewTimeWindow(started, cfg.Window.Months)
	logger.Info("building leaderboard",
		zap.String("org", cfg.GitHub.Org),
		zap.String("window", window.DateRange()),
		zap.Int("concurrency", cfg.Fetch.Concurrency),
	)

	board := usecase.NewLeaderboard(githubGateway, logger, metrics)
	lb, err := board.Build(ctx, usecase.Options{
		Org:            cfg.GitHub.Org,
		Window:         window,
		OverallTopN:    cfg.Leaderboard.OverallTopN,
		PerRepoTopN:    cfg.Leaderboard.PerRepoTopN,
		EnrichTopRepos: cfg.Leaderboard.EnrichTopRepos,
		Parallelism:    cfg.Fetch.Concurrency,
		OrgQueryDelay:  cfg.Fetch.OrgQueryDelay,
		RepoQueryDelay: cfg.Fetch.RepoQueryDelay,
	})
	if err != nil {
		return fmt.Errorf("build leaderboard: %w", err)
	}

	doc := report.BuildDocument(lb)
	if err := report.WriteSVGFile(cfg.Render.OutputPath, doc, renderStyle(cfg.Render)); err != nil {
		return err
	}
	logger.Info("leaderboard written",
		zap.String("path", cfg.Render.OutputPath),
		zap.Int("lines", doc.Len()),
	)

	if printJSON, _ := cmd.Flags().GetBool("json"); printJSON {
		if err := report.WriteJSON(cmd.OutOrStdout(), lb); err != nil {
			return err
		}
	}

	metrics.Finish(started, time.Now())
	if err := metrics.WriteTextfile(cfg.Telemetry.MetricsFile); err != nil {
		// The artifact is already written; a metrics failure does not fail the run.
		logger.Warn("failed to write metrics textfile", zap.Error(err))
	}
	return nil
}

// loadConfig merges, in increasing priority, defaults, the config file, the
// environment (including .env) and explicitly set flags, then validates.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	envFile, _ := flags.GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if configPath, _ := flags.GetString("config"); configPath != "" {
		configFile, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer func() {
			_ = configFile.Close()
		}()
		if cfg, err = config.Load(configFile); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("org") {
		cfg.GitHub.Org, _ = flags.GetString("org")
	}
	if flags.Changed("months") {
		cfg.Window.Months, _ = flags.GetInt("months")
	}
	if flags.Changed("overall-top") {
		cfg.Leaderboard.OverallTopN, _ = flags.GetInt("overall-top")
	}
	if flags.Changed("repo-top") {
		cfg.Leaderboard.PerRepoTopN, _ = flags.GetInt("repo-top")
	}
	if flags.Changed("enrich-repos") {
		cfg.Leaderboard.EnrichTopRepos, _ = flags.GetInt("enrich-repos")
	}
	if flags.Changed("concurrency") {
		cfg.Fetch.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("output") {
		cfg.Render.OutputPath, _ = flags.GetString("output")
	}
	if flags.Changed("metrics-file") {
		cfg.Telemetry.MetricsFile, _ = flags.GetString("metrics-file")
	}
	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(level))
	}
	// The verbose flag lives on rootCmd.
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}
}

func newLogger(level string) (*zap.Logger, error) {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(level))
	return loggerConfig.Build()
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func renderStyle(cfg config.RenderConfig) report.Style {
	style := report.DefaultStyle()
	style.FontSize = cfg.FontSize
	style.LineHeight = cfg.LineHeight
	style.Margin = cfg.Margin
	style.CharWidth = cfg.CharWidth
	style.Background = cfg.Background
	style.Foreground = cfg.Foreground
	return style
}
