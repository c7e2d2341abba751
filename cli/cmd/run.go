package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/attestor-io/strata/adapter"
	"github.com/attestor-io/strata/adapter/redis"
	"github.com/attestor-io/strata/adapter/webhook"
	"github.com/attestor-io/strata/components"
	"github.com/attestor-io/strata/container"
	"github.com/attestor-io/strata/iox"
	"github.com/attestor-io/strata/journal"
	"github.com/attestor-io/strata/log"
	"github.com/attestor-io/strata/metrics"
	"github.com/attestor-io/strata/plan"
	"github.com/attestor-io/strata/registry"
	"github.com/attestor-io/strata/runtime"
	"github.com/attestor-io/strata/services/llm"
	"github.com/attestor-io/strata/store"
	"github.com/attestor-io/strata/types"
)

// Exit codes for the run command.
const (
	exitCompleted         = 0
	exitRunFailed         = 1
	exitPlanError         = 2
	exitInvalidInvocation = 3
)

// adapterPublishTimeout bounds the post-run notification publish. The
// run context may already be canceled by then, so adapters get their
// own deadline.
const adapterPublishTimeout = 15 * time.Second

// RunCommand returns the run command.
// This is the only command that executes work.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Plan and execute a runbook (the only execution entrypoint)",
		ArgsUsage: "<runbook.yaml>",
		Flags: []cli.Flag{
			// Execution flags
			StoreDirFlag,
			&cli.IntFlag{
				Name:  "max-concurrency",
				Usage: "Override the runbook's worker bound",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Override the runbook's run timeout",
			},
			&cli.StringFlag{
				Name:  "resume",
				Usage: "Resume an interrupted run by ID",
			},
			&cli.StringSliceFlag{
				Name:  "env",
				Usage: "Overlay KEY=VALUE onto the environment for runbook substitution (repeatable)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
			// Output flags
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a JSON run report to a path, or - for stderr",
			},
			&cli.StringFlag{
				Name:  "output-dir",
				Usage: "Export output artifacts as JSON into this directory",
			},
			// Journal flags
			&cli.StringFlag{
				Name:  "journal",
				Usage: "Journal backend: none, fs, or s3",
				Value: "fs",
			},
			&cli.StringFlag{
				Name:  "journal-path",
				Usage: "Journal location (fs: directory, s3: bucket/prefix); fs defaults to <store-dir>/journal",
			},
			&cli.StringFlag{
				Name:  "journal-s3-region",
				Usage: "AWS region for the S3 journal backend (optional, uses default chain)",
			},
			// Notification flags
			&cli.StringFlag{
				Name:  "redis-url",
				Usage: "Publish a run-completed event to this Redis URL",
			},
			&cli.StringFlag{
				Name:  "webhook-url",
				Usage: "POST a run-completed event to this URL",
			},
		},
		Action: runAction,
	}
}

// journalChoice holds parsed journal configuration.
type journalChoice struct {
	backend  string // "none", "fs", or "s3"
	path     string // fs: directory, s3: bucket/prefix
	s3Region string
}

func runAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("runbook path required", exitInvalidInvocation)
	}
	runbookPath := c.Args().First()

	// Overlay --env pairs before any substitution happens.
	if err := applyEnvOverlays(c.StringSlice("env")); err != nil {
		return cli.Exit(err.Error(), exitInvalidInvocation)
	}

	journalConfig := journalChoice{
		backend:  c.String("journal"),
		path:     c.String("journal-path"),
		s3Region: c.String("journal-s3-region"),
	}
	if err := validateJournalConfig(journalConfig); err != nil {
		return cli.Exit(err.Error(), exitInvalidInvocation)
	}

	logger := log.New(c.String("log-level"))
	defer iox.DiscardErr(logger.Sync)

	// Build the component registry from the builtin source. The LLM
	// factory is registered even when no API key is present; the
	// classifier reports unavailable at creation time in that case.
	services := container.New()
	llm.Register(services)
	reg := registry.New()
	if err := reg.Install(components.Builtin(services)); err != nil {
		return fmt.Errorf("failed to install builtin components: %w", err)
	}

	p, err := plan.NewPlanner(reg).Plan(runbookPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("plan failed: %v", err), exitPlanError)
	}

	resumeID := c.String("resume")
	runID := resumeID
	if runID == "" {
		runID = uuid.NewString()
	}

	st := store.NewFS(c.String("store-dir"))
	collector := metrics.NewCollector(runID, p.Runbook.Name, "fs")

	// Start time is "now" - used to derive the journal day partition.
	startTime := time.Now()
	jr, err := buildJournal(c.Context, journalConfig, c.String("store-dir"), runID, startTime, logger)
	if err != nil {
		return fmt.Errorf("failed to create journal: %w", err)
	}

	executor, err := runtime.NewExecutor(&runtime.ExecutorConfig{
		Plan:           p,
		Store:          st,
		Registry:       reg,
		RunID:          runID,
		Resume:         resumeID != "",
		MaxConcurrency: c.Int("max-concurrency"),
		Timeout:        c.Duration("timeout"),
		Logger:         logger,
		Journal:        jr,
		Collector:      collector,
	})
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	result, err := executor.Execute(ctx)
	if err != nil {
		closeJournal(jr, collector, logger)
		var changed *runtime.RunbookChangedError
		var active *runtime.RunActiveError
		if errors.As(err, &changed) || errors.As(err, &active) || errors.Is(err, store.ErrNotFound) {
			return cli.Exit(err.Error(), exitInvalidInvocation)
		}
		return fmt.Errorf("execution failed: %w", err)
	}
	duration := time.Since(startTime)

	closeJournal(jr, collector, logger)

	exitCode := statusToExitCode(result.Status)

	if path := c.String("report"); path != "" {
		report := runtime.BuildRunReport(result, collector.Snapshot(), exitCode)
		if err := runtime.WriteRunReport(report, path); err != nil {
			logger.Warn("run report write failed", map[string]any{"path": path, "error": err.Error()})
		}
	}

	if dir := c.String("output-dir"); dir != "" {
		exported, err := runtime.ExportOutputs(context.Background(), st, result, dir)
		if err != nil {
			logger.Warn("output export failed", map[string]any{"dir": dir, "error": err.Error()})
		} else if len(exported) > 0 {
			logger.Info("outputs exported", map[string]any{"dir": dir, "count": len(exported)})
		}
	}

	publishRunCompleted(c, result, st.Base(), logger)

	if !c.Bool("quiet") {
		printRunResult(result, duration)
	}

	return cli.Exit("", exitCode)
}

// applyEnvOverlays sets KEY=VALUE pairs on the process environment so
// runbook substitution sees them.
func applyEnvOverlays(pairs []string) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --env value %q (expected KEY=VALUE)", pair)
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

func validateJournalConfig(choice journalChoice) error {
	switch choice.backend {
	case "none", "fs":
		return nil
	case "s3":
		if choice.path == "" {
			return fmt.Errorf("--journal-path (bucket/prefix) required for the s3 journal backend")
		}
		return nil
	default:
		return fmt.Errorf("invalid --journal backend: %s (must be none, fs, or s3)", choice.backend)
	}
}

// buildJournal creates the run journal for the selected backend.
// Returns nil for the "none" backend; the journal API is nil-safe.
func buildJournal(ctx context.Context, choice journalChoice, storeDir, runID string, startTime time.Time, logger *log.Logger) (*journal.Journal, error) {
	var client journal.Client
	var err error

	switch choice.backend {
	case "none":
		return nil, nil
	case "fs":
		root := choice.path
		if root == "" {
			root = filepath.Join(storeDir, "journal")
		}
		client, err = journal.NewFSClient(root)
	case "s3":
		bucket, prefix := journal.ParseS3Path(choice.path)
		client, err = journal.NewS3Client(ctx, journal.S3Config{
			Bucket: bucket,
			Prefix: prefix,
			Region: choice.s3Region,
		})
	default:
		return nil, fmt.Errorf("unknown journal backend: %s", choice.backend)
	}
	if err != nil {
		return nil, err
	}

	return journal.New(client, journal.Config{
		RunID:  runID,
		Day:    journal.DeriveDay(startTime),
		Logger: logger,
	}), nil
}

// closeJournal flushes the journal and folds its write stats into the
// collector. Journal problems are logged, never fatal.
func closeJournal(jr *journal.Journal, collector *metrics.Collector, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := jr.Close(ctx); err != nil {
		logger.Warn("journal close failed", map[string]any{"error": err.Error()})
	}
	stats := jr.Stats()
	collector.AbsorbJournalStats(stats.Written, stats.Dropped, stats.Errors)
}

// publishRunCompleted notifies configured sinks that the run reached a
// terminal status. Publish failures are logged and never alter the run
// outcome or exit code.
func publishRunCompleted(c *cli.Context, result *runtime.ExecutionResult, storePath string, logger *log.Logger) {
	var adapters []adapter.Adapter

	if url := c.String("redis-url"); url != "" {
		a, err := redis.New(redis.Config{URL: url})
		if err != nil {
			logger.Warn("redis adapter init failed", map[string]any{"error": err.Error()})
		} else {
			adapters = append(adapters, a)
		}
	}
	if url := c.String("webhook-url"); url != "" {
		a, err := webhook.New(webhook.Config{URL: url})
		if err != nil {
			logger.Warn("webhook adapter init failed", map[string]any{"error": err.Error()})
		} else {
			adapters = append(adapters, a)
		}
	}
	if len(adapters) == 0 {
		return
	}

	completed, failed, skipped := result.Counts()
	event := &adapter.RunCompletedEvent{
		ContractVersion: types.Version,
		EventType:       "run_completed",
		RunID:           result.RunID,
		Runbook:         result.RunbookName,
		Status:          string(result.Status),
		Reason:          result.Reason,
		Completed:       completed,
		Failed:          failed,
		Skipped:         skipped,
		DurationMs:      result.Duration.Milliseconds(),
		StorePath:       storePath,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(context.Background(), adapterPublishTimeout)
	defer cancel()

	for _, a := range adapters {
		if err := a.Publish(ctx, event); err != nil {
			logger.Warn("run-completed publish failed", map[string]any{"error": err.Error()})
		}
		if err := a.Close(); err != nil {
			logger.Warn("adapter close failed", map[string]any{"error": err.Error()})
		}
	}
}

func statusToExitCode(status types.RunStatus) int {
	if status == types.RunStatusCompleted {
		return exitCompleted
	}
	return exitRunFailed
}

func printRunResult(result *runtime.ExecutionResult, duration time.Duration) {
	completed, failed, skipped := result.Counts()

	fmt.Printf("\nrun_id=%s, runbook=%s, status=%s, duration=%s\n",
		result.RunID,
		result.RunbookName,
		result.Status,
		duration.Round(time.Millisecond),
	)

	fmt.Printf("\n=== Run Result ===\n")
	fmt.Printf("Run ID:       %s\n", result.RunID)
	fmt.Printf("Runbook:      %s (%s)\n", result.RunbookName, result.RunbookPath)
	fmt.Printf("Status:       %s\n", result.Status)
	if result.Reason != "" {
		fmt.Printf("Reason:       %s\n", result.Reason)
	}
	fmt.Printf("Duration:     %s\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("Artifacts:    %d completed, %d failed, %d skipped\n", completed, failed, skipped)
	if len(result.NotStarted) > 0 {
		fmt.Printf("Not Started:  %s\n", strings.Join(result.NotStarted, ", "))
	}

	if failed > 0 || skipped > 0 {
		fmt.Printf("\n=== Failures ===\n")
		for _, ar := range result.SortedArtifacts() {
			switch ar.Status {
			case runtime.ArtifactFailed:
				fmt.Printf("  %s: %s\n", ar.ID, ar.Error)
			case runtime.ArtifactSkipped:
				fmt.Printf("  %s: skipped (dependency %s failed)\n", ar.ID, ar.Cause)
			}
		}
	}

	if outputs := result.Outputs(); len(outputs) > 0 {
		fmt.Printf("\n=== Outputs ===\n")
		for _, ar := range outputs {
			name := ar.Alias
			if name == "" {
				name = ar.ID
			}
			if ar.Redacted {
				fmt.Printf("  %s (redacted)\n", name)
			} else {
				fmt.Printf("  %s\n", name)
			}
		}
	}
}
