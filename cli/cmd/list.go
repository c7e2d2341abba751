package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/attestor-io/strata/cli/render"
	"github.com/attestor-io/strata/cli/runscan"
	"github.com/attestor-io/strata/store"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// ListCommand returns the list command with subcommands.
// List returns thin slices, not inspect-level detail.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List entities (runs)",
		Subcommands: []*cli.Command{
			listRunsCommand(),
		},
	}
}

func listRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List runs in the store",
		Flags: append(ReadOnlyFlags(),
			StoreDirFlag,
			&cli.StringFlag{
				Name:  "state",
				Usage: "Filter by state: running, completed, failed",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: listRunsAction,
	}
}

func listRunsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for list commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	scanner := runscan.New(store.NewFS(c.String("store-dir")))

	opts := runscan.ListRunsOptions{
		Status: c.String("state"),
		Limit:  c.Int("limit"),
	}

	results, err := scanner.ListRuns(c.Context, opts)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(results) > listWarningThreshold && opts.Limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(results))
	}

	return r.Render(results)
}
