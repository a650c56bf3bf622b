package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/history"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/internal/uuidutil"
	"github.com/spf13/cobra"
)

// ErrHistoryDisabled is returned by history commands when no database is configured.
var ErrHistoryDisabled = errors.New("run history is disabled (set database.enabled)")

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse recorded runs",
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	return cmd
}

// withHistory opens the history store for the duration of fn.
func withHistory(fn func(store history.Store) error) error {
	cfg, err := LoadConfig(flagConfig)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Database.Enabled {
		return ErrHistoryDisabled
	}

	store, closeDB, err := openHistory(cfg.Database, newLogger(cfg))
	if err != nil {
		return err
	}
	defer closeDB()
	return fn(store)
}

func newHistoryListCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(store history.Store) error {
				runs, err := store.List(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}

				if flagJSON {
					printJSON(runs)
					return nil
				}
				if len(runs) == 0 {
					printMessage("No runs recorded.")
					return nil
				}

				headers := []string{"ID", "STATUS", "MODES", "TARGETS", "SCREENSHOTS", "STARTED"}
				var rows [][]string
				for _, r := range runs {
					rows = append(rows, []string{
						r.ID.String(),
						string(r.Status),
						r.Modes,
						fmt.Sprintf("%d/%d", r.Successful, r.TotalTests),
						strconv.Itoa(r.TotalScreenshots),
						r.StartedAt.Local().Format(time.RFC3339),
					})
				}
				printTable(headers, rows)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its targets and comparisons",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuidutil.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run ID: %w", err)
			}

			return withHistory(func(store history.Store) error {
				run, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}

				if flagJSON {
					printJSON(run)
					return nil
				}

				printMessage(fmt.Sprintf("Run %s: %s (%s)", run.ID, run.Status, run.Modes))
				printMessage(fmt.Sprintf("Report: %s", valueOrDash(run.ReportPath)))
				printMessage("")

				headers := []string{"TARGET", "STATUS", "SCREENSHOTS", "NEW", "COMPARED", "ERROR"}
				var rows [][]string
				for _, t := range run.Targets {
					var created, compared int
					for _, c := range t.Comparisons {
						if c.IsNewBaseline {
							created++
						} else {
							compared++
						}
					}
					rows = append(rows, []string{
						t.Target,
						targetStatus(t),
						strconv.Itoa(t.Screenshots),
						strconv.Itoa(created),
						strconv.Itoa(compared),
						valueOrDash(t.Error),
					})
				}
				printTable(headers, rows)
				return nil
			})
		},
	}
}

func targetStatus(t history.RunTarget) string {
	switch {
	case t.Success:
		return "passed"
	case t.Skipped:
		return "skipped"
	default:
		return "failed"
	}
}
