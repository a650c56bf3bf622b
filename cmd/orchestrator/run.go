package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/orchestrator"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/process"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/report"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/scenario"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/telemetry"
	"github.com/spf13/cobra"
)

type runOptions struct {
	mode        string
	interactive bool
	port        int
	scenario    string
	archive     string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture screenshots on the selected targets and compare them with baselines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(flagConfig)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Web.Port = opts.port
			}
			if opts.scenario != "" {
				cfg.Scenario = opts.scenario
			}
			return runScreenshots(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "all", "targets to run: web, android, integration, hosted or all (comma separated)")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "choose the targets interactively")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 8080, "web app port")
	cmd.Flags().StringVarP(&opts.scenario, "scenario", "s", "", "scenario file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.archive, "archive", "", "write a .tar.zst archive of the run to this path")

	return cmd
}

func runScreenshots(ctx context.Context, cfg *Config, opts *runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		kinds []report.TargetKind
		err   error
	)
	if opts.interactive {
		kinds, err = promptTargets(stdin, stdout)
	} else {
		kinds, err = report.ParseTargets(opts.mode)
	}
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	log.Info(ctx, "starting run", map[string]interface{}{
		"version": Version,
		"targets": kinds,
	})

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn(ctx, "failed to flush traces", map[string]interface{}{"error": err.Error()})
		}
	}()

	process.CheckDependencies(ctx, process.DefaultDependencies(), nil, log)

	sc, err := loadScenario(cfg.Scenario)
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}

	a, err := newApp(ctx, cfg, log, appOptions{history: true, events: true})
	if err != nil {
		return err
	}
	defer a.Close()

	return executeRun(ctx, a, kinds, sc, opts.archive)
}

// executeRun drives kinds and prints the outcome. Failed or skipped targets
// are reported in the outcome only; the returned error is set when a report
// could not be written.
func executeRun(ctx context.Context, a *app, kinds []report.TargetKind, sc *scenario.Scenario, archive string) error {
	procs := &process.Group{}
	targets, err := a.buildTargets(procs)
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Config{
		Targets:         targets,
		Writer:          a.writer,
		History:         a.history,
		Events:          a.events,
		Metrics:         a.metrics,
		MetricsTextfile: a.cfg.Metrics.Textfile,
		Processes:       procs,
		Snapshot:        a.snapshot(sc.Name),
	}, a.newCoordinator(), a.log)

	outcome, runErr := orch.Run(ctx, kinds, sc)
	if outcome == nil {
		return runErr
	}

	if archive != "" {
		manifest, err := archiveOutcome(ctx, a, outcome, archive)
		if err != nil {
			a.log.Error(ctx, "failed to archive run", map[string]interface{}{
				"output": archive,
				"error":  err.Error(),
			})
		} else {
			a.log.Info(ctx, "run archived", map[string]interface{}{
				"output":  archive,
				"entries": len(manifest.Entries),
			})
		}
	}

	printOutcome(a.cfg, outcome)
	return runErr
}

type runSummary struct {
	RunID        string                     `json:"runId"`
	Success      bool                       `json:"success"`
	Consolidated *report.ConsolidatedReport `json:"consolidated"`
	Reports      *report.Written            `json:"reports,omitempty"`
}

func printOutcome(cfg *Config, outcome *orchestrator.Outcome) {
	if flagJSON {
		printJSON(runSummary{
			RunID:        outcome.RunID,
			Success:      outcome.Success(),
			Consolidated: outcome.Consolidated,
			Reports:      outcome.Written,
		})
		return
	}

	headers := []string{"TARGET", "STATUS", "SCREENSHOTS", "DURATION", "ERROR"}
	var rows [][]string
	for _, run := range outcome.Runs {
		res := run.Result
		rows = append(rows, []string{
			string(res.Target),
			resultStatus(res),
			strconv.Itoa(res.Screenshots),
			res.Duration().Round(time.Millisecond).String(),
			valueOrDash(res.Error),
		})
	}
	printTable(headers, rows)

	if c := outcome.Consolidated; c != nil {
		printMessage("")
		printMessage(fmt.Sprintf("Targets: %d total, %d successful, %d failed",
			c.Summary.TotalTests, c.Summary.Successful, c.Summary.Failed))
		printMessage(fmt.Sprintf("Screenshots: %d total, %d new baselines, %d compared",
			c.Visual.TotalScreenshots, c.Visual.NewBaselines, c.Visual.Comparisons))
	}
	if w := outcome.Written; w != nil {
		printMessage(fmt.Sprintf("Report: %s", filepath.Join(cfg.Reports.Dir, w.HTML)))
	}
}

func resultStatus(res report.RunResult) string {
	switch {
	case res.Success:
		return "passed"
	case res.Skipped:
		return "skipped"
	default:
		return "failed"
	}
}
