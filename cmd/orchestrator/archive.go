package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/baseline"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/bundle"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/orchestrator"
	"github.com/spf13/cobra"
)

func newArchiveCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Bundle screenshots, baselines and reports into a .tar.zst archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(flagConfig)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, newLogger(cfg), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			now := time.Now()
			if output == "" {
				output = fmt.Sprintf("screenshots-%s.tar.zst", now.UTC().Format("20060102T150405Z"))
			}

			manifest, err := bundle.WriteFile(ctx, output, "", now, a.sources()...)
			if err != nil {
				return fmt.Errorf("failed to write archive: %w", err)
			}

			if flagJSON {
				printJSON(manifest)
				return nil
			}
			printMessage(fmt.Sprintf("Archived %d files to %s", len(manifest.Entries), output))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path (default screenshots-<timestamp>.tar.zst)")
	return cmd
}

// sources returns every store in full.
func (a *app) sources() []bundle.Source {
	return []bundle.Source{
		{Dir: "automated", Store: a.artifacts},
		{Dir: "baseline", Store: a.baselines},
		{Dir: "reports", Store: a.reports},
	}
}

// archiveOutcome bundles only the files produced or consulted by one run.
func archiveOutcome(ctx context.Context, a *app, outcome *orchestrator.Outcome, output string) (*bundle.Manifest, error) {
	var artifacts, baselines, reports []string
	for _, run := range outcome.Runs {
		for _, artifact := range run.Artifacts {
			artifacts = append(artifacts, artifact.Filename)
		}
		for _, record := range run.Comparisons {
			baselines = append(baselines, baseline.Key(record.Name))
		}
		if html := run.Result.Metadata["visualReport"]; html != "" {
			reports = append(reports, html, strings.TrimSuffix(html, ".html")+".json")
		}
	}
	if outcome.Written != nil {
		reports = append(reports, outcome.Written.HTML, outcome.Written.JSON)
	}

	var sources []bundle.Source
	for _, s := range []bundle.Source{
		{Dir: "automated", Store: a.artifacts, Keys: artifacts},
		{Dir: "baseline", Store: a.baselines, Keys: baselines},
		{Dir: "reports", Store: a.reports, Keys: reports},
	} {
		// Empty Keys would select the whole store.
		if len(s.Keys) > 0 {
			sources = append(sources, s)
		}
	}
	if len(sources) == 0 {
		return nil, bundle.ErrEmptyBundle
	}

	var at time.Time
	if outcome.Consolidated != nil {
		at = outcome.Consolidated.Timestamp
	} else {
		at = time.Now()
	}
	return bundle.WriteFile(ctx, output, outcome.RunID, at, sources...)
}
