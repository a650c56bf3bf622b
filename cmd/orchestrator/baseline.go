package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBaselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Inspect and promote baseline screenshots",
	}

	cmd.AddCommand(newBaselineListCmd())
	cmd.AddCommand(newBaselinePromoteCmd())
	return cmd
}

func newBaselineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored baselines",
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

			entries, err := a.reconciler.List(ctx)
			if err != nil {
				return err
			}

			if flagJSON {
				printJSON(entries)
				return nil
			}
			if len(entries) == 0 {
				printMessage("No baselines found.")
				return nil
			}

			headers := []string{"NAME", "PATH", "URL"}
			var rows [][]string
			for _, e := range entries {
				rows = append(rows, []string{e.Name, e.Path, valueOrDash(e.URL)})
			}
			printTable(headers, rows)
			return nil
		},
	}
}

func newBaselinePromoteCmd() *cobra.Command {
	var (
		artifact string
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "promote <name>",
		Short: "Replace a baseline with a captured screenshot",
		Long:  "Copies a captured screenshot over the baseline for <name>. Without --artifact the most recent capture of <name> is used.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

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

			if artifact == "" {
				artifact, err = a.reconciler.LatestArtifact(ctx, name)
				if err != nil {
					return err
				}
			}

			if !confirmAction(fmt.Sprintf("Replace baseline %q with %s?", name, artifact), yes) {
				printMessage("Aborted.")
				return nil
			}

			key, err := a.reconciler.Promote(ctx, name, artifact)
			if err != nil {
				return err
			}

			if flagJSON {
				printJSON(map[string]string{"name": name, "artifact": artifact, "baseline": key})
				return nil
			}
			printMessage(fmt.Sprintf("Baseline %s updated from %s", key, artifact))
			return nil
		},
	}

	cmd.Flags().StringVar(&artifact, "artifact", "", "captured screenshot to promote (default: latest capture of <name>)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}
