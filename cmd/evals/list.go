package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-evals/internal/app"
	"github.com/stellarlinkco/agent-evals/internal/store"
)

func newListCmd(st *cliState) *cobra.Command {
	var dataset, tag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadCLIConfig(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios, err := app.LoadScenarios(st.cfg.Evals.ScenariosDir)
			if err != nil {
				return err
			}
			scenarios = app.FilterScenarios(scenarios, dataset, tag, nil)
			if len(scenarios) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
				return nil
			}
			printScenarioTable(cmd, scenarios)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "filter by dataset key")
	cmd.Flags().StringVar(&tag, "tag", "", "filter by tag")
	return cmd
}

func newRunsCmd(st *cliState) *cobra.Command {
	var dataset string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent evaluation runs",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadCLIConfig(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			stor, err := store.Open(st.cfg.Storage.Type, st.cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("runs: open store: %w", err)
			}
			defer func() { _ = stor.Close() }()

			runs, err := stor.ListRuns(cmd.Context(), dataset, limit)
			if err != nil {
				return fmt.Errorf("runs: list: %w", err)
			}
			if len(runs) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			printRunsTable(cmd, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "filter by dataset key")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum runs to list")
	return cmd
}
