package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-evals/internal/app"
	"github.com/stellarlinkco/agent-evals/internal/evalutil"
	"github.com/stellarlinkco/agent-evals/internal/orchestrator"
	"github.com/stellarlinkco/agent-evals/internal/scenario"
	"github.com/stellarlinkco/agent-evals/internal/store"
)

var errScenariosFailed = errors.New("evals: scenarios failed")

type runOptions struct {
	batchID      string
	dataset      string
	tag          string
	scenarioIDs  []string
	maxScenarios int
	maxTurns     int
	budget       float64
	model        string
	bilanActions int
	difficulty   string
	postCheckup  bool
	stopOnFirst  bool
	realAI       bool
	judgeRealAI  bool
	jsonOut      bool
}

func newRunCmd(st *cliState) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a batch of scenarios",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadCLIConfig(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.batchID, "batch-id", "", "stable batch id; re-running the same id resumes unfinished scenarios")
	cmd.Flags().StringVar(&opts.dataset, "dataset", "", "only run scenarios from this dataset")
	cmd.Flags().StringVar(&opts.tag, "tag", "", "only run scenarios carrying this tag")
	cmd.Flags().StringSliceVar(&opts.scenarioIDs, "scenario", nil, "scenario id to run (repeatable)")
	cmd.Flags().IntVar(&opts.maxScenarios, "max-scenarios", 0, "cap on scenarios per batch")
	cmd.Flags().IntVar(&opts.maxTurns, "max-turns", 0, "cap on turns per scenario")
	cmd.Flags().Float64Var(&opts.budget, "budget", 0, "USD budget; the batch stops once spend reaches it")
	cmd.Flags().StringVar(&opts.model, "model", "", "model override for simulator and judge calls")
	cmd.Flags().IntVar(&opts.bilanActions, "bilan-actions", 0, "number of actions activated at seed time")
	cmd.Flags().StringVar(&opts.difficulty, "difficulty", "", "simulated user difficulty (easy, normal, hard)")
	cmd.Flags().BoolVar(&opts.postCheckup, "post-checkup-deferral", false, "exercise the post-checkup deferral phase")
	cmd.Flags().BoolVar(&opts.stopOnFirst, "stop-on-first-failure", false, "stop the batch at the first scenario with issues")
	cmd.Flags().BoolVar(&opts.realAI, "real-ai", false, "use LLM simulator and judge instead of stubs")
	cmd.Flags().BoolVar(&opts.judgeRealAI, "judge-real-ai", false, "use the LLM judge even with the stub simulator")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the batch response as JSON")

	return cmd
}

func runBatch(cmd *cobra.Command, st *cliState, opts *runOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("run: missing config (internal error)")
	}

	scenarios, err := app.LoadScenarios(st.cfg.Evals.ScenariosDir)
	if err != nil {
		return err
	}
	scenarios = app.FilterScenarios(scenarios, opts.dataset, opts.tag, opts.scenarioIDs)
	if len(scenarios) == 0 {
		return fmt.Errorf("run: no scenarios selected")
	}

	stor, err := store.Open(st.cfg.Storage.Type, st.cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("run: open store: %w", err)
	}
	defer func() { _ = stor.Close() }()

	batchID := strings.TrimSpace(opts.batchID)
	if batchID == "" {
		batchID = "batch_" + evalutil.NewID()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := app.NewBatchRunner(st.cfg, stor, nil)
	resp, err := runner.Run(ctx, &app.BatchInput{
		BatchID:   batchID,
		Scenarios: scenarios,
		Limits: scenario.RunLimits{
			MaxScenarios:            opts.maxScenarios,
			MaxTurnsPerScenario:     opts.maxTurns,
			BudgetUSD:               opts.budget,
			Model:                   opts.model,
			BilanActionsCount:       opts.bilanActions,
			UserDifficulty:          opts.difficulty,
			TestPostCheckupDeferral: opts.postCheckup,
			StopOnFirstFailure:      opts.stopOnFirst,
			UseRealAI:               opts.realAI,
			JudgeForceRealAI:        opts.judgeRealAI,
		},
	})
	if err != nil {
		return err
	}

	if opts.jsonOut {
		if err := printBatchJSON(cmd, batchID, resp); err != nil {
			return err
		}
	} else {
		printBatchTable(cmd, batchID, resp)
	}

	for _, result := range resp.Results {
		if result.IssuesCount > 0 || result.Status == store.RunStatusFailed {
			return errScenariosFailed
		}
	}
	return nil
}

func printBatchJSON(cmd *cobra.Command, batchID string, resp *orchestrator.BatchResponse) error {
	out := struct {
		BatchID string `json:"batch_id"`
		*orchestrator.BatchResponse
	}{BatchID: batchID, BatchResponse: resp}

	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("run: marshal json: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
