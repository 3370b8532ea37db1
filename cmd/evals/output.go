package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-evals/internal/orchestrator"
	"github.com/stellarlinkco/agent-evals/internal/scenario"
	"github.com/stellarlinkco/agent-evals/internal/store"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
)

func coloredStatus(passed bool) string {
	if passed {
		return colorGreen + "PASS" + colorReset
	}
	return colorRed + "FAIL" + colorReset
}

func printBatchTable(cmd *cobra.Command, batchID string, resp *orchestrator.BatchResponse) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Batch: %s\n\n", batchID)

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Scenario", "Run", "Result", "Turns", "Issues", "Suggestions", "Cost (USD)"})
	table.SetBorder(false)
	for _, r := range resp.Results {
		table.Append([]string{
			r.ScenarioKey,
			r.EvalRunID,
			coloredStatus(r.IssuesCount == 0 && r.Status != store.RunStatusFailed),
			strconv.Itoa(r.TurnsExecuted),
			strconv.Itoa(r.IssuesCount),
			strconv.Itoa(r.SuggestionsCount),
			fmt.Sprintf("%.4f", r.CostUSD),
		})
	}
	table.Render()

	_, _ = fmt.Fprintf(out, "\nSummary: ran=%d cost_usd=%.4f\n", resp.Ran, resp.TotalCostUSD)
	if resp.StoppedReason != "" {
		_, _ = fmt.Fprintf(out, "Stopped: %s\n", resp.StoppedReason)
	}
}

func printScenarioTable(cmd *cobra.Command, scenarios []scenario.Scenario) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Dataset", "ID", "Channel", "Mode", "Steps", "Tags"})
	table.SetBorder(false)
	for i := range scenarios {
		sc := &scenarios[i]
		channel := sc.Channel
		if channel == "" {
			channel = scenario.ChannelDirect
		}
		mode := "scripted"
		if strings.TrimSpace(sc.Persona) != "" {
			mode = "simulated"
		}
		table.Append([]string{
			sc.DatasetKey,
			sc.ID,
			channel,
			mode,
			strconv.Itoa(len(sc.Steps)),
			strings.Join(sc.Tags, ","),
		})
	}
	table.Render()
}

func printRunsTable(cmd *cobra.Command, runs []*store.EvalRun) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Run", "Scenario", "Status", "Turns", "Issues", "Cost (USD)", "Updated"})
	table.SetBorder(false)
	for _, run := range runs {
		table.Append([]string{
			run.ID,
			run.ScenarioKey,
			run.Status,
			strconv.Itoa(run.Metrics.Turns),
			strconv.Itoa(len(run.Issues)),
			fmt.Sprintf("%.4f", run.Metrics.CostUSD),
			run.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	table.Render()
}
