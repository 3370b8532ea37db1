package assert

import (
	"fmt"
	"strings"
	"time"

	"github.com/stellarlinkco/agent-evals/internal/evalutil"
	"github.com/stellarlinkco/agent-evals/internal/state"
)

// Named scheduler invariants.
const (
	InvariantToolFlowCleared  = "tool_flow_cleared"
	InvariantGuidedFlowMode   = "guided_flow_mode"
	InvariantSessionResumable = "session_stack_resumable"
	InvariantSupervisorFresh  = "supervisor_fresh"
	InvariantQueueBounded     = "queue_bounded"
	InvariantTopicsMeaningful = "exploratory_topics_meaningful"
)

const (
	maxWorkQueue        = 6
	supervisorStaleness = time.Hour
)

// Content-free filler words that never make a valid exploratory topic label.
var fillerTopics = map[string]struct{}{
	"stuff":   {},
	"things":  {},
	"misc":    {},
	"other":   {},
	"general": {},
	"topic":   {},
}

// schedulerInvariants checks the enabled named invariants against the
// state-machine snapshot. Each failed invariant produces exactly one issue
// named after the invariant.
func schedulerInvariants(enabled []string, snap *state.Snapshot, transcript []state.Turn) []Issue {
	if len(enabled) == 0 {
		return nil
	}

	sched := snap.Scheduler
	if sched == nil {
		sched = &state.SchedulerState{}
	}

	var issues []Issue
	for _, name := range enabled {
		switch strings.TrimSpace(name) {
		case InvariantToolFlowCleared:
			if sched.ToolFlowActive && evalutil.ContainsStopPhrase(state.UserText(transcript)) {
				issues = append(issues, invariantIssue(InvariantToolFlowCleared,
					"tool flow marker still set after user asked to stop"))
			}
		case InvariantGuidedFlowMode:
			if sched.ActiveFlow != "" && sched.SafetyOverrideMode == "" && sched.Mode != sched.ActiveFlow {
				issues = append(issues, invariantIssue(InvariantGuidedFlowMode,
					fmt.Sprintf("flow %q active but mode is %q", sched.ActiveFlow, sched.Mode)))
			}
		case InvariantSessionResumable:
			for i, entry := range sched.SessionStack {
				if strings.TrimSpace(entry.ResumableSummary) == "" || entry.LastActiveAt.IsZero() {
					issues = append(issues, invariantIssue(InvariantSessionResumable,
						fmt.Sprintf("session_stack[%d] (%s) missing resumable summary or last-active timestamp", i, entry.Topic)))
					break
				}
			}
		case InvariantSupervisorFresh:
			if sched.SupervisorUpdatedAt.IsZero() || time.Since(sched.SupervisorUpdatedAt) > supervisorStaleness {
				issues = append(issues, invariantIssue(InvariantSupervisorFresh,
					fmt.Sprintf("supervisor timestamp %v older than %v", sched.SupervisorUpdatedAt, supervisorStaleness)))
			}
		case InvariantQueueBounded:
			if len(sched.WorkQueue) > maxWorkQueue {
				issues = append(issues, invariantIssue(InvariantQueueBounded,
					fmt.Sprintf("work queue has %d entries, max %d", len(sched.WorkQueue), maxWorkQueue)))
			}
		case InvariantTopicsMeaningful:
			for _, topic := range sched.ExploratoryTopics {
				if _, filler := fillerTopics[strings.ToLower(strings.TrimSpace(topic))]; filler {
					issues = append(issues, invariantIssue(InvariantTopicsMeaningful,
						fmt.Sprintf("exploratory topic %q is a filler label", topic)))
					break
				}
			}
		default:
			issues = append(issues, Issue{
				Severity: SeverityLow,
				Kind:     KindInvalidPattern,
				Message:  fmt.Sprintf("unknown scheduler invariant %q", name),
			})
		}
	}
	return issues
}

func invariantIssue(name, detail string) Issue {
	return Issue{
		Severity: SeverityHigh,
		Kind:     KindInvariantViolated,
		Message:  fmt.Sprintf("%s: %s", name, detail),
	}
}
