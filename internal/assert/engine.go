package assert

import (
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/stellarlinkco/agent-evals/internal/state"
)

// Evaluate checks a scenario's mechanical assertions against the final-state
// snapshot and transcript. It is a pure function: no network, no store
// access, and it never panics on malformed input. A bad regex in scenario
// authoring degrades to a visible issue instead of aborting the batch.
func Evaluate(set *Set, snap *state.Snapshot, transcript []state.Turn) []Issue {
	if set == nil {
		return nil
	}
	if snap == nil {
		snap = &state.Snapshot{}
	}

	var issues []Issue
	issues = append(issues, fieldEquality("profile", snap.Profile, set.ProfileEquals)...)
	issues = append(issues, fieldEquality("chat_state", snap.ChatState, set.ChatStateEquals)...)
	issues = append(issues, memoryAssertions(set, snap.WorkingMemory)...)
	issues = append(issues, planAssertions("plan", snap.PlanItems, set.PlanMinCount, set.PlanMustInclude, set.PlanMustNotInclude)...)
	issues = append(issues, planAssertions("framework", snap.FrameworkItems, set.FrameworkMinCount, set.FrameworkMustInclude, set.FrameworkMustNotInclude)...)
	issues = append(issues, transcriptAssertions(set, state.AgentText(transcript))...)
	issues = append(issues, loggedIssueAssertions(set, snap.LoggedIssues)...)
	issues = append(issues, schedulerInvariants(set.SchedulerInvariants, snap, transcript)...)
	return issues
}

// fieldEquality compares direct (dot-free) keys against a snapshot object
// with type-sensitive equality.
func fieldEquality(scope string, actual map[string]any, expected map[string]any) []Issue {
	var issues []Issue
	for key, want := range expected {
		got, ok := actual[key]
		if !ok {
			issues = append(issues, Issue{
				Severity: SeverityHigh,
				Kind:     KindAssertionFailed,
				Message:  fmt.Sprintf("%s.%s: missing (expected %v)", scope, key, want),
			})
			continue
		}
		if !equalValue(got, want) {
			issues = append(issues, Issue{
				Severity: SeverityHigh,
				Kind:     KindAssertionFailed,
				Message:  fmt.Sprintf("%s.%s: got %v, expected %v", scope, key, got, want),
			})
		}
	}
	return issues
}

func memoryAssertions(set *Set, memory []byte) []Issue {
	var issues []Issue

	for path, want := range set.MemoryEquals {
		res := gjson.GetBytes(memory, path)
		if !res.Exists() {
			issues = append(issues, Issue{
				Severity: SeverityHigh,
				Kind:     KindAssertionFailed,
				Message:  fmt.Sprintf("memory %s: missing (expected %v)", path, want),
			})
			continue
		}
		if !equalValue(res.Value(), want) {
			issues = append(issues, Issue{
				Severity: SeverityHigh,
				Kind:     KindAssertionFailed,
				Message:  fmt.Sprintf("memory %s: got %v, expected %v", path, res.Value(), want),
			})
		}
	}

	for _, path := range set.MemoryPathsExist {
		if !gjson.GetBytes(memory, path).Exists() {
			issues = append(issues, Issue{
				Severity: SeverityHigh,
				Kind:     KindAssertionFailed,
				Message:  fmt.Sprintf("memory %s: path does not exist", path),
			})
		}
	}

	for _, am := range set.MemorySomeMatch {
		res := gjson.GetBytes(memory, am.Path)
		if !res.IsArray() {
			issues = append(issues, Issue{
				Severity: SeverityHigh,
				Kind:     KindAssertionFailed,
				Message:  fmt.Sprintf("memory %s: not an array", am.Path),
			})
			continue
		}
		matched := false
		for _, el := range res.Array() {
			obj, ok := el.Value().(map[string]any)
			if !ok {
				continue
			}
			if shallowMatch(obj, am.Match) {
				matched = true
				break
			}
		}
		if !matched {
			issues = append(issues, Issue{
				Severity: SeverityHigh,
				Kind:     KindAssertionFailed,
				Message:  fmt.Sprintf("memory %s: no element matches %v", am.Path, am.Match),
			})
		}
	}

	return issues
}

func planAssertions(scope string, items []map[string]any, minCount *int, mustInclude, mustNotInclude []map[string]any) []Issue {
	var issues []Issue

	if minCount != nil && len(items) < *minCount {
		issues = append(issues, Issue{
			Severity: SeverityHigh,
			Kind:     KindAssertionFailed,
			Message:  fmt.Sprintf("%s: %d items, expected at least %d", scope, len(items), *minCount),
		})
	}

	for _, pattern := range mustInclude {
		found := false
		for _, item := range items {
			if shallowMatch(item, pattern) {
				found = true
				break
			}
		}
		if !found {
			issues = append(issues, Issue{
				Severity: SeverityHigh,
				Kind:     KindAssertionFailed,
				Message:  fmt.Sprintf("%s: no item matches %v", scope, pattern),
			})
		}
	}

	for _, pattern := range mustNotInclude {
		for _, item := range items {
			if shallowMatch(item, pattern) {
				issues = append(issues, Issue{
					Severity: SeverityHigh,
					Kind:     KindAssertionFailed,
					Message:  fmt.Sprintf("%s: forbidden item present: %s (matched %v)", scope, identifyItem(item), pattern),
				})
				break
			}
		}
	}

	return issues
}

// identifyItem echoes an offending item's identifying fields so a failure is
// debuggable without dumping the whole object.
func identifyItem(item map[string]any) string {
	id, _ := item["id"].(string)
	title, _ := item["title"].(string)
	switch {
	case id != "" && title != "":
		return fmt.Sprintf("%q (id=%s)", title, id)
	case title != "":
		return fmt.Sprintf("%q", title)
	case id != "":
		return fmt.Sprintf("id=%s", id)
	default:
		return fmt.Sprintf("%v", item)
	}
}

func transcriptAssertions(set *Set, agentText string) []Issue {
	var issues []Issue

	for _, pattern := range set.TranscriptMustMatch {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			issues = append(issues, invalidPattern(pattern, err))
			continue
		}
		if !re.MatchString(agentText) {
			issues = append(issues, Issue{
				Severity: SeverityHigh,
				Kind:     KindAssertionFailed,
				Message:  fmt.Sprintf("transcript: expected match for /%s/", pattern),
			})
		}
	}

	for _, pattern := range set.TranscriptMustNotMatch {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			issues = append(issues, invalidPattern(pattern, err))
			continue
		}
		if re.MatchString(agentText) {
			issues = append(issues, Issue{
				Severity: SeverityHigh,
				Kind:     KindAssertionFailed,
				Message:  fmt.Sprintf("transcript: forbidden match for /%s/", pattern),
			})
		}
	}

	for _, oc := range set.MaxOccurrences {
		re, err := regexp.Compile("(?i)" + oc.Pattern)
		if err != nil {
			issues = append(issues, invalidPattern(oc.Pattern, err))
			continue
		}
		count := len(re.FindAllStringIndex(agentText, -1))
		if count > oc.Max {
			issues = append(issues, Issue{
				Severity: SeverityMedium,
				Kind:     KindAssertionFailed,
				Message:  fmt.Sprintf("transcript: /%s/ occurred %d times, max %d", oc.Pattern, count, oc.Max),
			})
		}
	}

	return issues
}

func invalidPattern(pattern string, err error) Issue {
	return Issue{
		Severity: SeverityLow,
		Kind:     KindInvalidPattern,
		Message:  fmt.Sprintf("invalid pattern /%s/: %v", pattern, err),
	}
}

// loggedIssueAssertions bridges mechanical checks with events the agent's own
// runtime verifier logged during the run.
func loggedIssueAssertions(set *Set, logged []string) []Issue {
	var issues []Issue

	if want := set.LoggedIssueEquals; want != "" {
		found := false
		for _, ev := range logged {
			if ev == want {
				found = true
				break
			}
		}
		if !found {
			issues = append(issues, Issue{
				Severity: SeverityHigh,
				Kind:     KindAssertionFailed,
				Message:  fmt.Sprintf("logged issues: expected %q, got %v", want, logged),
			})
		}
	}

	if len(set.LoggedIssueOneOf) > 0 {
		found := false
	outer:
		for _, ev := range logged {
			for _, want := range set.LoggedIssueOneOf {
				if ev == want {
					found = true
					break outer
				}
			}
		}
		if !found {
			issues = append(issues, Issue{
				Severity: SeverityHigh,
				Kind:     KindAssertionFailed,
				Message:  fmt.Sprintf("logged issues: expected one of %v, got %v", set.LoggedIssueOneOf, logged),
			})
		}
	}

	return issues
}
