package assert

// Issue severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Issue kinds produced by the mechanical engine.
const (
	KindAssertionFailed   = "mechanical_assertion_failed"
	KindInvalidPattern    = "invalid_assertion_pattern"
	KindInvariantViolated = "scheduler_invariant_violated"
)

// Issue is a single finding against a run. Issues are append-only values:
// once created they are never mutated or replaced.
type Issue struct {
	Severity string `json:"severity" yaml:"severity"`
	Kind     string `json:"kind" yaml:"kind"`
	Message  string `json:"message" yaml:"message"`
}

// ArrayMatch requires at least one element of the array at Path to
// shallow-match the partial pattern.
type ArrayMatch struct {
	Path  string         `json:"path" yaml:"path"`
	Match map[string]any `json:"match" yaml:"match"`
}

// OccurrenceCap fails when a pattern matches agent-authored text more than
// Max times. Used to catch repetition and looping defects.
type OccurrenceCap struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Max     int    `json:"max" yaml:"max"`
}

// Set is a declarative bag of mechanical assertion kinds attached to a
// scenario. Each kind is independently optional and independently evaluated;
// an absent kind means "not checked", never "checked and passed".
type Set struct {
	ProfileEquals   map[string]any `json:"profile_equals,omitempty" yaml:"profile_equals,omitempty"`
	ChatStateEquals map[string]any `json:"chat_state_equals,omitempty" yaml:"chat_state_equals,omitempty"`

	MemoryEquals     map[string]any `json:"memory_equals,omitempty" yaml:"memory_equals,omitempty"`
	MemoryPathsExist []string       `json:"memory_paths_exist,omitempty" yaml:"memory_paths_exist,omitempty"`
	MemorySomeMatch  []ArrayMatch   `json:"memory_some_match,omitempty" yaml:"memory_some_match,omitempty"`

	PlanMinCount       *int             `json:"plan_min_count,omitempty" yaml:"plan_min_count,omitempty"`
	PlanMustInclude    []map[string]any `json:"plan_must_include,omitempty" yaml:"plan_must_include,omitempty"`
	PlanMustNotInclude []map[string]any `json:"plan_must_not_include,omitempty" yaml:"plan_must_not_include,omitempty"`

	FrameworkMinCount       *int             `json:"framework_min_count,omitempty" yaml:"framework_min_count,omitempty"`
	FrameworkMustInclude    []map[string]any `json:"framework_must_include,omitempty" yaml:"framework_must_include,omitempty"`
	FrameworkMustNotInclude []map[string]any `json:"framework_must_not_include,omitempty" yaml:"framework_must_not_include,omitempty"`

	TranscriptMustMatch    []string        `json:"transcript_must_match,omitempty" yaml:"transcript_must_match,omitempty"`
	TranscriptMustNotMatch []string        `json:"transcript_must_not_match,omitempty" yaml:"transcript_must_not_match,omitempty"`
	MaxOccurrences         []OccurrenceCap `json:"max_occurrences,omitempty" yaml:"max_occurrences,omitempty"`

	LoggedIssueEquals string   `json:"logged_issue_equals,omitempty" yaml:"logged_issue_equals,omitempty"`
	LoggedIssueOneOf  []string `json:"logged_issue_one_of,omitempty" yaml:"logged_issue_one_of,omitempty"`

	SchedulerInvariants []string `json:"scheduler_invariants,omitempty" yaml:"scheduler_invariants,omitempty"`
}
