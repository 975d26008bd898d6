// Package model contains domain types passed between layers.
package model

// Level positions a content item or metric in the content hierarchy,
// ordered component < lesson < namespace < program.
type Level int

// Hierarchy levels, lowest first.
const (
	LevelComponent Level = iota
	LevelLesson
	LevelNamespace
	LevelProgram
)

// levelNames maps levels to their wire names.
var levelNames = map[Level]string{
	LevelComponent: "component",
	LevelLesson:    "lesson",
	LevelNamespace: "namespace",
	LevelProgram:   "program",
}

// String returns the wire name of the level.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// Known reports whether the level is one of the four hierarchy levels.
func (l Level) Known() bool {
	_, ok := levelNames[l]
	return ok
}

// Below reports whether l is strictly below other in the hierarchy.
func (l Level) Below(other Level) bool {
	return l < other
}

// ParseLevel resolves a wire name to a Level.
func ParseLevel(s string) (Level, bool) {
	for l, name := range levelNames {
		if name == s {
			return l, true
		}
	}
	return 0, false
}

// CoverageKind discriminates the coverage variants.
type CoverageKind int

// Coverage variants.
const (
	CoverAll CoverageKind = iota
	CoverInclude
	CoverExclude
)

// Coverage selects which content items at a metric's level participate
// in its aggregation. IDs is meaningful for the include and exclude
// variants only.
type Coverage struct {
	Kind CoverageKind
	IDs  []string
}

// All covers every item at the metric's level.
func All() Coverage { return Coverage{Kind: CoverAll} }

// Include covers exactly the given item ids.
func Include(ids ...string) Coverage { return Coverage{Kind: CoverInclude, IDs: ids} }

// Exclude covers every item at the level except the given ids.
func Exclude(ids ...string) Coverage { return Coverage{Kind: CoverExclude, IDs: ids} }

// Multiples is the policy for collapsing a learner's repeated
// submissions on one item into one effective value.
type Multiples int

// Multiples policies.
const (
	MultiplesLast Multiples = iota
	MultiplesFirst
	MultiplesMax
	MultiplesPassThrough
)

// multiplesNames maps policies to their wire names.
var multiplesNames = map[Multiples]string{
	MultiplesLast:        "last",
	MultiplesFirst:       "first",
	MultiplesMax:         "max",
	MultiplesPassThrough: "pass-through",
}

// String returns the wire name of the policy.
func (m Multiples) String() string {
	if name, ok := multiplesNames[m]; ok {
		return name
	}
	return "unknown"
}

// Known reports whether the policy is one of the defined policies.
func (m Multiples) Known() bool {
	_, ok := multiplesNames[m]
	return ok
}

// Rule names a scoring rule together with its ordered parameters.
// Parameter meaning is rule-specific.
type Rule struct {
	Name   string
	Params []float64
}

// TimeWindow bounds eligible submissions to the closed interval
// [Start, End], in epoch milliseconds.
type TimeWindow struct {
	Start int64
	End   int64
}

// Contains reports whether ts falls inside the window, boundaries
// included.
func (w TimeWindow) Contains(ts int64) bool {
	return ts >= w.Start && ts <= w.End
}

// MetricDefinition is the configuration of one metric. The engine only
// reads it; administrators create and edit definitions externally.
type MetricDefinition struct {
	ID               string
	Name             string
	Level            Level
	Coverage         Coverage
	Rule             Rule
	Submetric        string // id of a lower-level definition, empty if unset
	TagWeights       map[string]float64
	TimeFilter       TimeWindow
	Multiples        Multiples
	AutoCompute      bool
	VisibleToStudent bool
	LastUpdated      int64 // epoch ms of the last successful aggregation
}

// Submission is one raw recorded performance event for one learner on
// one content item. The engine consumes submissions, never owns them.
type Submission struct {
	LearnerID string
	ItemID    string
	Value     float64
	Tag       string // optional category tag
	Timestamp int64  // epoch ms
}

// Score is one computed value owned by the engine. ItemID is empty for
// a metric's aggregate score and set for the per-item scores that feed
// higher-level metrics.
type Score struct {
	MetricID   string
	LearnerID  string
	ItemID     string
	Value      Value
	Tag        string
	ComputedAt int64 // epoch ms
}

// EventKind discriminates trigger events.
type EventKind int

// Trigger event kinds.
const (
	EventSubmission EventKind = iota
	EventScoreUpdated
)

// TriggerEvent notifies the scheduler that new data may affect one or
// more metrics: a new raw submission, or a refreshed submetric score.
type TriggerEvent struct {
	Kind      EventKind
	LearnerID string
	ItemID    string // set for submission events
	MetricID  string // set for score-updated events
	Timestamp int64  // epoch ms
}
