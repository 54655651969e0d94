// Package risk scores operations before they execute.
//
// The score is additive over four independent signals: what the operation
// is, how much money it moves, when it happens, and how busy the agent has
// been. Scoring is deterministic given its inputs and touches no shared
// state, so it can run on every validation with no locking.
package risk

// Level is the ordinal risk classification of an assessment.
type Level string

const (
	LevelVeryLow  Level = "very_low"
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelVeryHigh Level = "very_high"
	LevelCritical Level = "critical"
)

// Assessment is the result of scoring a single operation.
//
// Score is nominally 0-100 but is not clamped: the additive factors can
// push it past 100 for an unknown high-amount off-hours operation from a
// busy agent. Every decision threshold sits below 100, so callers comparing
// against thresholds are unaffected.
type Assessment struct {
	Level           Level    `json:"level"`
	Score           float64  `json:"score"`
	Factors         []string `json:"factors"`
	Recommendations []string `json:"recommendations"`
}
