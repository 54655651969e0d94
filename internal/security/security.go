// Package security is the gate every agent-initiated operation passes
// before execution.
//
// A single Manager instance is shared by all agents. ValidateOperation runs
// a fixed sequence of checks (IP, rate limit, transaction rules, time of
// day, risk scoring, policy enforcement) and folds them into one
// approve/reject result. The engine never performs network or chain I/O;
// its only side effects are in-memory bookkeeping and audit writes. It
// fails closed: an internal error produces a rejecting result, never an
// error to the caller.
package security

import (
	"fmt"
	"strings"
)

// Level is the engine's operating strictness. It selects the risk-score
// threshold above which otherwise-clean operations are rejected.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Threshold returns the risk score at or above which operations are
// rejected for this level. Unknown levels use the medium threshold.
func (l Level) Threshold() float64 {
	switch l {
	case LevelLow:
		return 90
	case LevelMedium:
		return 70
	case LevelHigh:
		return 50
	case LevelCritical:
		return 30
	default:
		return 70
	}
}

// ParseLevel converts a configuration string to a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(s)) {
	case LevelLow:
		return LevelLow, nil
	case LevelMedium, "":
		return LevelMedium, nil
	case LevelHigh:
		return LevelHigh, nil
	case LevelCritical:
		return LevelCritical, nil
	default:
		return "", fmt.Errorf("security: unknown level %q", s)
	}
}

// Context identifies the caller of an operation. SourceIP and Country are
// optional; checks that need them are skipped when absent.
type Context struct {
	AgentID  string `json:"agent_id"`
	UserID   string `json:"user_id,omitempty"`
	SourceIP string `json:"source_ip,omitempty"`
	Country  string `json:"country,omitempty"`
}

// Result is the engine's verdict on one operation.
//
// Invariants: Approved is true only when Violations is empty and RiskScore
// is strictly below the level threshold; every enabled policy appears
// exactly once in PoliciesChecked regardless of outcome.
type Result struct {
	Approved        bool                   `json:"approved"`
	RiskScore       float64                `json:"risk_score"`
	PoliciesChecked []string               `json:"policies_checked"`
	Violations      []string               `json:"violations"`
	Recommendations []string               `json:"recommendations"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Operation categories that receive transaction-specific validation.
func isTransactional(operationType string) bool {
	switch operationType {
	case "trade", "transfer", "swap":
		return true
	default:
		return false
	}
}
