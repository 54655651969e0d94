package policy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ParalexLabs/hyvbase/internal/activity"
)

// Request carries the operation under validation into policy enforcement.
type Request struct {
	OperationType string
	Payload       map[string]interface{}
	AgentID       string
	SourceIP      string
	Country       string
}

// Engine evaluates enabled policies against a request.
type Engine struct {
	history *activity.History
	logger  *slog.Logger
	now     func() time.Time // swappable for tests
}

// NewEngine creates a policy enforcement engine backed by the shared
// per-agent activity history.
func NewEngine(history *activity.History, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		history: history,
		logger:  logger,
		now:     time.Now,
	}
}

// EnforceAll evaluates every enabled policy. It returns the names of the
// policies checked (each enabled policy exactly once, in order) and any
// violations. A failure inside one policy becomes a violation naming that
// policy; the remaining policies still run.
func (e *Engine) EnforceAll(policies []*Policy, req *Request) (checked []string, violations []string) {
	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		checked = append(checked, p.Name)

		v, err := e.enforceOne(p, req)
		if err != nil {
			e.logger.Error("policy enforcement failed", "policy", p.Name, "error", err)
			violations = append(violations, fmt.Sprintf("Policy enforcement error: %s", p.Name))
			continue
		}
		violations = append(violations, v...)
	}
	return checked, violations
}

// enforceOne dispatches on the policy kind. The switch is exhaustive over
// the closed Kind set; a kind with no business logic here is owned by a
// dedicated check elsewhere in the validation sequence.
func (e *Engine) enforceOne(p *Policy, req *Request) (violations []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch p.Kind {
	case KindTransactionLimit:
		return e.enforceTransactionLimit(p, req), nil
	case KindAmountRestriction:
		return e.enforceAmountRestriction(p, req), nil
	case KindFrequencyRestriction:
		return e.enforceFrequencyRestriction(p, req), nil
	case KindIPRestriction:
		return e.enforceIPRestriction(p, req), nil
	case KindGeographicRestriction:
		return e.enforceGeographicRestriction(p, req), nil
	case KindTimeRestriction:
		// Owned by the validation sequence's time check (TimeViolations),
		// which runs once per call; re-checking here would double-report.
		return nil, nil
	case KindRateLimit:
		// Owned by the validation sequence's rate-limit check.
		return nil, nil
	case KindCustom:
		// No custom executor registry; recorded as checked and skipped.
		return nil, nil
	default:
		// Unknown kinds are skipped, not failed.
		return nil, nil
	}
}

func (e *Engine) enforceTransactionLimit(p *Policy, req *Request) []string {
	maxValue, ok := floatParam(p.Parameters, "max_value_usd")
	if !ok {
		return nil
	}
	// Amounts are assumed already normalized to USD by the caller.
	amount, _ := floatParam(req.Payload, "amount")
	if amount > maxValue {
		return []string{fmt.Sprintf("Transaction exceeds policy limit: %v > %v", amount, maxValue)}
	}
	return nil
}

func (e *Engine) enforceAmountRestriction(p *Policy, req *Request) []string {
	amount, _ := floatParam(req.Payload, "amount")

	var violations []string
	if min, ok := floatParam(p.Parameters, "min_amount"); ok && amount < min {
		violations = append(violations, fmt.Sprintf("Amount %v below minimum %v", amount, min))
	}
	if max, ok := floatParam(p.Parameters, "max_amount"); ok && amount > max {
		violations = append(violations, fmt.Sprintf("Amount %v exceeds maximum %v", amount, max))
	}
	return violations
}

// enforceFrequencyRestriction counts the agent's trailing-hour activity,
// then records this call. Recording happens even when the call violates the
// limit (or will be rejected by another check), so repeated abuse attempts
// keep the counter high.
func (e *Engine) enforceFrequencyRestriction(p *Policy, req *Request) []string {
	maxPerHour, ok := floatParam(p.Parameters, "max_operations_per_hour")
	if !ok {
		maxPerHour = 100
	}

	count := e.history.CountRecent(req.AgentID)
	defer e.history.Record(req.AgentID)

	if float64(count) >= maxPerHour {
		return []string{fmt.Sprintf("Frequency limit exceeded: %d operations in last hour", count)}
	}
	return nil
}

func (e *Engine) enforceIPRestriction(p *Policy, req *Request) []string {
	if req.SourceIP == "" {
		return nil
	}
	if blocked, ok := stringListParam(p.Parameters, "blocked_ips"); ok && contains(blocked, req.SourceIP) {
		return []string{fmt.Sprintf("IP %s is blocked by policy %s", req.SourceIP, p.Name)}
	}
	if allowed, ok := stringListParam(p.Parameters, "allowed_ips"); ok && len(allowed) > 0 && !contains(allowed, req.SourceIP) {
		return []string{fmt.Sprintf("IP %s is not in policy %s allow list", req.SourceIP, p.Name)}
	}
	return nil
}

func (e *Engine) enforceGeographicRestriction(p *Policy, req *Request) []string {
	if req.Country == "" {
		return nil
	}
	if blocked, ok := stringListParam(p.Parameters, "blocked_countries"); ok && contains(blocked, req.Country) {
		return []string{fmt.Sprintf("Country %s is blocked by policy %s", req.Country, p.Name)}
	}
	if allowed, ok := stringListParam(p.Parameters, "allowed_countries"); ok && len(allowed) > 0 && !contains(allowed, req.Country) {
		return []string{fmt.Sprintf("Country %s is not in policy %s allow list", req.Country, p.Name)}
	}
	return nil
}

// TimeViolations evaluates a time_restriction policy against the wall
// clock. Hours are inclusive on both ends; an unset bound defaults to the
// full day. The manager calls this once per validation.
func TimeViolations(p *Policy, now time.Time) []string {
	if p == nil || !p.Enabled || p.Kind != KindTimeRestriction {
		return nil
	}

	loc := time.UTC
	if tz, ok := p.Parameters["timezone"].(string); ok && tz != "" {
		if parsed, err := time.LoadLocation(tz); err == nil {
			loc = parsed
		}
	}

	start := 0.0
	end := 23.0
	if v, ok := floatParam(p.Parameters, "start_hour"); ok {
		start = v
	}
	if v, ok := floatParam(p.Parameters, "end_hour"); ok {
		end = v
	}

	hour := float64(now.In(loc).Hour())
	if hour < start || hour > end {
		return []string{fmt.Sprintf(
			"Operation not allowed at hour %d. Allowed hours: %d-%d",
			int(hour), int(start), int(end))}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
