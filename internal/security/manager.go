package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ParalexLabs/hyvbase/internal/activity"
	"github.com/ParalexLabs/hyvbase/internal/audit"
	"github.com/ParalexLabs/hyvbase/internal/metrics"
	"github.com/ParalexLabs/hyvbase/internal/policy"
	"github.com/ParalexLabs/hyvbase/internal/ratelimit"
	"github.com/ParalexLabs/hyvbase/internal/risk"
	"github.com/ParalexLabs/hyvbase/internal/traces"
)

// Check names reported in Result.PoliciesChecked for the manager's
// built-in checks, alongside the names of enabled policies.
const (
	checkIPRestrictions  = "ip_restrictions"
	checkRateLimits      = "rate_limits"
	checkTransaction     = "transaction_validation"
	checkTimeRestriction = "time_restrictions"
)

// rateLimitWindow is the window over which per-agent operation rate
// limits are counted.
const rateLimitWindow = time.Minute

// Config carries the tunable parts of the engine. Zero-value maps fall
// back to the defaults below. When Policies is nil the store is seeded
// with policy.Defaults(); a non-nil slice replaces the defaults entirely.
type Config struct {
	Level                Level
	AllowedIPs           []string
	BlockedIPs           []string
	MaxTransactionValues map[string]float64
	RateLimits           map[string]int
	Policies             []*policy.Policy
}

// DefaultMaxTransactionValues is the per-token transaction ceiling used
// when no override is configured.
func DefaultMaxTransactionValues() map[string]float64 {
	return map[string]float64{
		"ETH":   10,
		"USDC":  10000,
		"USDT":  10000,
		"STARK": 1000,
	}
}

// DefaultRateLimits is the per-category operations-per-minute ceiling used
// when no override is configured.
func DefaultRateLimits() map[string]int {
	return map[string]int{
		"crypto":  30,
		"social":  60,
		"general": 100,
	}
}

// Manager validates operations against the configured security level,
// rate limits, transaction rules, and stored policies. It is safe for
// concurrent use.
type Manager struct {
	level    Level
	limiter  *ratelimit.Limiter
	history  *activity.History
	policies policy.Store
	engine   *policy.Engine
	auditLog *audit.Logger
	logger   *slog.Logger

	allowedIPs map[string]struct{}
	blockedIPs map[string]struct{}
	maxTxValue map[string]float64
	rateLimits map[string]int

	now func() time.Time // swappable for tests
}

// New builds a Manager and seeds the policy store with the default
// policies. Policies already present (matching id) are left untouched.
func New(cfg Config, store policy.Store, auditLog *audit.Logger, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		store = policy.NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}

	maxTx := cfg.MaxTransactionValues
	if len(maxTx) == 0 {
		maxTx = DefaultMaxTransactionValues()
	}
	limits := cfg.RateLimits
	if len(limits) == 0 {
		limits = DefaultRateLimits()
	}
	level := cfg.Level
	if level == "" {
		level = LevelMedium
	}

	history := activity.NewHistory()
	m := &Manager{
		level:      level,
		limiter:    ratelimit.New(),
		history:    history,
		policies:   store,
		engine:     policy.NewEngine(history, logger),
		auditLog:   auditLog,
		logger:     logger,
		allowedIPs: toSet(cfg.AllowedIPs),
		blockedIPs: toSet(cfg.BlockedIPs),
		maxTxValue: maxTx,
		rateLimits: limits,
		now:        time.Now,
	}

	seed := cfg.Policies
	if seed == nil {
		seed = policy.Defaults()
	}
	for _, p := range seed {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("security: seed policy %s: %w", p.ID, err)
		}
		if err := store.Add(context.Background(), p); err != nil {
			if errors.Is(err, policy.ErrDuplicateID) {
				continue
			}
			return nil, fmt.Errorf("security: seed policy %s: %w", p.ID, err)
		}
	}

	m.logger.Info("security manager initialized",
		"level", level,
		"allowed_ips", len(m.allowedIPs),
		"blocked_ips", len(m.blockedIPs))
	return m, nil
}

// Level returns the configured security level.
func (m *Manager) Level() Level { return m.level }

// ValidateOperation runs the full check sequence for one operation and
// returns the verdict. It never returns an error: internal failures
// produce a rejecting result with RiskScore 100.
func (m *Manager) ValidateOperation(ctx context.Context, operationType string, payload map[string]interface{}, secCtx *Context) (result *Result) {
	start := m.now()
	if secCtx == nil {
		secCtx = &Context{}
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	ctx, span := traces.StartSpan(ctx, "security.validate_operation",
		traces.OperationType(operationType),
		traces.AgentID(secCtx.AgentID),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("validation panicked",
				"operation_type", operationType,
				"agent_id", secCtx.AgentID,
				"panic", r)
			m.auditEvent("operation_validation_error", audit.SeverityError,
				fmt.Sprintf("Validation error: %v", r), secCtx, map[string]interface{}{
					"operation_type": operationType,
				})
			metrics.ValidationsTotal.WithLabelValues(operationType, "error").Inc()
			result = &Result{
				Approved:        false,
				RiskScore:       100,
				Violations:      []string{fmt.Sprintf("Validation error: %v", r)},
				Recommendations: []string{"Review security configuration"},
			}
		}
		if result != nil {
			span.SetAttributes(traces.Approved(result.Approved), traces.RiskScore(result.RiskScore))
		}
	}()

	m.auditEvent("operation_validation", audit.SeverityInfo,
		fmt.Sprintf("Validating %s operation", operationType), secCtx, map[string]interface{}{
			"operation_type": operationType,
		})

	res := &Result{
		PoliciesChecked: []string{},
		Violations:      []string{},
		Recommendations: []string{},
	}

	m.checkIP(res, secCtx)
	m.checkRateLimit(res, operationType, secCtx)
	if isTransactional(operationType) {
		m.checkTransaction(res, operationType, payload)
	}
	m.checkTimeRestrictions(ctx, res)

	assessment := risk.Assess(risk.Input{
		OperationType:  operationType,
		Payload:        payload,
		RecentActivity: m.history.CountRecent(secCtx.AgentID),
		Now:            m.now(),
	})
	res.RiskScore = assessment.Score
	res.Recommendations = append(res.Recommendations, assessment.Recommendations...)
	metrics.RiskScores.Observe(assessment.Score)

	m.enforcePolicies(ctx, res, operationType, payload, secCtx)

	res.Approved = len(res.Violations) == 0 && res.RiskScore < m.level.Threshold()

	elapsed := m.now().Sub(start)
	res.Metadata = map[string]interface{}{
		"security_level": string(m.level),
		"risk_level":     string(assessment.Level),
		"risk_factors":   assessment.Factors,
		"execution_time": elapsed.Seconds(),
	}

	outcome := "approved"
	severity := audit.SeverityInfo
	if !res.Approved {
		outcome = "rejected"
		severity = audit.SeverityWarning
	}
	metrics.ValidationsTotal.WithLabelValues(operationType, outcome).Inc()
	metrics.ValidationDuration.Observe(elapsed.Seconds())

	m.auditEvent("operation_validation_complete", severity,
		fmt.Sprintf("Operation %s %s", operationType, outcome), secCtx, map[string]interface{}{
			"operation_type": operationType,
			"approved":       res.Approved,
			"risk_score":     res.RiskScore,
			"violations":     res.Violations,
			"execution_time": elapsed.Seconds(),
		})

	m.logger.Info("operation validated",
		"operation_type", operationType,
		"agent_id", secCtx.AgentID,
		"approved", res.Approved,
		"risk_score", res.RiskScore,
		"violations", len(res.Violations),
		"duration", elapsed)

	return res
}

func (m *Manager) checkIP(res *Result, secCtx *Context) {
	ip := secCtx.SourceIP
	if ip == "" {
		return
	}
	res.PoliciesChecked = append(res.PoliciesChecked, checkIPRestrictions)
	if _, blocked := m.blockedIPs[ip]; blocked {
		m.addViolation(res, checkIPRestrictions, fmt.Sprintf("IP address %s is blocked", ip))
		return
	}
	if len(m.allowedIPs) > 0 {
		if _, ok := m.allowedIPs[ip]; !ok {
			m.addViolation(res, checkIPRestrictions, fmt.Sprintf("IP address %s not in allowed list", ip))
		}
	}
}

func (m *Manager) checkRateLimit(res *Result, operationType string, secCtx *Context) {
	res.PoliciesChecked = append(res.PoliciesChecked, checkRateLimits)

	limit := m.rateLimits[rateCategory(operationType)]
	if limit <= 0 {
		return
	}
	key := secCtx.AgentID + ":" + operationType
	if m.limiter.Allow(key, limit, rateLimitWindow) {
		return
	}
	cooldown := m.limiter.RemainingCooldown(key, limit, rateLimitWindow)
	m.addViolation(res, checkRateLimits,
		fmt.Sprintf("Rate limit exceeded for %s. Try again in %.1f seconds", operationType, cooldown.Seconds()))
	metrics.RateLimitedTotal.WithLabelValues(operationType).Inc()
}

func (m *Manager) checkTransaction(res *Result, operationType string, payload map[string]interface{}) {
	res.PoliciesChecked = append(res.PoliciesChecked, checkTransaction)

	amount := floatValue(payload["amount"])
	token := strings.ToUpper(stringValue(payload["token"]))
	if token != "" {
		if max, ok := m.maxTxValue[token]; ok && amount > max {
			m.addViolation(res, checkTransaction,
				fmt.Sprintf("Transaction amount %.2f exceeds maximum %.2f for %s", amount, max, token))
		}
	}

	// Whole multiples of 10 are a weak bot signal, worth flagging but
	// not rejecting.
	if amount > 0 && amount == math.Trunc(amount) && math.Mod(amount, 10) == 0 {
		res.Recommendations = append(res.Recommendations,
			"Round number amount detected - possible automated activity")
	}

	from := strings.ToUpper(stringValue(payload["token_from"]))
	to := strings.ToUpper(stringValue(payload["token_to"]))
	if from != "" && from == to {
		m.addViolation(res, checkTransaction, "Cannot swap token to itself")
	}

	if operationType == "transfer" {
		if recipient := stringValue(payload["recipient"]); recipient != "" {
			if !common.IsHexAddress(recipient) {
				m.addViolation(res, checkTransaction,
					fmt.Sprintf("Invalid recipient address: %s", recipient))
			}
		}
	}
}

func (m *Manager) checkTimeRestrictions(ctx context.Context, res *Result) {
	res.PoliciesChecked = append(res.PoliciesChecked, checkTimeRestriction)

	policies, err := m.policies.List(ctx)
	if err != nil {
		m.logger.Error("policy store list failed", "error", err)
		m.addViolation(res, checkTimeRestriction, "Policy enforcement error: time_restrictions")
		return
	}
	for _, p := range policies {
		if !p.Enabled || p.Kind != policy.KindTimeRestriction {
			continue
		}
		for _, v := range policy.TimeViolations(p, m.now()) {
			m.addViolation(res, checkTimeRestriction, v)
		}
		return
	}
}

func (m *Manager) enforcePolicies(ctx context.Context, res *Result, operationType string, payload map[string]interface{}, secCtx *Context) {
	policies, err := m.policies.List(ctx)
	if err != nil {
		m.logger.Error("policy store list failed", "error", err)
		m.addViolation(res, "policy_enforcement", "Policy enforcement error: store unavailable")
		return
	}
	checked, violations := m.engine.EnforceAll(policies, &policy.Request{
		OperationType: operationType,
		Payload:       payload,
		AgentID:       secCtx.AgentID,
		SourceIP:      secCtx.SourceIP,
		Country:       secCtx.Country,
	})
	res.PoliciesChecked = append(res.PoliciesChecked, checked...)
	for _, v := range violations {
		m.addViolation(res, "policy_enforcement", v)
	}
}

// AddPolicy validates and stores a policy.
func (m *Manager) AddPolicy(ctx context.Context, p *policy.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := m.policies.Add(ctx, p); err != nil {
		return err
	}
	m.auditEvent("policy_added", audit.SeverityInfo,
		fmt.Sprintf("Policy added: %s", p.Name), nil, map[string]interface{}{
			"policy_id": p.ID, "kind": string(p.Kind),
		})
	return nil
}

// RemovePolicy deletes a policy by id.
func (m *Manager) RemovePolicy(ctx context.Context, id string) error {
	if err := m.policies.Remove(ctx, id); err != nil {
		return err
	}
	m.auditEvent("policy_removed", audit.SeverityInfo,
		fmt.Sprintf("Policy removed: %s", id), nil, map[string]interface{}{"policy_id": id})
	return nil
}

// EnablePolicy marks a policy enabled.
func (m *Manager) EnablePolicy(ctx context.Context, id string) error {
	return m.setPolicyEnabled(ctx, id, true)
}

// DisablePolicy marks a policy disabled. Disabled policies are skipped
// entirely and do not appear in PoliciesChecked.
func (m *Manager) DisablePolicy(ctx context.Context, id string) error {
	return m.setPolicyEnabled(ctx, id, false)
}

func (m *Manager) setPolicyEnabled(ctx context.Context, id string, enabled bool) error {
	if err := m.policies.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	m.auditEvent("policy_"+state, audit.SeverityInfo,
		fmt.Sprintf("Policy %s: %s", state, id), nil, map[string]interface{}{"policy_id": id})
	return nil
}

// Policies returns all stored policies.
func (m *Manager) Policies(ctx context.Context) ([]*policy.Policy, error) {
	return m.policies.List(ctx)
}

// Report summarizes the engine's current posture for operators.
type Report struct {
	SecurityLevel   Level          `json:"security_level"`
	PolicyCount     int            `json:"policy_count"`
	EnabledPolicies int            `json:"enabled_policies"`
	ActiveAgents    int            `json:"active_agents"`
	RecentEvents    map[string]int `json:"recent_events_by_severity"`
	AuditDropped    int64          `json:"audit_dropped_writes"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// GenerateReport builds a point-in-time security report.
func (m *Manager) GenerateReport(ctx context.Context) (*Report, error) {
	policies, err := m.policies.List(ctx)
	if err != nil {
		return nil, err
	}
	enabled := 0
	for _, p := range policies {
		if p.Enabled {
			enabled++
		}
	}
	bySeverity := map[string]int{}
	var dropped int64
	if m.auditLog != nil {
		for _, e := range m.auditLog.Recent(audit.DefaultMemoryEvents) {
			bySeverity[string(e.Severity)]++
		}
		dropped = m.auditLog.Dropped()
	}
	return &Report{
		SecurityLevel:   m.level,
		PolicyCount:     len(policies),
		EnabledPolicies: enabled,
		ActiveAgents:    m.history.Agents(),
		RecentEvents:    bySeverity,
		AuditDropped:    dropped,
		GeneratedAt:     m.now(),
	}, nil
}

func (m *Manager) addViolation(res *Result, check, message string) {
	res.Violations = append(res.Violations, message)
	metrics.ViolationsTotal.WithLabelValues(check).Inc()
}

func (m *Manager) auditEvent(eventType string, severity audit.Severity, message string, secCtx *Context, metadata map[string]interface{}) {
	if m.auditLog == nil {
		return
	}
	e := audit.NewEvent(eventType, severity, message)
	if secCtx != nil {
		e.AgentID = secCtx.AgentID
		e.UserID = secCtx.UserID
		e.SourceIP = secCtx.SourceIP
	}
	e.Metadata = metadata
	m.auditLog.Log(e)
}

// rateCategory maps an operation type to its rate-limit bucket.
func rateCategory(operationType string) string {
	switch operationType {
	case "trade", "transfer", "swap":
		return "crypto"
	case "post", "read":
		return "social"
	default:
		return "general"
	}
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		set[s] = struct{}{}
	}
	return set
}

func floatValue(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
