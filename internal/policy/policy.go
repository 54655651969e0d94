// Package policy defines transaction security policies and their enforcement.
//
// A policy is a named, enabled/disabled constraint with kind-specific
// parameters. The kind set is closed: enforcement dispatches through one
// exhaustive switch, so adding a kind means the compiler points at every
// place that must handle it.
package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotFound    = errors.New("policy: not found")
	ErrDuplicateID = errors.New("policy: id already exists")
)

// Kind identifies what a policy constrains.
type Kind string

const (
	KindTransactionLimit      Kind = "transaction_limit"
	KindRateLimit             Kind = "rate_limit"
	KindIPRestriction         Kind = "ip_restriction"
	KindTimeRestriction       Kind = "time_restriction"
	KindAmountRestriction     Kind = "amount_restriction"
	KindFrequencyRestriction  Kind = "frequency_restriction"
	KindGeographicRestriction Kind = "geographic_restriction"
	KindCustom                Kind = "custom"
)

// Kinds lists every valid policy kind.
var Kinds = []Kind{
	KindTransactionLimit,
	KindRateLimit,
	KindIPRestriction,
	KindTimeRestriction,
	KindAmountRestriction,
	KindFrequencyRestriction,
	KindGeographicRestriction,
	KindCustom,
}

// Valid reports whether k is a known policy kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Policy is a single named security constraint. Parameters are a key/value
// mapping whose semantics depend on Kind.
type Policy struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Kind        Kind                   `json:"kind"`
	Enabled     bool                   `json:"enabled"`
	Parameters  map[string]interface{} `json:"parameters"`
	Description string                 `json:"description,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// clone returns a deep copy so stored policies cannot be mutated through
// returned pointers.
func (p *Policy) clone() *Policy {
	cp := *p
	cp.Parameters = make(map[string]interface{}, len(p.Parameters))
	for k, v := range p.Parameters {
		cp.Parameters[k] = v
	}
	return &cp
}

// Validate checks the policy shape and kind-specific parameters.
func (p *Policy) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("policy: id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("policy: name is required")
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("policy: unknown kind %q", p.Kind)
	}
	return ValidateParameters(p.Kind, p.Parameters)
}

// ValidateParameters checks kind-specific parameter shapes. Parameters not
// listed for a kind are allowed and ignored by enforcement.
func ValidateParameters(kind Kind, params map[string]interface{}) error {
	switch kind {
	case KindTransactionLimit:
		if _, ok := params["max_value_usd"]; ok {
			if _, isNum := floatParam(params, "max_value_usd"); !isNum {
				return fmt.Errorf("transaction_limit: max_value_usd must be numeric")
			}
		}
	case KindAmountRestriction:
		min, hasMin := floatParam(params, "min_amount")
		max, hasMax := floatParam(params, "max_amount")
		if hasMin && hasMax && min > max {
			return fmt.Errorf("amount_restriction: min_amount %v exceeds max_amount %v", min, max)
		}
	case KindFrequencyRestriction:
		if v, ok := floatParam(params, "max_operations_per_hour"); ok && v <= 0 {
			return fmt.Errorf("frequency_restriction: max_operations_per_hour must be positive")
		}
	case KindTimeRestriction:
		for _, key := range []string{"start_hour", "end_hour"} {
			if v, ok := floatParam(params, key); ok && (v < 0 || v > 23) {
				return fmt.Errorf("time_restriction: %s must be 0-23", key)
			}
		}
	case KindIPRestriction:
		for _, key := range []string{"allowed_ips", "blocked_ips"} {
			if _, present := params[key]; present {
				if _, ok := stringListParam(params, key); !ok {
					return fmt.Errorf("ip_restriction: %s must be a list of strings", key)
				}
			}
		}
	case KindGeographicRestriction:
		for _, key := range []string{"allowed_countries", "blocked_countries"} {
			if _, present := params[key]; present {
				if _, ok := stringListParam(params, key); !ok {
					return fmt.Errorf("geographic_restriction: %s must be a list of strings", key)
				}
			}
		}
	case KindRateLimit, KindCustom:
		// No enforced parameter shape.
	default:
		return fmt.Errorf("policy: unknown kind %q", kind)
	}
	return nil
}

// Defaults returns the policies seeded at engine construction: a
// transaction value limit, a rate limit, and a business-hours restriction.
func Defaults() []*Policy {
	now := time.Now()
	return []*Policy{
		{
			ID:      "default_transaction_limit",
			Name:    "Default Transaction Limit",
			Kind:    KindTransactionLimit,
			Enabled: true,
			Parameters: map[string]interface{}{
				"max_value_usd":    10000.0,
				"max_value_eth":    5.0,
				"max_daily_volume": 50000.0,
			},
			Description: "Default transaction value limits",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:      "default_rate_limit",
			Name:    "Default Rate Limit",
			Kind:    KindRateLimit,
			Enabled: true,
			Parameters: map[string]interface{}{
				"max_requests_per_minute":   60.0,
				"max_transactions_per_hour": 10.0,
			},
			Description: "Default rate limiting",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:      "time_restriction",
			Name:    "Time-based Restrictions",
			Kind:    KindTimeRestriction,
			Enabled: true,
			Parameters: map[string]interface{}{
				"start_hour": 6.0,
				"end_hour":   22.0,
				"timezone":   "UTC",
			},
			Description: "Restrict operations to business hours",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

// floatParam reads a numeric parameter. JSON-decoded parameters arrive as
// float64; hand-built maps may use Go integer types.
func floatParam(params map[string]interface{}, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// stringListParam reads a list-of-strings parameter, accepting both
// []string and JSON-decoded []interface{}.
func stringListParam(params map[string]interface{}, key string) ([]string, bool) {
	switch v := params[key].(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
