package security

import (
	"log/slog"
	"time"

	"github.com/ParalexLabs/hyvbase/internal/audit"
	"github.com/ParalexLabs/hyvbase/internal/policy"
)

// NewDevelopment builds a manager with the loose development preset: low
// security level and a single small transaction cap.
func NewDevelopment(store policy.Store, auditLog *audit.Logger, logger *slog.Logger) (*Manager, error) {
	now := time.Now()
	return New(Config{
		Level: LevelLow,
		Policies: []*policy.Policy{
			{
				ID:      "dev_limits",
				Name:    "Development Limits",
				Kind:    policy.KindTransactionLimit,
				Enabled: true,
				Parameters: map[string]interface{}{
					"max_value_usd": 100.0,
				},
				Description: "Low limits for development",
				CreatedAt:   now,
				UpdatedAt:   now,
			},
		},
	}, store, auditLog, logger)
}

// NewProduction builds a manager with the strict production preset: high
// security level, production transaction caps, and a per-agent frequency
// ceiling.
func NewProduction(store policy.Store, auditLog *audit.Logger, logger *slog.Logger) (*Manager, error) {
	now := time.Now()
	return New(Config{
		Level: LevelHigh,
		Policies: []*policy.Policy{
			{
				ID:      "prod_limits",
				Name:    "Production Limits",
				Kind:    policy.KindTransactionLimit,
				Enabled: true,
				Parameters: map[string]interface{}{
					"max_value_usd": 10000.0,
				},
				Description: "Production transaction limits",
				CreatedAt:   now,
				UpdatedAt:   now,
			},
			{
				ID:      "prod_frequency",
				Name:    "Production Frequency Limits",
				Kind:    policy.KindFrequencyRestriction,
				Enabled: true,
				Parameters: map[string]interface{}{
					"max_operations_per_hour": 50.0,
				},
				Description: "Production frequency limits",
				CreatedAt:   now,
				UpdatedAt:   now,
			},
		},
	}, store, auditLog, logger)
}
