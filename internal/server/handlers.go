package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ParalexLabs/hyvbase/internal/audit"
	"github.com/ParalexLabs/hyvbase/internal/idgen"
	"github.com/ParalexLabs/hyvbase/internal/logging"
	"github.com/ParalexLabs/hyvbase/internal/policy"
	"github.com/ParalexLabs/hyvbase/internal/security"
	"github.com/ParalexLabs/hyvbase/internal/validation"
)

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

// validateRequest is the body of POST /v1/validate
type validateRequest struct {
	OperationType string                 `json:"operation_type" binding:"required"`
	Payload       map[string]interface{} `json:"payload"`
	Context       security.Context       `json:"context"`
}

// validateHandler handles POST /v1/validate
func (s *Server) validateHandler(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "operation_type is required",
		})
		return
	}

	req.OperationType = validation.SanitizeString(req.OperationType, 64)
	req.Context.AgentID = validation.SanitizeString(req.Context.AgentID, 200)
	req.Context.UserID = validation.SanitizeString(req.Context.UserID, 200)

	// Default the source IP to the connecting client when not supplied
	if req.Context.SourceIP == "" {
		req.Context.SourceIP = c.ClientIP()
	}

	result := s.manager.ValidateOperation(c.Request.Context(), req.OperationType, req.Payload, &req.Context)

	// Stream the verdict to subscribed clients
	s.realtimeHub.BroadcastValidation(map[string]interface{}{
		"operation_type": req.OperationType,
		"agent_id":       req.Context.AgentID,
		"approved":       result.Approved,
		"risk_score":     result.RiskScore,
		"violations":     result.Violations,
	})

	c.JSON(http.StatusOK, result)
}

// -----------------------------------------------------------------------------
// Policies
// -----------------------------------------------------------------------------

// policyRequest is the body of POST /v1/policies
type policyRequest struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name" binding:"required"`
	Kind        string                 `json:"kind" binding:"required"`
	Enabled     *bool                  `json:"enabled"`
	Parameters  map[string]interface{} `json:"parameters"`
	Description string                 `json:"description"`
}

func (s *Server) listPoliciesHandler(c *gin.Context) {
	policies, err := s.manager.Policies(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list policies", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list policies",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"policies": policies,
		"count":    len(policies),
	})
}

func (s *Server) createPolicyHandler(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "name and kind are required",
		})
		return
	}

	if req.ID == "" {
		req.ID = idgen.WithPrefix("pol_")
	}
	if errs := validation.Validate(
		validation.ValidID("id", req.ID),
		validation.MaxLength("name", req.Name, 200),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": errs.Error(),
		})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	now := time.Now()
	p := &policy.Policy{
		ID:          req.ID,
		Name:        validation.SanitizeString(req.Name, 200),
		Kind:        policy.Kind(req.Kind),
		Enabled:     enabled,
		Parameters:  req.Parameters,
		Description: validation.SanitizeString(req.Description, validation.MaxStringLength),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.manager.AddPolicy(c.Request.Context(), p); err != nil {
		if errors.Is(err, policy.ErrDuplicateID) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "policy_exists",
				"message": "A policy with this id already exists",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_policy",
			"message": err.Error(),
		})
		return
	}

	s.realtimeHub.BroadcastPolicyChange(map[string]interface{}{
		"action":    "added",
		"policy_id": p.ID,
		"kind":      string(p.Kind),
	})

	c.JSON(http.StatusCreated, p)
}

func (s *Server) getPolicyHandler(c *gin.Context) {
	p, err := s.policyStore.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, policy.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "policy_not_found",
				"message": "No policy with this id",
			})
			return
		}
		logging.L(c.Request.Context()).Error("failed to get policy", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get policy",
		})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) deletePolicyHandler(c *gin.Context) {
	id := c.Param("id")
	if err := s.manager.RemovePolicy(c.Request.Context(), id); err != nil {
		if errors.Is(err, policy.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "policy_not_found",
				"message": "No policy with this id",
			})
			return
		}
		logging.L(c.Request.Context()).Error("failed to delete policy", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to delete policy",
		})
		return
	}

	s.realtimeHub.BroadcastPolicyChange(map[string]interface{}{
		"action":    "removed",
		"policy_id": id,
	})

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) enablePolicyHandler(c *gin.Context) {
	s.setPolicyEnabled(c, true)
}

func (s *Server) disablePolicyHandler(c *gin.Context) {
	s.setPolicyEnabled(c, false)
}

func (s *Server) setPolicyEnabled(c *gin.Context, enabled bool) {
	id := c.Param("id")
	var err error
	if enabled {
		err = s.manager.EnablePolicy(c.Request.Context(), id)
	} else {
		err = s.manager.DisablePolicy(c.Request.Context(), id)
	}
	if err != nil {
		if errors.Is(err, policy.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "policy_not_found",
				"message": "No policy with this id",
			})
			return
		}
		logging.L(c.Request.Context()).Error("failed to update policy", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to update policy",
		})
		return
	}

	action := "disabled"
	if enabled {
		action = "enabled"
	}
	s.realtimeHub.BroadcastPolicyChange(map[string]interface{}{
		"action":    action,
		"policy_id": id,
	})
	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": enabled})
}

// -----------------------------------------------------------------------------
// Audit trail
// -----------------------------------------------------------------------------

// auditEventsHandler handles GET /v1/audit/events with optional filters:
// since/until (RFC3339), event_type, severity, limit.
func (s *Server) auditEventsHandler(c *gin.Context) {
	var f audit.Filter

	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "since must be RFC3339",
			})
			return
		}
		f.Since = t
	}
	if raw := c.Query("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "until must be RFC3339",
			})
			return
		}
		f.Until = t
	}
	f.EventType = c.Query("event_type")
	f.Severity = audit.Severity(c.Query("severity"))

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "limit must be 1-1000",
			})
			return
		}
		limit = n
	}

	events := s.auditLog.Query(f)
	if len(events) > limit {
		events = events[len(events)-limit:]
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// -----------------------------------------------------------------------------
// Reporting
// -----------------------------------------------------------------------------

func (s *Server) securityReportHandler(c *gin.Context) {
	report, err := s.manager.GenerateReport(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to generate report", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to generate report",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) securityMetricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"realtime": s.realtimeHub.Stats(),
		"audit": gin.H{
			"buffered_events": s.auditLog.Len(),
			"dropped_writes":  s.auditLog.Dropped(),
		},
		"security_level": s.manager.Level(),
	})
}

// -----------------------------------------------------------------------------
// Info & health
// -----------------------------------------------------------------------------

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "hyvbase-security",
		"description": "Operation validation and risk scoring for agent platforms",
		"version":     "0.1.0",
	})
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}
	checks["audit"] = "healthy"
	if s.auditLog.Dropped() > 0 {
		checks["audit"] = "degraded"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
