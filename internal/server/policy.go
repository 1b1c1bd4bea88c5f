package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/quorumdesk/panelgate/internal/audit/domain"
	policydomain "github.com/quorumdesk/panelgate/internal/policy/domain"
	"go.uber.org/zap"
)

func (s *Server) GetPolicy(c *gin.Context) {
	tenantID, _ := s.tenantID(c)

	policy, err := s.policySvc.Resolve(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, policy)
}

func (s *Server) UpdatePolicy(c *gin.Context) {
	tenantID, _ := s.tenantID(c)
	actorID, _ := s.actorID(c)

	var req policydomain.UpdatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	before, err := s.policySvc.Resolve(ctx, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	policy, err := s.policySvc.Update(ctx, tenantID, actorID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if _, err := s.auditSvc.Record(ctx, auditdomain.RecordRequest{
		TenantID:    tenantID,
		ActorID:     actorID,
		Action:      "policy.update",
		TargetRef:   "policy:" + tenantID.String(),
		Description: "rate limit policy updated",
		Before: map[string]any{
			"source":                   before.Source,
			"hourly_session_limit":     before.HourlySessionLimit,
			"daily_session_limit":      before.DailySessionLimit,
			"monthly_token_limit":      before.MonthlyTokenLimit,
			"monthly_cost_cents_limit": before.MonthlyCostCentsLimit,
		},
		After: map[string]any{
			"hourly_session_limit":     policy.HourlySessionLimit,
			"daily_session_limit":      policy.DailySessionLimit,
			"monthly_token_limit":      policy.MonthlyTokenLimit,
			"monthly_cost_cents_limit": policy.MonthlyCostCentsLimit,
		},
	}); err != nil {
		s.log.Warn("policy audit record failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, policy)
}
