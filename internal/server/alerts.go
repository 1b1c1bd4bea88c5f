package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	alertdomain "github.com/quorumdesk/panelgate/internal/alert/domain"
	auditdomain "github.com/quorumdesk/panelgate/internal/audit/domain"
	"go.uber.org/zap"
)

func (s *Server) ListAlerts(c *gin.Context) {
	tenantID, _ := s.tenantID(c)

	alerts, err := s.alertSvc.ListUnacknowledged(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) AcknowledgeAlert(c *gin.Context) {
	tenantID, _ := s.tenantID(c)
	actorID, _ := s.actorID(c)

	alertID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, alertdomain.ErrInvalidAlert)
		return
	}

	ctx := c.Request.Context()
	if err := s.alertSvc.Acknowledge(ctx, tenantID, alertID, actorID); err != nil {
		AbortWithError(c, err)
		return
	}

	if _, err := s.auditSvc.Record(ctx, auditdomain.RecordRequest{
		TenantID:    tenantID,
		ActorID:     actorID,
		Action:      "alert.acknowledge",
		TargetRef:   "alert:" + alertID.String(),
		Description: "budget alert acknowledged",
	}); err != nil {
		s.log.Warn("alert audit record failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}
