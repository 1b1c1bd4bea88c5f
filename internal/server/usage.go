package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/quorumdesk/panelgate/internal/audit/domain"
	quotadomain "github.com/quorumdesk/panelgate/internal/quota/domain"
	"go.uber.org/zap"
)

type ingestResponse struct {
	Totals quotadomain.UsageTotals   `json:"totals"`
	Limits []quotadomain.LimitStatus `json:"limits"`
}

// IngestUsage meters one model invocation: counters first, then the advisory
// limit check and alert evaluation. Breaches never reject the request.
func (s *Server) IngestUsage(c *gin.Context) {
	tenantID, _ := s.tenantID(c)
	actorID, _ := s.actorID(c)

	var req quotadomain.IncrementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	totals, err := s.quotaSvc.IncrementUsage(ctx, tenantID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	statuses, err := s.quotaSvc.CheckLimits(ctx, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Alerting and audit are best-effort on this path: the increment is
	// already committed and must be reported.
	if _, err := s.alertSvc.Evaluate(ctx, tenantID, statuses); err != nil {
		s.log.Warn("alert evaluation failed", zap.Error(err))
	}

	targetRef := "session"
	if ref := strings.TrimSpace(req.SessionRef); ref != "" {
		targetRef = "session:" + ref
	}
	if _, err := s.auditSvc.Record(ctx, auditdomain.RecordRequest{
		TenantID:    tenantID,
		ActorID:     actorID,
		Action:      "usage.ingest",
		TargetRef:   targetRef,
		Description: "usage recorded",
	}); err != nil {
		s.log.Warn("usage audit record failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, ingestResponse{Totals: totals, Limits: statuses})
}

type listUsageRecordsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=50"`
	StartAt   string `form:"start_at"`
	EndAt     string `form:"end_at"`
}

func (s *Server) ListUsageRecords(c *gin.Context) {
	tenantID, _ := s.tenantID(c)

	var query listUsageRecordsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req quotadomain.ListRecordsRequest
	req.PageToken = strings.TrimSpace(query.PageToken)
	req.PageSize = query.PageSize

	if raw := strings.TrimSpace(query.StartAt); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("start_at", "invalid_timestamp", "expected RFC3339"))
			return
		}
		req.StartAt = &ts
	}
	if raw := strings.TrimSpace(query.EndAt); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("end_at", "invalid_timestamp", "expected RFC3339"))
			return
		}
		req.EndAt = &ts
	}

	resp, err := s.quotaSvc.ListSessionRecords(c.Request.Context(), tenantID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) CheckLimits(c *gin.Context) {
	tenantID, _ := s.tenantID(c)

	statuses, err := s.quotaSvc.CheckLimits(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"limits": statuses})
}
