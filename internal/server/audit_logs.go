package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/quorumdesk/panelgate/internal/audit/domain"
)

type listAuditLogsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=50"`
	Action    string `form:"action"`
	TargetRef string `form:"target_ref"`
	StartAt   string `form:"start_at"`
	EndAt     string `form:"end_at"`
}

type recordAuditLogRequest struct {
	Action      string         `json:"action"`
	TargetRef   string         `json:"target_ref"`
	Description string         `json:"description"`
	Before      map[string]any `json:"before"`
	After       map[string]any `json:"after"`
}

// RecordAuditLog writes a caller-supplied ledger entry. The hash is computed
// server-side at insert; the caller never influences it.
func (s *Server) RecordAuditLog(c *gin.Context) {
	tenantID, _ := s.tenantID(c)
	actorID, _ := s.actorID(c)

	var req recordAuditLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entryID, err := s.auditSvc.Record(c.Request.Context(), auditdomain.RecordRequest{
		TenantID:    tenantID,
		ActorID:     actorID,
		Action:      strings.TrimSpace(req.Action),
		TargetRef:   strings.TrimSpace(req.TargetRef),
		Description: req.Description,
		Before:      req.Before,
		After:       req.After,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": entryID.String()})
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	tenantID, _ := s.tenantID(c)

	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := auditdomain.ListRequest{
		Action:    strings.TrimSpace(query.Action),
		TargetRef: strings.TrimSpace(query.TargetRef),
	}
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

	resp, err := s.auditSvc.List(c.Request.Context(), tenantID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) VerifyAuditEntry(c *gin.Context) {
	tenantID, _ := s.tenantID(c)

	entryID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, auditdomain.ErrEntryNotFound)
		return
	}

	result, verifyErr := s.auditSvc.VerifyEntry(c.Request.Context(), tenantID, entryID)
	if verifyErr != nil {
		AbortWithError(c, verifyErr)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) VerifyLedger(c *gin.Context) {
	tenantID, _ := s.tenantID(c)

	report, err := s.auditSvc.VerifyTenantLedger(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
