package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/quorumdesk/panelgate/internal/audit/domain"
	membershipdomain "github.com/quorumdesk/panelgate/internal/membership/domain"
	"go.uber.org/zap"
)

func (s *Server) CreateTenant(c *gin.Context) {
	actorID, _ := s.actorID(c)

	var req membershipdomain.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.OwnerUserID) == "" {
		req.OwnerUserID = actorID.String()
	}

	ctx := c.Request.Context()
	tenant, err := s.membershipSvc.CreateTenant(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tenantID, _ := snowflake.ParseString(tenant.ID)
	if _, err := s.auditSvc.Record(ctx, auditdomain.RecordRequest{
		TenantID:    tenantID,
		ActorID:     actorID,
		Action:      "tenant.create",
		TargetRef:   "tenant:" + tenant.ID,
		Description: "tenant created",
		After:       map[string]any{"name": tenant.Name, "tier": tenant.Tier},
	}); err != nil {
		s.log.Warn("tenant audit record failed", zap.Error(err))
	}

	c.JSON(http.StatusCreated, tenant)
}

func (s *Server) GetTenant(c *gin.Context) {
	tenantID, ok := s.pathTenantID(c)
	if !ok {
		return
	}

	tenant, err := s.membershipSvc.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

func (s *Server) InviteMember(c *gin.Context) {
	tenantID, ok := s.pathTenantID(c)
	if !ok {
		return
	}
	actorID, _ := s.actorID(c)

	var req membershipdomain.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	invitation, err := s.membershipSvc.InviteMember(ctx, tenantID, actorID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if _, err := s.auditSvc.Record(ctx, auditdomain.RecordRequest{
		TenantID:    tenantID,
		ActorID:     actorID,
		Action:      "member.invite",
		TargetRef:   "invitation:" + invitation.ID.String(),
		Description: "member invited",
		After:       map[string]any{"email": invitation.Email, "role": invitation.Role},
	}); err != nil {
		s.log.Warn("invite audit record failed", zap.Error(err))
	}

	c.JSON(http.StatusCreated, invitation)
}

type acceptInvitationRequest struct {
	Token string `json:"token"`
}

func (s *Server) AcceptInvitation(c *gin.Context) {
	actorID, _ := s.actorID(c)

	var req acceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	member, err := s.membershipSvc.AcceptInvitation(ctx, strings.TrimSpace(req.Token), actorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if _, err := s.auditSvc.Record(ctx, auditdomain.RecordRequest{
		TenantID:    member.TenantID,
		ActorID:     actorID,
		Action:      "member.join",
		TargetRef:   "member:" + member.ID.String(),
		Description: "invitation accepted",
		After:       map[string]any{"role": member.Role},
	}); err != nil {
		s.log.Warn("accept audit record failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, member)
}

type transferOwnershipRequest struct {
	NewOwnerID string `json:"new_owner_id"`
}

func (s *Server) TransferOwnership(c *gin.Context) {
	tenantID, ok := s.pathTenantID(c)
	if !ok {
		return
	}
	actorID, _ := s.actorID(c)

	var req transferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	newOwnerID, err := snowflake.ParseString(strings.TrimSpace(req.NewOwnerID))
	if err != nil || newOwnerID == 0 {
		AbortWithError(c, membershipdomain.ErrInvalidUser)
		return
	}

	ctx := c.Request.Context()
	if err := s.membershipSvc.TransferOwnership(ctx, tenantID, actorID, newOwnerID); err != nil {
		AbortWithError(c, err)
		return
	}

	if _, err := s.auditSvc.Record(ctx, auditdomain.RecordRequest{
		TenantID:    tenantID,
		ActorID:     actorID,
		Action:      "tenant.transfer_ownership",
		TargetRef:   "user:" + newOwnerID.String(),
		Description: "ownership transferred",
		Before:      map[string]any{"owner": actorID.String()},
		After:       map[string]any{"owner": newOwnerID.String()},
	}); err != nil {
		s.log.Warn("transfer audit record failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"status": "transferred"})
}

// pathTenantID parses the :id path segment and requires it to match the
// tenant header, so a caller cannot act on another tenant's resources.
func (s *Server) pathTenantID(c *gin.Context) (snowflake.ID, bool) {
	headerID, _ := s.tenantID(c)

	pathID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || pathID == 0 {
		AbortWithError(c, membershipdomain.ErrInvalidTenant)
		return 0, false
	}
	if headerID != 0 && pathID != headerID {
		AbortWithError(c, ErrForbidden)
		return 0, false
	}
	return pathID, true
}
