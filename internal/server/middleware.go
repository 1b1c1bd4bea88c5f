package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/quorumdesk/panelgate/pkg/tenantctx"
)

const (
	headerTenantID = "X-Tenant-ID"
	headerActorID  = "X-Actor-ID"
)

// TenantContext requires both tenant and actor headers and stores them in
// the request context for the service layer.
func (s *Server) TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := parseIDHeader(c, headerTenantID)
		if !ok {
			AbortWithError(c, ErrTenantRequired)
			return
		}
		actorID, ok := parseIDHeader(c, headerActorID)
		if !ok {
			AbortWithError(c, ErrActorRequired)
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
		ctx = tenantctx.WithActorID(ctx, actorID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ActorContext requires only the actor header, for routes that are not yet
// tenant-scoped (tenant creation, invitation acceptance).
func (s *Server) ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := parseIDHeader(c, headerActorID)
		if !ok {
			AbortWithError(c, ErrActorRequired)
			return
		}

		c.Request = c.Request.WithContext(tenantctx.WithActorID(c.Request.Context(), actorID))
		c.Next()
	}
}

func parseIDHeader(c *gin.Context, header string) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.GetHeader(header))
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) tenantID(c *gin.Context) (snowflake.ID, bool) {
	return tenantctx.TenantIDFromContext(c.Request.Context())
}

func (s *Server) actorID(c *gin.Context) (snowflake.ID, bool) {
	return tenantctx.ActorIDFromContext(c.Request.Context())
}
