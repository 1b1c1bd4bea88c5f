package server

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	rateLimitReasonTenantRate         = "tenant-rate"
	rateLimitReasonSessionConcurrency = "session-concurrency"
)

type ingestRateLimitKey struct {
	SessionRef string `json:"session_ref"`
}

// IngestRateLimit throttles the ingest route per tenant and serializes
// concurrent deliveries for the same session ref.
func (s *Server) IngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.ingestLimiter == nil || !s.ingestLimiter.Enabled() {
			c.Next()
			return
		}

		tenantID, ok := s.tenantID(c)
		if !ok {
			AbortWithError(c, ErrTenantRequired)
			return
		}

		ctx := c.Request.Context()
		result, err := s.ingestLimiter.AllowTenant(ctx, tenantID.String())
		if err != nil {
			s.log.Warn("ingest rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			s.denyIngest(c, tenantID.String(), rateLimitReasonTenantRate)
			return
		}

		sessionRef, err := readIngestKey(c)
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}

		if sessionRef != "" {
			lockToken, allowed, err := s.ingestLimiter.TryLockSession(ctx, tenantID.String(), sessionRef)
			if err != nil {
				s.log.Warn("ingest concurrency lock failed", zap.Error(err))
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			if !allowed {
				s.denyIngest(c, tenantID.String(), rateLimitReasonSessionConcurrency)
				return
			}
			defer func() {
				if err := s.ingestLimiter.ReleaseSession(ctx, tenantID.String(), sessionRef, lockToken); err != nil {
					s.log.Warn("ingest concurrency unlock failed", zap.Error(err))
				}
			}()
		}

		c.Next()
	}
}

func (s *Server) denyIngest(c *gin.Context, tenantID, reason string) {
	s.log.Warn("usage ingest rate limit exceeded",
		zap.String("tenant_id", tenantID),
		zap.String("reason", reason),
	)
	if s.metrics != nil {
		s.metrics.IncRateLimitDenied(reason)
	}

	c.Header("Retry-After", "1")
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func readIngestKey(c *gin.Context) (string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload ingestRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}

	return strings.TrimSpace(payload.SessionRef), nil
}
