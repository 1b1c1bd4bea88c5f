// Package server exposes the HTTP surface: usage ingestion, limit checks,
// alerts, the audit ledger, tenant membership and billing webhooks.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	alertdomain "github.com/quorumdesk/panelgate/internal/alert/domain"
	auditdomain "github.com/quorumdesk/panelgate/internal/audit/domain"
	"github.com/quorumdesk/panelgate/internal/config"
	exteventdomain "github.com/quorumdesk/panelgate/internal/extevent/domain"
	membershipdomain "github.com/quorumdesk/panelgate/internal/membership/domain"
	"github.com/quorumdesk/panelgate/internal/metrics"
	policydomain "github.com/quorumdesk/panelgate/internal/policy/domain"
	quotadomain "github.com/quorumdesk/panelgate/internal/quota/domain"
	"github.com/quorumdesk/panelgate/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	return r
}

func registerGin(m *metrics.Metrics) *gin.Engine {
	return NewEngine(m)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	db            *gorm.DB
	genID         *snowflake.Node
	quotaSvc      quotadomain.Service
	policySvc     policydomain.Service
	alertSvc      alertdomain.Service
	auditSvc      auditdomain.Service
	exteventSvc   exteventdomain.Service
	membershipSvc membershipdomain.Service
	metrics       *metrics.Metrics
	ingestLimiter *ratelimit.IngestLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	DB            *gorm.DB
	GenID         *snowflake.Node
	QuotaSvc      quotadomain.Service
	PolicySvc     policydomain.Service
	AlertSvc      alertdomain.Service
	AuditSvc      auditdomain.Service
	ExteventSvc   exteventdomain.Service
	MembershipSvc membershipdomain.Service
	Metrics       *metrics.Metrics         `optional:"true"`
	IngestLimiter *ratelimit.IngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("server"),
		db:            p.DB,
		genID:         p.GenID,
		quotaSvc:      p.QuotaSvc,
		policySvc:     p.PolicySvc,
		alertSvc:      p.AlertSvc,
		auditSvc:      p.AuditSvc,
		exteventSvc:   p.ExteventSvc,
		membershipSvc: p.MembershipSvc,
		metrics:       p.Metrics,
		ingestLimiter: p.IngestLimiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// Tenant lifecycle. Creation needs no tenant header; everything else is
	// tenant-scoped.
	v1.POST("/tenants", s.ActorContext(), s.CreateTenant)
	v1.POST("/invitations/accept", s.ActorContext(), s.AcceptInvitation)

	tenant := v1.Group("", s.TenantContext())
	{
		tenant.GET("/tenants/:id", s.GetTenant)
		tenant.POST("/tenants/:id/invitations", s.InviteMember)
		tenant.POST("/tenants/:id/transfer-ownership", s.TransferOwnership)

		tenant.POST("/usage", s.IngestRateLimit(), s.IngestUsage)
		tenant.GET("/usage/records", s.ListUsageRecords)
		tenant.GET("/limits", s.CheckLimits)

		tenant.GET("/policy", s.GetPolicy)
		tenant.PUT("/policy", s.UpdatePolicy)

		tenant.GET("/alerts", s.ListAlerts)
		tenant.POST("/alerts/:id/ack", s.AcknowledgeAlert)

		tenant.POST("/audit", s.RecordAuditLog)
		tenant.GET("/audit", s.ListAuditLogs)
		tenant.GET("/audit/verify", s.VerifyLedger)
		tenant.GET("/audit/:id/verify", s.VerifyAuditEntry)
	}

	// Billing provider webhooks carry their own event identity; no tenant
	// header is required.
	v1.POST("/webhooks/billing", s.HandleBillingWebhook)
}
