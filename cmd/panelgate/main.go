package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/quorumdesk/panelgate/internal/alert"
	"github.com/quorumdesk/panelgate/internal/audit"
	"github.com/quorumdesk/panelgate/internal/clock"
	"github.com/quorumdesk/panelgate/internal/config"
	"github.com/quorumdesk/panelgate/internal/extevent"
	"github.com/quorumdesk/panelgate/internal/logger"
	"github.com/quorumdesk/panelgate/internal/membership"
	"github.com/quorumdesk/panelgate/internal/metrics"
	"github.com/quorumdesk/panelgate/internal/migration"
	"github.com/quorumdesk/panelgate/internal/policy"
	"github.com/quorumdesk/panelgate/internal/quota"
	"github.com/quorumdesk/panelgate/internal/ratelimit"
	"github.com/quorumdesk/panelgate/internal/scheduler"
	"github.com/quorumdesk/panelgate/internal/server"
	"github.com/quorumdesk/panelgate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		membership.Module,
		policy.Module,
		quota.Module,
		alert.Module,
		audit.Module,
		extevent.Module,
		ratelimit.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
