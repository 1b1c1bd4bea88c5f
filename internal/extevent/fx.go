package extevent

import (
	"github.com/quorumdesk/panelgate/internal/extevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("extevent",
	fx.Provide(service.NewService),
)
