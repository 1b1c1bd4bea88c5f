package alert

import (
	"github.com/quorumdesk/panelgate/internal/alert/service"
	"go.uber.org/fx"
)

var Module = fx.Module("alert",
	fx.Provide(service.NewService),
)
