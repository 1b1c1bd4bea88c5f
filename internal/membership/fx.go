package membership

import (
	"github.com/quorumdesk/panelgate/internal/membership/repository"
	"github.com/quorumdesk/panelgate/internal/membership/service"
	"go.uber.org/fx"
)

var Module = fx.Module("membership",
	fx.Provide(
		repository.New,
		service.NewService,
	),
)
