package quota

import (
	"github.com/quorumdesk/panelgate/internal/quota/repository"
	"github.com/quorumdesk/panelgate/internal/quota/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quota",
	fx.Provide(
		repository.New,
		service.NewService,
	),
)
