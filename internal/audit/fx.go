package audit

import (
	"github.com/quorumdesk/panelgate/internal/audit/repository"
	"github.com/quorumdesk/panelgate/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(
		repository.New,
		service.NewService,
	),
)
