package group

import (
	"github.com/smallbiznis/inspira/internal/group/repository"
	"github.com/smallbiznis/inspira/internal/group/service"
	"go.uber.org/fx"
)

var Module = fx.Module("group.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
