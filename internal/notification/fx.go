package notification

import (
	"github.com/smallbiznis/inspira/internal/notification/repository"
	"github.com/smallbiznis/inspira/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
