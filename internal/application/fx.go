package application

import (
	"github.com/smallbiznis/inspira/internal/application/domain"
	"github.com/smallbiznis/inspira/internal/application/repository"
	"github.com/smallbiznis/inspira/internal/application/service"
	authdomain "github.com/smallbiznis/inspira/internal/auth/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("application.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(func(auth authdomain.Service) domain.ProfileLookup { return auth }),
)
