package expiry

import (
	"github.com/smallbiznis/inspira/internal/expiry/service"
	"go.uber.org/fx"
)

var Module = fx.Module("expiry.sweeper",
	fx.Provide(service.OptionsFromConfig),
	fx.Provide(service.NewSweeper),
)
