package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/inspira/internal/application"
	"github.com/smallbiznis/inspira/internal/approval"
	"github.com/smallbiznis/inspira/internal/auth"
	"github.com/smallbiznis/inspira/internal/authorization"
	"github.com/smallbiznis/inspira/internal/clock"
	"github.com/smallbiznis/inspira/internal/config"
	"github.com/smallbiznis/inspira/internal/expiry"
	"github.com/smallbiznis/inspira/internal/group"
	"github.com/smallbiznis/inspira/internal/notification"
	"github.com/smallbiznis/inspira/internal/observability"
	"github.com/smallbiznis/inspira/internal/ratelimit"
	"github.com/smallbiznis/inspira/internal/server"
	"github.com/smallbiznis/inspira/internal/vote"
	"github.com/smallbiznis/inspira/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.WithLogger(observability.FxLogger),
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Core dependencies for API
		authorization.Module,
		auth.Module, // bearer sessions
		group.Module,
		notification.Module,
		application.Module,
		approval.Module,
		vote.Module,
		expiry.Module, // on-demand cleanup endpoint
		ratelimit.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
