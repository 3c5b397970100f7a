package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/testbedhq/balance/internal/allocation"
	"github.com/testbedhq/balance/internal/balance"
	"github.com/testbedhq/balance/internal/clock"
	"github.com/testbedhq/balance/internal/config"
	"github.com/testbedhq/balance/internal/configvar"
	"github.com/testbedhq/balance/internal/enforcement"
	"github.com/testbedhq/balance/internal/identity"
	"github.com/testbedhq/balance/internal/logger"
	"github.com/testbedhq/balance/internal/migration"
	"github.com/testbedhq/balance/internal/notify"
	"github.com/testbedhq/balance/internal/observability"
	"github.com/testbedhq/balance/internal/scheduler"
	"github.com/testbedhq/balance/internal/server"
	"github.com/testbedhq/balance/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		allocation.Module,
		balance.Module,
		configvar.Module,
		identity.Module,
		enforcement.Module,
		notify.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
