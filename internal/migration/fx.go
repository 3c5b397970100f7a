package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/testbedhq/balance/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		if err := Migrate(conn); err != nil {
			return err
		}
		return seed.EnsureDefaultConfigVariables(conn)
	}),
)
