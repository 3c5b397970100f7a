package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	allocationdomain "github.com/testbedhq/balance/internal/allocation/domain"
	budgetdomain "github.com/testbedhq/balance/internal/budget/domain"
	chargedomain "github.com/testbedhq/balance/internal/charge/domain"
	configvardomain "github.com/testbedhq/balance/internal/configvar/domain"
	identitydomain "github.com/testbedhq/balance/internal/identity/domain"
)

// RunMigrations brings the ledger schema up to date on startup so the
// service is usable out of the box.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Migrate applies the embedded SQL migrations on postgres. Other dialects
// (sqlite in dev and tests) fall back to gorm's schema sync, which cannot
// express the partial indexes the SQL files carry but covers the tables.
func Migrate(conn *gorm.DB) error {
	if strings.EqualFold(conn.Dialector.Name(), "postgres") {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}

	return conn.AutoMigrate(
		&allocationdomain.Project{},
		&identitydomain.User{},
		&identitydomain.ProjectRole{},
		&allocationdomain.Allocation{},
		&chargedomain.Charge{},
		&budgetdomain.Budget{},
		&configvardomain.ConfigVariable{},
	)
}
