// Package seed writes the baseline configuration rows the resolver falls
// back to when no scoped override matches.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	configvardomain "github.com/testbedhq/balance/internal/configvar/domain"
	"github.com/testbedhq/balance/pkg/db"
)

const (
	defaultMaxLeaseDurationHours  = 168
	defaultLeaseUpdateWindowHours = 48
	defaultSUFactor               = 1
)

// EnsureDefaultConfigVariables seeds the global (all-wildcard) rows for each
// known configuration key so a fresh install enforces sane limits.
func EnsureDefaultConfigVariables(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	defaults := map[configvardomain.Key]float64{
		configvardomain.KeyMaxLeaseDuration:  defaultMaxLeaseDurationHours,
		configvardomain.KeyLeaseUpdateWindow: defaultLeaseUpdateWindowHours,
		configvardomain.KeySUFactor:          defaultSUFactor,
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range defaults {
			if err := ensureGlobalDefaultTx(ctx, tx, node, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureGlobalDefaultTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, key configvardomain.Key, value float64) error {
	var existing configvardomain.ConfigVariable
	err := tx.WithContext(ctx).
		Where("key = ? AND flavor_id IS NULL AND username IS NULL AND charge_code IS NULL", key).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	err = tx.WithContext(ctx).Create(&configvardomain.ConfigVariable{
		ID:    node.Generate(),
		Key:   key,
		Value: value,
	}).Error
	if db.IsDuplicateKeyErr(err) {
		// Another replica seeded the row between our lookup and insert.
		return nil
	}
	return err
}
