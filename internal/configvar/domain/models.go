// Package domain contains administrator-managed configuration overrides.
// The enforcement core only ever reads these rows.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Key enumerates the override values the enforcer consults.
type Key string

const (
	KeyMaxLeaseDuration  Key = "max_lease_duration"  // hours
	KeyLeaseUpdateWindow Key = "lease_update_window" // hours
	KeySUFactor          Key = "su_factor"           // multiplier
)

// ConfigVariable is one scoped override. Each scoping dimension is either
// pinned or wildcard (NULL). No two rows share a key and the exact same
// combination of pinned dimensions; the migration enforces this with one
// partial unique index per dimension subset.
type ConfigVariable struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	Key        Key          `gorm:"type:text;not null;index"`
	Value      float64      `gorm:"not null"`
	FlavorID   *string      `gorm:"type:text"`
	Username   *string      `gorm:"type:text"`
	ChargeCode *string      `gorm:"type:text"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ConfigVariable) TableName() string { return "config_variables" }

// Scope carries the lookup dimensions for a resolution. Empty fields match
// only wildcard rows.
type Scope struct {
	FlavorID   string
	Username   string
	ChargeCode string
}
