// Package domain contains the charge ledger model: one row per billable
// resource interval.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Resource type values the enforcement core distinguishes.
const (
	ResourceTypePhysicalHost   = "physical:host"
	ResourceTypeFlavorInstance = "flavor:instance"
)

// Charge is one billable interval. HourlyCost is a rate (SUs per active
// hour), already net of any per-resource billing factor. EndTime is nil only
// transiently; the enforcer always writes an end time when it opens or
// closes a charge.
type Charge struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	AllocationID snowflake.ID `gorm:"not null;index"`
	UserID       snowflake.ID `gorm:"not null;index"`
	Region       string       `gorm:"type:text;not null"`
	ResourceID   string       `gorm:"type:text;not null;index"`
	ResourceType string       `gorm:"type:text;not null"`
	StartTime    time.Time    `gorm:"not null"`
	EndTime      *time.Time
	HourlyCost   float64   `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Charge) TableName() string { return "charges" }

// Ongoing reports whether the charge is still accruing at now.
func (c Charge) Ongoing(now time.Time) bool {
	return c.EndTime == nil || c.EndTime.After(now)
}
