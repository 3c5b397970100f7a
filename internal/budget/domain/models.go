// Package domain contains the optional spending caps layered beneath the
// allocation ceiling. Budgets apply to non-privileged actors only.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Budget caps SU spend for a whole project (UserID nil) or one user within
// a project.
type Budget struct {
	ID        snowflake.ID  `gorm:"primaryKey"`
	ProjectID snowflake.ID  `gorm:"not null;index"`
	UserID    *snowflake.ID `gorm:"index"`
	SUBudget  float64       `gorm:"not null"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Budget) TableName() string { return "budgets" }
