// Package domain contains persistence models for projects and their
// compute-grant allocations.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AllocationStatus tracks where an allocation sits in its review/usage
// lifecycle. At most one allocation per project is active at a time.
type AllocationStatus string

const (
	StatusPending  AllocationStatus = "pending"
	StatusWaiting  AllocationStatus = "waiting"
	StatusApproved AllocationStatus = "approved"
	StatusActive   AllocationStatus = "active"
	StatusInactive AllocationStatus = "inactive"
	StatusRejected AllocationStatus = "rejected"
)

// Project is the billing identity external tenant ids resolve to.
type Project struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	ExternalID string       `gorm:"type:text;not null;uniqueIndex"` // opaque tenant id on the wire
	ChargeCode string       `gorm:"type:text;not null;uniqueIndex"`
	Nickname   string       `gorm:"type:text"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Project) TableName() string { return "projects" }

// Allocation is a project's approved compute grant for one period.
type Allocation struct {
	ID                    snowflake.ID     `gorm:"primaryKey"`
	ProjectID             snowflake.ID    `gorm:"not null;index"`
	Status                AllocationStatus `gorm:"type:text;not null;index"`
	SUAllocated           *float64
	SUUsed                *float64 // cache, not authoritative
	StartDate             time.Time `gorm:"not null"`
	ExpirationDate        *time.Time
	BalanceServiceVersion int       `gorm:"not null;default:2"`
	CreatedAt             time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Allocation) TableName() string { return "allocations" }
