// Package domain defines the identity/project directory contract. The
// directory translates wire-level identity tokens into billing identities
// and answers role queries; the enforcement core does not own it.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is a billable actor.
type User struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	ExternalID string       `gorm:"type:text;not null;uniqueIndex"`
	Username   string       `gorm:"type:text;not null;uniqueIndex"`
	Email      string       `gorm:"type:text"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// ProjectRole records a user's role on a project. Absence means member.
type ProjectRole struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	ProjectID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_project_roles_project_user,priority:1"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex:ux_project_roles_project_user,priority:2"`
	Role      string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProjectRole) TableName() string { return "project_roles" }

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
)

// BudgetExempt reports whether a role skips project/user budget checks.
// Exemption never covers the allocation-level balance check.
func BudgetExempt(role string) bool {
	return role == RoleAdmin || role == RoleManager
}

// ProjectIdentity is a resolved billing project.
type ProjectIdentity struct {
	ID         snowflake.ID
	ChargeCode string
}

// UserIdentity is a resolved billing user.
type UserIdentity struct {
	ID       snowflake.ID
	Username string
}

// Directory resolves opaque wire ids to billing identities and answers role
// queries. Resolution failures are hard errors, never retried.
type Directory interface {
	ResolveProject(ctx context.Context, externalID string) (ProjectIdentity, error)
	ResolveUser(ctx context.Context, externalID string) (UserIdentity, error)

	// GetRoleScopes returns the user's role on the project plus any
	// role-derived scopes.
	GetRoleScopes(ctx context.Context, username, chargeCode string) (string, []string, error)
}

var (
	ErrProjectNotResolved = errors.New("project_not_resolved")
	ErrUserNotResolved    = errors.New("user_not_resolved")
)
