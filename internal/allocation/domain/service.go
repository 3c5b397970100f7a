package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// GetActive returns the project's single active allocation, or
	// ErrNoActiveAllocation when none exists.
	GetActive(ctx context.Context, projectID snowflake.ID) (*Allocation, error)

	// GetApprovedSuccessor returns the approved allocation queued to follow
	// active: one starting no later than active's expiration and ending no
	// earlier than it. Nil when no such allocation exists.
	GetApprovedSuccessor(ctx context.Context, active *Allocation) (*Allocation, error)

	// Activate and Deactivate are used by the lifecycle sweeper.
	Activate(ctx context.Context, allocationID snowflake.ID) error
	Deactivate(ctx context.Context, allocationID snowflake.ID) error

	// ListActivatable returns approved allocations whose start date has
	// arrived for projects with no active allocation.
	ListActivatable(ctx context.Context, now time.Time) ([]Allocation, error)

	// ListExpired returns active allocations past their expiration date.
	ListExpired(ctx context.Context, now time.Time) ([]Allocation, error)
}

var (
	ErrNoActiveAllocation = errors.New("no_active_allocation")
	ErrAllocationNotFound = errors.New("allocation_not_found")
)
