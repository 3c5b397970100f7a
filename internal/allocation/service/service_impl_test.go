package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	allocationdomain "github.com/testbedhq/balance/internal/allocation/domain"
)

func setupAllocations(t *testing.T) (allocationdomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(&allocationdomain.Project{}, &allocationdomain.Allocation{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{DB: db, Log: zap.NewNop()})
	return svc, db, node
}

func seedAllocation(t *testing.T, db *gorm.DB, node *snowflake.Node, projectID snowflake.ID, status allocationdomain.AllocationStatus, start time.Time, expiration *time.Time) snowflake.ID {
	t.Helper()
	su := 1000.0
	alloc := allocationdomain.Allocation{
		ID:                    node.Generate(),
		ProjectID:             projectID,
		Status:                status,
		SUAllocated:           &su,
		StartDate:             start,
		ExpirationDate:        expiration,
		BalanceServiceVersion: 2,
	}
	require.NoError(t, db.Create(&alloc).Error)
	return alloc.ID
}

func TestGetActiveMissing(t *testing.T) {
	svc, _, node := setupAllocations(t)

	_, err := svc.GetActive(context.Background(), node.Generate())
	require.ErrorIs(t, err, allocationdomain.ErrNoActiveAllocation)
}

func TestGetApprovedSuccessorContiguous(t *testing.T) {
	svc, db, node := setupAllocations(t)
	projectID := node.Generate()

	activeExp := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	seedAllocation(t, db, node, projectID, allocationdomain.StatusActive,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), &activeExp)

	succExp := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	succID := seedAllocation(t, db, node, projectID, allocationdomain.StatusApproved,
		time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), &succExp)

	active, err := svc.GetActive(context.Background(), projectID)
	require.NoError(t, err)

	succ, err := svc.GetApprovedSuccessor(context.Background(), active)
	require.NoError(t, err)
	require.NotNil(t, succ)
	require.Equal(t, succID, succ.ID)
}

func TestGetApprovedSuccessorGapDisqualifies(t *testing.T) {
	svc, db, node := setupAllocations(t)
	projectID := node.Generate()

	activeExp := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	seedAllocation(t, db, node, projectID, allocationdomain.StatusActive,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), &activeExp)

	// Starts after the active allocation expires: not contiguous.
	succExp := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	seedAllocation(t, db, node, projectID, allocationdomain.StatusApproved,
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), &succExp)

	active, err := svc.GetActive(context.Background(), projectID)
	require.NoError(t, err)

	succ, err := svc.GetApprovedSuccessor(context.Background(), active)
	require.NoError(t, err)
	require.Nil(t, succ)
}

func TestListActivatableSkipsProjectsWithActive(t *testing.T) {
	svc, db, node := setupAllocations(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	busyProject := node.Generate()
	seedAllocation(t, db, node, busyProject, allocationdomain.StatusActive,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	seedAllocation(t, db, node, busyProject, allocationdomain.StatusApproved,
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), nil)

	idleProject := node.Generate()
	readyID := seedAllocation(t, db, node, idleProject, allocationdomain.StatusApproved,
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), nil)
	seedAllocation(t, db, node, idleProject, allocationdomain.StatusApproved,
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), nil) // not started yet

	allocs, err := svc.ListActivatable(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	require.Equal(t, readyID, allocs[0].ID)
}

func TestListExpired(t *testing.T) {
	svc, db, node := setupAllocations(t)
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	pastExp := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	expiredID := seedAllocation(t, db, node, node.Generate(), allocationdomain.StatusActive,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), &pastExp)

	futureExp := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	seedAllocation(t, db, node, node.Generate(), allocationdomain.StatusActive,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), &futureExp)

	seedAllocation(t, db, node, node.Generate(), allocationdomain.StatusActive,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), nil) // open-ended

	allocs, err := svc.ListExpired(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	require.Equal(t, expiredID, allocs[0].ID)
}

func TestActivateMissingAllocation(t *testing.T) {
	svc, _, node := setupAllocations(t)

	err := svc.Activate(context.Background(), node.Generate())
	require.ErrorIs(t, err, allocationdomain.ErrAllocationNotFound)
}

func TestDeactivate(t *testing.T) {
	svc, db, node := setupAllocations(t)
	projectID := node.Generate()
	id := seedAllocation(t, db, node, projectID, allocationdomain.StatusActive,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), nil)

	require.NoError(t, svc.Deactivate(context.Background(), id))

	_, err := svc.GetActive(context.Background(), projectID)
	require.ErrorIs(t, err, allocationdomain.ErrNoActiveAllocation)
}
