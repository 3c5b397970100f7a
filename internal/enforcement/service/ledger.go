package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	allocationdomain "github.com/testbedhq/balance/internal/allocation/domain"
	budgetdomain "github.com/testbedhq/balance/internal/budget/domain"
	chargedomain "github.com/testbedhq/balance/internal/charge/domain"
	"github.com/testbedhq/balance/internal/balance"
	enforcementdomain "github.com/testbedhq/balance/internal/enforcement/domain"
	identitydomain "github.com/testbedhq/balance/internal/identity/domain"
	"gorm.io/gorm"
)

// lockActiveAllocation reads the project's active allocation under a row
// lock so concurrent check-and-commit sequences on the same project
// serialize. sqlite has no FOR UPDATE; its single-writer model covers the
// same hazard in tests.
func (s *Service) lockActiveAllocation(ctx context.Context, tx *gorm.DB, projectID snowflake.ID) (*allocationdomain.Allocation, error) {
	query := `SELECT * FROM allocations WHERE project_id = ? AND status = ? LIMIT 1`
	if !strings.EqualFold(tx.Dialector.Name(), "sqlite") {
		query += " FOR UPDATE"
	}

	var alloc allocationdomain.Allocation
	err := tx.WithContext(ctx).Raw(query, projectID, allocationdomain.StatusActive).Scan(&alloc).Error
	if err != nil {
		return nil, err
	}
	if alloc.ID == 0 {
		return nil, nil
	}
	return &alloc, nil
}

// checkBudgets applies the project-wide and per-user caps. Administrators
// and managers are exempt from budgets, never from the allocation balance.
func (s *Service) checkBudgets(
	ctx context.Context,
	tx *gorm.DB,
	project identitydomain.ProjectIdentity,
	user identitydomain.UserIdentity,
	active *allocationdomain.Allocation,
	bal balance.ProjectBalance,
	amount float64,
	now time.Time,
) error {
	role, _, err := s.directory.GetRoleScopes(ctx, user.Username, project.ChargeCode)
	if err != nil {
		return err
	}
	if identitydomain.BudgetExempt(role) {
		return nil
	}

	projectBudget, err := s.findBudget(ctx, tx, project.ID, 0)
	if err != nil {
		return err
	}
	if projectBudget != nil {
		left := projectBudget.SUBudget - bal.Total
		if left-amount < 0 {
			return enforcementdomain.NewBudgetExceeded(enforcementdomain.BudgetScopeProject, amount, left)
		}
	}

	userBudget, err := s.findBudget(ctx, tx, project.ID, user.ID)
	if err != nil {
		return err
	}
	if userBudget != nil {
		userUsed := 0.0
		if active != nil {
			userUsed, err = s.balanceSvc.UserUsage(ctx, tx, active, user.ID, now)
			if err != nil {
				return err
			}
		}
		left := userBudget.SUBudget - userUsed
		if left-amount < 0 {
			return enforcementdomain.NewBudgetExceeded(enforcementdomain.BudgetScopeUser, amount, left)
		}
	}

	return nil
}

func (s *Service) findBudget(ctx context.Context, tx *gorm.DB, projectID, userID snowflake.ID) (*budgetdomain.Budget, error) {
	query := tx.WithContext(ctx).Where("project_id = ?", projectID)
	if userID == 0 {
		query = query.Where("user_id IS NULL")
	} else {
		query = query.Where("user_id = ?", userID)
	}
	var budget budgetdomain.Budget
	err := query.First(&budget).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &budget, nil
}

// pendingResourceID synthesizes a placeholder resource id for charges whose
// lease has not materialized a real resource yet.
func (s *Service) pendingResourceID(project identitydomain.ProjectIdentity, user identitydomain.UserIdentity, start time.Time, leaseName string) string {
	return fmt.Sprintf("%s-%s-%s-%s-%s",
		s.policy.Get().PendingResourcePrefix,
		project.ID.String(),
		user.ID.String(),
		start.Format("2006-01-02"),
		leaseName,
	)
}

// ongoingCharges returns the charges for a reservation that are still
// accruing at now.
func (s *Service) ongoingCharges(ctx context.Context, tx *gorm.DB, resourceID, region string, now time.Time) ([]chargedomain.Charge, error) {
	var charges []chargedomain.Charge
	err := tx.WithContext(ctx).
		Where("resource_id = ? AND region = ?", resourceID, region).
		Where("end_time IS NULL OR end_time > ?", now).
		Order("id ASC").
		Find(&charges).Error
	if err != nil {
		return nil, err
	}
	return charges, nil
}

// refreshSUUsed rewrites the allocation's non-authoritative su_used cache
// from the ledger.
func (s *Service) refreshSUUsed(ctx context.Context, tx *gorm.DB, allocationID snowflake.ID, now time.Time) error {
	var charges []chargedomain.Charge
	if err := tx.WithContext(ctx).Where("allocation_id = ?", allocationID).Find(&charges).Error; err != nil {
		return err
	}
	used, _ := balance.Reduce(charges, now)
	return tx.WithContext(ctx).
		Model(&allocationdomain.Allocation{}).
		Where("id = ?", allocationID).
		Updates(map[string]any{"su_used": used, "updated_at": now}).Error
}
