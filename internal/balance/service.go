package balance

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	allocationdomain "github.com/testbedhq/balance/internal/allocation/domain"
	chargedomain "github.com/testbedhq/balance/internal/charge/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	AllocSvc allocationdomain.Service
}

// Service computes balance figures straight from the ledger. No caching:
// figures must reflect ledger state at call time.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	allocSvc allocationdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("balance.service"),
		allocSvc: p.AllocSvc,
	}
}

// ProjectBalance reduces all charges on the project's active allocation.
// A project with no active allocation has an all-zero balance.
func (s *Service) ProjectBalance(ctx context.Context, projectID snowflake.ID, now time.Time) (ProjectBalance, error) {
	active, err := s.allocSvc.GetActive(ctx, projectID)
	if err != nil {
		if errors.Is(err, allocationdomain.ErrNoActiveAllocation) {
			return ProjectBalance{}, nil
		}
		return ProjectBalance{}, err
	}
	return s.AllocationBalance(ctx, s.db, active, now)
}

// AllocationBalance is the transaction-aware variant: the enforcer passes
// its own tx so the reduction sees the ledger under the allocation row lock.
func (s *Service) AllocationBalance(ctx context.Context, tx *gorm.DB, alloc *allocationdomain.Allocation, now time.Time) (ProjectBalance, error) {
	charges, err := s.allocationCharges(ctx, tx, alloc.ID, 0)
	if err != nil {
		return ProjectBalance{}, err
	}
	used, total := Reduce(charges, now)
	allocated := 0.0
	if alloc.SUAllocated != nil {
		allocated = *alloc.SUAllocated
	}
	return ProjectBalance{
		Used:       used,
		Total:      total,
		Encumbered: total - used,
		Allocated:  allocated,
	}, nil
}

// Remaining is Allocated - Total for the project's active allocation.
func (s *Service) Remaining(ctx context.Context, projectID snowflake.ID, now time.Time) (float64, error) {
	bal, err := s.ProjectBalance(ctx, projectID, now)
	if err != nil {
		return 0, err
	}
	return bal.Remaining(), nil
}

// UserUsage sums one user's realized usage on the given allocation.
func (s *Service) UserUsage(ctx context.Context, tx *gorm.DB, alloc *allocationdomain.Allocation, userID snowflake.ID, now time.Time) (float64, error) {
	charges, err := s.allocationCharges(ctx, tx, alloc.ID, userID)
	if err != nil {
		return 0, err
	}
	used, _ := Reduce(charges, now)
	return used, nil
}

func (s *Service) allocationCharges(ctx context.Context, tx *gorm.DB, allocationID, userID snowflake.ID) ([]chargedomain.Charge, error) {
	query := tx.WithContext(ctx).Where("allocation_id = ?", allocationID)
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	var charges []chargedomain.Charge
	if err := query.Order("id ASC").Find(&charges).Error; err != nil {
		return nil, err
	}
	return charges, nil
}
