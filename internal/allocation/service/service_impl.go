package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	allocationdomain "github.com/testbedhq/balance/internal/allocation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) allocationdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("allocation.service"),
	}
}

func (s *Service) GetActive(ctx context.Context, projectID snowflake.ID) (*allocationdomain.Allocation, error) {
	var alloc allocationdomain.Allocation
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, allocationdomain.StatusActive).
		First(&alloc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, allocationdomain.ErrNoActiveAllocation
		}
		return nil, err
	}
	return &alloc, nil
}

func (s *Service) GetApprovedSuccessor(ctx context.Context, active *allocationdomain.Allocation) (*allocationdomain.Allocation, error) {
	if active == nil || active.ExpirationDate == nil {
		return nil, nil
	}
	var successor allocationdomain.Allocation
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", active.ProjectID, allocationdomain.StatusApproved).
		Where("start_date <= ?", *active.ExpirationDate).
		Where("expiration_date IS NOT NULL AND expiration_date >= ?", *active.ExpirationDate).
		Order("start_date ASC").
		First(&successor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &successor, nil
}

func (s *Service) Activate(ctx context.Context, allocationID snowflake.ID) error {
	return s.setStatus(ctx, allocationID, allocationdomain.StatusActive)
}

func (s *Service) Deactivate(ctx context.Context, allocationID snowflake.ID) error {
	return s.setStatus(ctx, allocationID, allocationdomain.StatusInactive)
}

func (s *Service) setStatus(ctx context.Context, allocationID snowflake.ID, status allocationdomain.AllocationStatus) error {
	result := s.db.WithContext(ctx).
		Model(&allocationdomain.Allocation{}).
		Where("id = ?", allocationID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return allocationdomain.ErrAllocationNotFound
	}
	return nil
}

func (s *Service) ListActivatable(ctx context.Context, now time.Time) ([]allocationdomain.Allocation, error) {
	var allocs []allocationdomain.Allocation
	err := s.db.WithContext(ctx).
		Where("status = ? AND start_date <= ?", allocationdomain.StatusApproved, now).
		Where("project_id NOT IN (?)",
			s.db.Model(&allocationdomain.Allocation{}).
				Select("project_id").
				Where("status = ?", allocationdomain.StatusActive),
		).
		Order("start_date ASC").
		Find(&allocs).Error
	if err != nil {
		return nil, err
	}
	return allocs, nil
}

func (s *Service) ListExpired(ctx context.Context, now time.Time) ([]allocationdomain.Allocation, error) {
	var allocs []allocationdomain.Allocation
	err := s.db.WithContext(ctx).
		Where("status = ?", allocationdomain.StatusActive).
		Where("expiration_date IS NOT NULL AND expiration_date <= ?", now).
		Find(&allocs).Error
	if err != nil {
		return nil, err
	}
	return allocs, nil
}
