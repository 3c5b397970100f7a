package service

import (
	"context"
	"fmt"
	"time"

	"github.com/testbedhq/balance/internal/balance"
	chargedomain "github.com/testbedhq/balance/internal/charge/domain"
	configvardomain "github.com/testbedhq/balance/internal/configvar/domain"
	enforcementdomain "github.com/testbedhq/balance/internal/enforcement/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// CheckUpdate gates a lease reshape. The balance check compares the change
// in projected cost against the remaining balance, not the new total: an
// update that keeps the same footprint always passes even at zero
// remaining balance.
func (s *Service) CheckUpdate(ctx context.Context, req enforcementdomain.UpdateRequest) error {
	oldEval, err := enforcementdomain.EvaluateLease(req.CurrentLease, s.loc)
	if err != nil {
		return err
	}
	newEval, err := enforcementdomain.EvaluateLease(req.Lease, s.loc)
	if err != nil {
		return err
	}

	project, user, err := s.resolveIdentities(ctx, req.Context)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.lockActiveAllocation(ctx, tx, project.ID)
		if err != nil {
			return err
		}

		bal := balance.ProjectBalance{}
		if active != nil {
			bal, err = s.balanceSvc.AllocationBalance(ctx, tx, active, now)
			if err != nil {
				return err
			}
		}
		change := newEval.Amount - oldEval.Amount
		if change > bal.Remaining() {
			return enforcementdomain.NewInsufficientBalanceUpdate(change, bal.Remaining())
		}

		if err := s.checkLeaseDuration(ctx, req.Lease, project, user, newEval); err != nil {
			return err
		}

		if newEval.End.After(oldEval.End) {
			window, err := s.configVars.MinValue(ctx,
				configvardomain.KeyLeaseUpdateWindow,
				s.reservationScopes(req.Lease, project, user),
				s.policy.Get().DefaultUpdateWindow,
			)
			if err != nil {
				return err
			}
			if oldEval.End.Sub(now).Hours() > window {
				return &enforcementdomain.MaxLeaseUpdateWindowError{
					WindowHours: window,
					OriginalEnd: oldEval.End,
				}
			}
		}

		absorbing, err := s.resolveAbsorbingAllocation(ctx, active, newEval.End)
		if err != nil {
			return err
		}

		oldRates := reservationRates(req.CurrentLease)
		endChanged := !newEval.End.Equal(oldEval.End)
		for _, reservation := range req.Lease.Reservations {
			newRate := reservation.HourlyCost()
			if oldRate, ok := oldRates[reservation.ID]; ok && !endChanged && oldRate == newRate {
				continue
			}

			ongoing, err := s.ongoingCharges(ctx, tx, reservation.ID, req.Context.RegionName, now)
			if err != nil {
				return err
			}
			if len(ongoing) != 1 {
				return enforcementdomain.NewLedgerInconsistent(
					fmt.Sprintf("expected 1 ongoing charge for reservation %s, found %d", reservation.ID, len(ongoing)))
			}

			current := ongoing[0]
			if err := s.closeCharge(ctx, tx, current.ID, now); err != nil {
				return err
			}

			start := newEval.Start
			if start.Before(now) {
				start = now
			}
			replacement := chargedomain.Charge{
				ID:           s.genID.Generate(),
				AllocationID: absorbing.ID,
				UserID:       current.UserID,
				Region:       current.Region,
				ResourceID:   reservation.ID,
				ResourceType: reservation.ResourceType,
				StartTime:    start,
				EndTime:      &newEval.End,
				HourlyCost:   newRate,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.Create(&replacement).Error; err != nil {
				return err
			}
		}

		return s.refreshSUUsed(ctx, tx, absorbing.ID, now)
	})

	s.observe("update", err)
	return err
}

// StopCharging closes any still-ongoing charges for the lease. Leases that
// never materialized charges stop silently; a second call is a no-op.
func (s *Service) StopCharging(ctx context.Context, req enforcementdomain.StopRequest) error {
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		touched := map[snowflake.ID]struct{}{}
		for _, reservation := range req.Lease.Reservations {
			ongoing, err := s.ongoingCharges(ctx, tx, reservation.ID, req.Context.RegionName, now)
			if err != nil {
				return err
			}
			for _, charge := range ongoing {
				if err := s.closeCharge(ctx, tx, charge.ID, now); err != nil {
					return err
				}
				touched[charge.AllocationID] = struct{}{}
			}
		}
		for allocationID := range touched {
			if err := s.refreshSUUsed(ctx, tx, allocationID, now); err != nil {
				return err
			}
		}
		return nil
	})

	s.observe("stop", err)
	return err
}

func (s *Service) closeCharge(ctx context.Context, tx *gorm.DB, chargeID snowflake.ID, now time.Time) error {
	return tx.WithContext(ctx).
		Model(&chargedomain.Charge{}).
		Where("id = ?", chargeID).
		Updates(map[string]any{"end_time": now, "updated_at": now}).Error
}

func reservationRates(lease enforcementdomain.Lease) map[string]float64 {
	rates := make(map[string]float64, len(lease.Reservations))
	for _, reservation := range lease.Reservations {
		rates[reservation.ID] = reservation.HourlyCost()
	}
	return rates
}
