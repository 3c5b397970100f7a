// Package scheduler runs the allocation lifecycle sweep: approved
// allocations whose start date arrived become active, and active
// allocations past expiration are retired. Notification email is best
// effort and never rolls a transition back.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	allocationdomain "github.com/testbedhq/balance/internal/allocation/domain"
	"github.com/testbedhq/balance/internal/clock"
	"github.com/testbedhq/balance/internal/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Sweeper struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	allocSvc allocationdomain.Service
	notifier notify.Provider
}

func NewSweeper(db *gorm.DB, log *zap.Logger, clk clock.Clock, allocSvc allocationdomain.Service, notifier notify.Provider) *Sweeper {
	return &Sweeper{
		db:       db,
		log:      log.Named("scheduler.sweeper"),
		clock:    clk,
		allocSvc: allocSvc,
		notifier: notifier,
	}
}

// Sweep runs one lifecycle pass. Transitions are independent; one failing
// project does not block the rest.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.clock.Now()

	expired, err := s.allocSvc.ListExpired(ctx, now)
	if err != nil {
		s.log.Error("list expired allocations", zap.Error(err))
	}
	for _, alloc := range expired {
		if err := s.allocSvc.Deactivate(ctx, alloc.ID); err != nil {
			s.log.Error("deactivate allocation",
				zap.String("allocation_id", alloc.ID.String()), zap.Error(err))
			continue
		}
		s.notifyTransition(ctx, alloc, "deactivated")
	}

	activatable, err := s.allocSvc.ListActivatable(ctx, now)
	if err != nil {
		s.log.Error("list activatable allocations", zap.Error(err))
	}
	seen := map[string]bool{}
	for _, alloc := range activatable {
		// One activation per project per sweep keeps the single-active
		// invariant even when several approved allocations qualify.
		key := alloc.ProjectID.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := s.allocSvc.Activate(ctx, alloc.ID); err != nil {
			s.log.Error("activate allocation",
				zap.String("allocation_id", alloc.ID.String()), zap.Error(err))
			continue
		}
		s.notifyTransition(ctx, alloc, "activated")
	}
}

func (s *Sweeper) notifyTransition(ctx context.Context, alloc allocationdomain.Allocation, transition string) {
	recipients, chargeCode, err := s.projectContacts(ctx, alloc.ProjectID)
	if err != nil {
		s.log.Warn("resolve notification recipients", zap.Error(err))
		return
	}
	if len(recipients) == 0 {
		return
	}
	subject := fmt.Sprintf("Allocation for project %s has been %s", chargeCode, transition)
	body := fmt.Sprintf("The allocation for project %s was %s on %s.",
		chargeCode, transition, s.clock.Now().Format(time.RFC1123))
	if err := s.notifier.Send(ctx, recipients, subject, body); err != nil {
		s.log.Warn("allocation notification failed",
			zap.String("project_id", alloc.ProjectID.String()), zap.Error(err))
	}
}

func (s *Sweeper) projectContacts(ctx context.Context, projectID snowflake.ID) ([]string, string, error) {
	var chargeCode string
	if err := s.db.WithContext(ctx).Raw(
		`SELECT charge_code FROM projects WHERE id = ?`, projectID,
	).Scan(&chargeCode).Error; err != nil {
		return nil, "", err
	}

	var emails []string
	err := s.db.WithContext(ctx).Raw(
		`SELECT u.email
		 FROM users u
		 JOIN project_roles pr ON pr.user_id = u.id
		 WHERE pr.project_id = ? AND pr.role IN (?, ?) AND u.email <> ''`,
		projectID, "admin", "manager",
	).Scan(&emails).Error
	if err != nil {
		return nil, "", err
	}
	return emails, chargeCode, nil
}
