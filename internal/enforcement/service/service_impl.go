package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	allocationdomain "github.com/testbedhq/balance/internal/allocation/domain"
	"github.com/testbedhq/balance/internal/balance"
	chargedomain "github.com/testbedhq/balance/internal/charge/domain"
	"github.com/testbedhq/balance/internal/clock"
	"github.com/testbedhq/balance/internal/config"
	configvardomain "github.com/testbedhq/balance/internal/configvar/domain"
	enforcementdomain "github.com/testbedhq/balance/internal/enforcement/domain"
	identitydomain "github.com/testbedhq/balance/internal/identity/domain"
	obsmetrics "github.com/testbedhq/balance/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Policy     *config.PolicyHolder
	Directory  identitydomain.Directory
	AllocSvc   allocationdomain.Service
	BalanceSvc *balance.Service
	ConfigVars configvardomain.Service
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	policy     *config.PolicyHolder
	directory  identitydomain.Directory
	allocSvc   allocationdomain.Service
	balanceSvc *balance.Service
	configVars configvardomain.Service
	metrics    *obsmetrics.Metrics
	loc        *time.Location
}

func NewService(p Params) (enforcementdomain.Service, error) {
	loc, err := time.LoadLocation(p.Cfg.SiteTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid site timezone %q: %w", p.Cfg.SiteTimezone, err)
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("enforcement.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		policy:     p.Policy,
		directory:  p.Directory,
		allocSvc:   p.AllocSvc,
		balanceSvc: p.BalanceSvc,
		configVars: p.ConfigVars,
		metrics:    p.Metrics,
		loc:        loc,
	}, nil
}

// CheckCreate gates a new lease: balance, budgets, policy and expiration
// boundary are all evaluated under the allocation row lock before any charge
// is written.
func (s *Service) CheckCreate(ctx context.Context, req enforcementdomain.CreateRequest) error {
	eval, err := enforcementdomain.EvaluateLease(req.Lease, s.loc)
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
		remaining := bal.Remaining()
		if remaining-eval.Amount < 0 {
			return enforcementdomain.NewInsufficientBalance(eval.Amount, remaining)
		}

		if err := s.checkBudgets(ctx, tx, project, user, active, bal, eval.Amount, now); err != nil {
			return err
		}

		if err := s.checkLeaseDuration(ctx, req.Lease, project, user, eval); err != nil {
			return err
		}

		absorbing, err := s.resolveAbsorbingAllocation(ctx, active, eval.End)
		if err != nil {
			return err
		}

		resourceID := s.pendingResourceID(project, user, eval.Start, req.Lease.Name)
		for _, reservation := range req.Lease.Reservations {
			charge := chargedomain.Charge{
				ID:           s.genID.Generate(),
				AllocationID: absorbing.ID,
				UserID:       user.ID,
				Region:       req.Context.RegionName,
				ResourceID:   resourceID,
				ResourceType: reservation.ResourceType,
				StartTime:    eval.Start,
				EndTime:      &eval.End,
				HourlyCost:   reservation.HourlyCost(),
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.Create(&charge).Error; err != nil {
				return err
			}
		}

		return s.refreshSUUsed(ctx, tx, absorbing.ID, now)
	})

	s.observe("create", err)
	return err
}

func (s *Service) resolveIdentities(ctx context.Context, rc enforcementdomain.RequestContext) (identitydomain.ProjectIdentity, identitydomain.UserIdentity, error) {
	project, err := s.directory.ResolveProject(ctx, rc.ProjectID)
	if err != nil {
		if errors.Is(err, identitydomain.ErrProjectNotResolved) {
			return identitydomain.ProjectIdentity{}, identitydomain.UserIdentity{},
				enforcementdomain.NewIdentityUnresolved(fmt.Sprintf("project %q has no billing identity", rc.ProjectID))
		}
		return identitydomain.ProjectIdentity{}, identitydomain.UserIdentity{}, err
	}
	user, err := s.directory.ResolveUser(ctx, rc.UserID)
	if err != nil {
		if errors.Is(err, identitydomain.ErrUserNotResolved) {
			return identitydomain.ProjectIdentity{}, identitydomain.UserIdentity{},
				enforcementdomain.NewIdentityUnresolved(fmt.Sprintf("user %q has no billing identity", rc.UserID))
		}
		return identitydomain.ProjectIdentity{}, identitydomain.UserIdentity{}, err
	}
	return project, user, nil
}

func (s *Service) checkLeaseDuration(ctx context.Context, lease enforcementdomain.Lease, project identitydomain.ProjectIdentity, user identitydomain.UserIdentity, eval enforcementdomain.Evaluation) error {
	limit, err := s.configVars.MinValue(ctx,
		configvardomain.KeyMaxLeaseDuration,
		s.reservationScopes(lease, project, user),
		s.policy.Get().DefaultMaxLeaseDuration,
	)
	if err != nil {
		return err
	}
	if eval.DurationHours > limit {
		return &enforcementdomain.MaxLeaseDurationError{
			RequestedHours: eval.DurationHours,
			LimitHours:     limit,
		}
	}
	return nil
}

func (s *Service) reservationScopes(lease enforcementdomain.Lease, project identitydomain.ProjectIdentity, user identitydomain.UserIdentity) []configvardomain.Scope {
	scopes := make([]configvardomain.Scope, 0, len(lease.Reservations))
	for _, reservation := range lease.Reservations {
		scopes = append(scopes, configvardomain.Scope{
			FlavorID:   reservation.FlavorID(),
			Username:   user.Username,
			ChargeCode: project.ChargeCode,
		})
	}
	return scopes
}

// resolveAbsorbingAllocation picks the allocation the lease bills against:
// the active one, or its approved successor when the lease end falls inside
// the successor's window.
func (s *Service) resolveAbsorbingAllocation(ctx context.Context, active *allocationdomain.Allocation, leaseEnd time.Time) (*allocationdomain.Allocation, error) {
	if active == nil {
		return nil, enforcementdomain.NewInsufficientBalance(0, 0)
	}
	if active.ExpirationDate == nil || !leaseEnd.After(*active.ExpirationDate) {
		return active, nil
	}

	successor, err := s.allocSvc.GetApprovedSuccessor(ctx, active)
	if err != nil {
		return nil, err
	}
	if successor != nil && (successor.ExpirationDate == nil || !leaseEnd.After(*successor.ExpirationDate)) {
		return successor, nil
	}

	boundary := *active.ExpirationDate
	if successor != nil && successor.ExpirationDate != nil {
		boundary = *successor.ExpirationDate
	}
	return nil, &enforcementdomain.LeasePastExpirationError{
		LeaseEnd:   leaseEnd,
		Expiration: boundary,
	}
}

func (s *Service) observe(op string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordEnforcement(op, err)
}
