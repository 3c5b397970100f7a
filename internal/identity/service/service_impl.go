package service

import (
	"context"
	"errors"
	"strings"

	allocationdomain "github.com/testbedhq/balance/internal/allocation/domain"
	identitydomain "github.com/testbedhq/balance/internal/identity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// Service is the directory backed by the portal's own projects/users
// tables, which mirror the upstream identity provider.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) identitydomain.Directory {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("identity.service"),
	}
}

func (s *Service) ResolveProject(ctx context.Context, externalID string) (identitydomain.ProjectIdentity, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return identitydomain.ProjectIdentity{}, identitydomain.ErrProjectNotResolved
	}
	var project allocationdomain.Project
	err := s.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return identitydomain.ProjectIdentity{}, identitydomain.ErrProjectNotResolved
		}
		return identitydomain.ProjectIdentity{}, err
	}
	if project.ChargeCode == "" {
		return identitydomain.ProjectIdentity{}, identitydomain.ErrProjectNotResolved
	}
	return identitydomain.ProjectIdentity{
		ID:         project.ID,
		ChargeCode: project.ChargeCode,
	}, nil
}

func (s *Service) ResolveUser(ctx context.Context, externalID string) (identitydomain.UserIdentity, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return identitydomain.UserIdentity{}, identitydomain.ErrUserNotResolved
	}
	var user identitydomain.User
	err := s.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return identitydomain.UserIdentity{}, identitydomain.ErrUserNotResolved
		}
		return identitydomain.UserIdentity{}, err
	}
	if user.Username == "" {
		return identitydomain.UserIdentity{}, identitydomain.ErrUserNotResolved
	}
	return identitydomain.UserIdentity{
		ID:       user.ID,
		Username: user.Username,
	}, nil
}

func (s *Service) GetRoleScopes(ctx context.Context, username, chargeCode string) (string, []string, error) {
	var role string
	err := s.db.WithContext(ctx).Raw(
		`SELECT pr.role
		 FROM project_roles pr
		 JOIN projects p ON p.id = pr.project_id
		 JOIN users u ON u.id = pr.user_id
		 WHERE p.charge_code = ? AND u.username = ?
		 LIMIT 1`,
		chargeCode,
		username,
	).Scan(&role).Error
	if err != nil {
		return "", nil, err
	}
	if role == "" {
		role = identitydomain.RoleMember
	}
	return role, scopesFor(role), nil
}

func scopesFor(role string) []string {
	switch role {
	case identitydomain.RoleAdmin:
		return []string{"allocation:read", "allocation:write", "charge:read", "charge:write"}
	case identitydomain.RoleManager:
		return []string{"allocation:read", "charge:read", "charge:write"}
	default:
		return []string{"charge:read"}
	}
}
