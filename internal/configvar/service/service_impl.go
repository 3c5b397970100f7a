package service

import (
	"context"
	"sort"

	configvardomain "github.com/testbedhq/balance/internal/configvar/domain"
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

func NewService(p Params) configvardomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("configvar.service"),
	}
}

// GetValue selects rows where every dimension is wildcard or equal to the
// scope, then ranks matches by the (username, charge_code, flavor_id)
// exact-match tuple. A row pinned to more dimensions outranks one pinned to
// fewer; username beats charge code beats flavor. Ties break on row id so
// resolution is deterministic.
func (s *Service) GetValue(ctx context.Context, key configvardomain.Key, scope configvardomain.Scope) (float64, bool, error) {
	var rows []configvardomain.ConfigVariable
	err := s.db.WithContext(ctx).
		Where("key = ?", key).
		Where("flavor_id IS NULL OR flavor_id = ?", scope.FlavorID).
		Where("username IS NULL OR username = ?", scope.Username).
		Where("charge_code IS NULL OR charge_code = ?", scope.ChargeCode).
		Find(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}

	sort.SliceStable(rows, func(i, j int) bool {
		ri, rj := rankOf(rows[i], scope), rankOf(rows[j], scope)
		if ri != rj {
			return ri > rj
		}
		return rows[i].ID < rows[j].ID
	})
	return rows[0].Value, true, nil
}

func (s *Service) MinValue(ctx context.Context, key configvardomain.Key, scopes []configvardomain.Scope, def float64) (float64, error) {
	best := 0.0
	found := false
	for _, scope := range scopes {
		value, ok, err := s.GetValue(ctx, key, scope)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		if !found || value < best {
			best = value
		}
		found = true
	}
	if !found {
		return def, nil
	}
	return best, nil
}

// rankOf encodes the exact-match tuple as a bitmask with username most
// significant.
func rankOf(row configvardomain.ConfigVariable, scope configvardomain.Scope) int {
	rank := 0
	if row.Username != nil && *row.Username == scope.Username {
		rank |= 4
	}
	if row.ChargeCode != nil && *row.ChargeCode == scope.ChargeCode {
		rank |= 2
	}
	if row.FlavorID != nil && *row.FlavorID == scope.FlavorID {
		rank |= 1
	}
	return rank
}
