package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	allocationdomain "github.com/testbedhq/balance/internal/allocation/domain"
	identitydomain "github.com/testbedhq/balance/internal/identity/domain"
)

func setupDirectory(t *testing.T) (identitydomain.Directory, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(
		&allocationdomain.Project{},
		&identitydomain.User{},
		&identitydomain.ProjectRole{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{DB: db, Log: zap.NewNop()}), db, node
}

func TestResolveProject(t *testing.T) {
	dir, db, node := setupDirectory(t)
	project := allocationdomain.Project{
		ID:         node.Generate(),
		ExternalID: "ext-1",
		ChargeCode: "CHI-001",
	}
	require.NoError(t, db.Create(&project).Error)

	resolved, err := dir.ResolveProject(context.Background(), "ext-1")
	require.NoError(t, err)
	require.Equal(t, project.ID, resolved.ID)
	require.Equal(t, "CHI-001", resolved.ChargeCode)

	_, err = dir.ResolveProject(context.Background(), "missing")
	require.ErrorIs(t, err, identitydomain.ErrProjectNotResolved)

	_, err = dir.ResolveProject(context.Background(), "  ")
	require.ErrorIs(t, err, identitydomain.ErrProjectNotResolved)
}

func TestResolveUser(t *testing.T) {
	dir, db, node := setupDirectory(t)
	user := identitydomain.User{
		ID:         node.Generate(),
		ExternalID: "ext-u1",
		Username:   "alice",
	}
	require.NoError(t, db.Create(&user).Error)

	resolved, err := dir.ResolveUser(context.Background(), "ext-u1")
	require.NoError(t, err)
	require.Equal(t, user.ID, resolved.ID)
	require.Equal(t, "alice", resolved.Username)

	_, err = dir.ResolveUser(context.Background(), "missing")
	require.ErrorIs(t, err, identitydomain.ErrUserNotResolved)
}

func TestGetRoleScopesDefaultsToMember(t *testing.T) {
	dir, db, node := setupDirectory(t)

	project := allocationdomain.Project{ID: node.Generate(), ExternalID: "ext-1", ChargeCode: "CHI-001"}
	require.NoError(t, db.Create(&project).Error)
	user := identitydomain.User{ID: node.Generate(), ExternalID: "ext-u1", Username: "alice"}
	require.NoError(t, db.Create(&user).Error)

	role, scopes, err := dir.GetRoleScopes(context.Background(), "alice", "CHI-001")
	require.NoError(t, err)
	require.Equal(t, identitydomain.RoleMember, role)
	require.Equal(t, []string{"charge:read"}, scopes)

	require.NoError(t, db.Create(&identitydomain.ProjectRole{
		ID:        node.Generate(),
		ProjectID: project.ID,
		UserID:    user.ID,
		Role:      identitydomain.RoleAdmin,
	}).Error)

	role, scopes, err = dir.GetRoleScopes(context.Background(), "alice", "CHI-001")
	require.NoError(t, err)
	require.Equal(t, identitydomain.RoleAdmin, role)
	require.Contains(t, scopes, "allocation:write")
}
