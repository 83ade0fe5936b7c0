package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/inspira/internal/clock"
	"github.com/smallbiznis/inspira/internal/group/domain"
	"github.com/smallbiznis/inspira/internal/group/repository"
	"github.com/smallbiznis/inspira/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db   *gorm.DB
	svc  domain.Service
	node *snowflake.Node
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Group{}, &domain.Member{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.NewRepository(conn),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	})
	return testEnv{db: conn, svc: svc, node: node}
}

func (e testEnv) memberRows(t *testing.T, groupID snowflake.ID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&domain.Member{}).Where("group_id = ?", groupID).Count(&count).Error)
	return count
}

func TestCreateAddsCreatorMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.node.Generate()

	group, err := env.svc.Create(ctx, creator, domain.CreateGroupRequest{Name: "  Morning Pages  ", IsPrivate: true})
	require.NoError(t, err)
	require.Equal(t, "Morning Pages", group.Name)
	require.Equal(t, "morning-pages", group.Slug)
	require.Equal(t, 1, group.MemberCount)

	role, err := env.svc.MemberRole(ctx, group.ID, creator)
	require.NoError(t, err)
	require.Equal(t, domain.RoleCreator, role)
	require.EqualValues(t, 1, env.memberRows(t, group.ID))
}

func TestCreateRejectsBlankName(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Create(context.Background(), env.node.Generate(), domain.CreateGroupRequest{Name: "   "})
	require.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestJoinPublicGroup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group, err := env.svc.Create(ctx, env.node.Generate(), domain.CreateGroupRequest{Name: "Sketchbook"})
	require.NoError(t, err)

	user := env.node.Generate()
	require.NoError(t, env.svc.Join(ctx, group.ID, user))
	require.ErrorIs(t, env.svc.Join(ctx, group.ID, user), domain.ErrAlreadyMember)

	got, err := env.svc.Get(ctx, group.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.MemberCount)
	require.EqualValues(t, 2, env.memberRows(t, group.ID))
}

func TestJoinPrivateGroupRequiresApplication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group, err := env.svc.Create(ctx, env.node.Generate(), domain.CreateGroupRequest{Name: "Inner circle", IsPrivate: true})
	require.NoError(t, err)

	require.ErrorIs(t, env.svc.Join(ctx, group.ID, env.node.Generate()), domain.ErrPrivateGroup)
}

func TestJoinFullGroupRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group, err := env.svc.Create(ctx, env.node.Generate(), domain.CreateGroupRequest{Name: "Duo", MaxMembers: 2})
	require.NoError(t, err)

	require.NoError(t, env.svc.Join(ctx, group.ID, env.node.Generate()))
	require.ErrorIs(t, env.svc.Join(ctx, group.ID, env.node.Generate()), domain.ErrGroupFull)

	got, err := env.svc.Get(ctx, group.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.MemberCount)
	require.EqualValues(t, 2, env.memberRows(t, group.ID))
}

func TestLeave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.node.Generate()
	group, err := env.svc.Create(ctx, creator, domain.CreateGroupRequest{Name: "Haiku"})
	require.NoError(t, err)

	user := env.node.Generate()
	require.NoError(t, env.svc.Join(ctx, group.ID, user))
	require.NoError(t, env.svc.Leave(ctx, group.ID, user))
	require.ErrorIs(t, env.svc.Leave(ctx, group.ID, user), domain.ErrNotMember)
	require.ErrorIs(t, env.svc.Leave(ctx, group.ID, creator), domain.ErrCreatorCannotLeave)
	require.ErrorIs(t, env.svc.Leave(ctx, env.node.Generate(), user), domain.ErrGroupNotFound)

	got, err := env.svc.Get(ctx, group.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.MemberCount)
}

func TestGetUnknownGroup(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Get(context.Background(), env.node.Generate())
	require.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func TestReconcileMemberCountsRepairsDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	group, err := env.svc.Create(ctx, env.node.Generate(), domain.CreateGroupRequest{Name: "Drift"})
	require.NoError(t, err)
	require.NoError(t, env.svc.Join(ctx, group.ID, env.node.Generate()))

	require.NoError(t, env.db.Model(&domain.Group{}).Where("id = ?", group.ID).Update("member_count", 7).Error)

	fixed, err := env.svc.ReconcileMemberCounts(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, fixed)

	got, err := env.svc.Get(ctx, group.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.MemberCount)

	fixed, err = env.svc.ReconcileMemberCounts(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, fixed)
}
