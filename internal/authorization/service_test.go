package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/inspira/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memberRow struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	GroupID   snowflake.ID
	UserID    snowflake.ID
	Role      string
	CreatedAt time.Time
}

func (memberRow) TableName() string { return "group_members" }

func newTestService(t *testing.T) (Service, func(groupID, userID snowflake.ID, role string)) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&memberRow{}))

	enforcer, err := NewEnforcer()
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{DB: conn, Log: zap.NewNop(), Enforcer: enforcer})
	addMember := func(groupID, userID snowflake.ID, role string) {
		require.NoError(t, conn.Create(&memberRow{
			ID:        node.Generate(),
			GroupID:   groupID,
			UserID:    userID,
			Role:      role,
			CreatedAt: time.Now().UTC(),
		}).Error)
	}
	return svc, addMember
}

func TestAuthorizeMemberCanVote(t *testing.T) {
	svc, addMember := newTestService(t)
	ctx := context.Background()
	groupID, userID := snowflake.ID(10), snowflake.ID(20)
	addMember(groupID, userID, "member")

	require.NoError(t, svc.Authorize(ctx, UserActor(userID), groupID, ObjectApplication, ActionApplicationVote))
	require.NoError(t, svc.Authorize(ctx, UserActor(userID), groupID, ObjectApplication, ActionApplicationView))
	require.ErrorIs(t, svc.Authorize(ctx, UserActor(userID), groupID, ObjectApplication, ActionApplicationSweep), ErrForbidden)
}

func TestAuthorizeNonMemberForbidden(t *testing.T) {
	svc, addMember := newTestService(t)
	addMember(10, 20, "creator")

	err := svc.Authorize(context.Background(), UserActor(21), 10, ObjectApplication, ActionApplicationVote)
	require.ErrorIs(t, err, ErrForbidden)
	err = svc.Authorize(context.Background(), UserActor(20), 11, ObjectApplication, ActionApplicationVote)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeSystemActor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, ActorSystem, 0, ObjectApplication, ActionApplicationSweep))
	require.NoError(t, svc.Authorize(ctx, ActorSystem, 0, ObjectGroup, ActionGroupReconcile))
	require.NoError(t, svc.Authorize(ctx, ActorSystem, 0, ObjectApplication, ActionApplicationResume))
	require.ErrorIs(t, svc.Authorize(ctx, ActorSystem, 0, ObjectApplication, ActionApplicationVote), ErrForbidden)
}

func TestAuthorizeRejectsMalformedInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.Authorize(ctx, "", 1, ObjectApplication, ActionApplicationVote), ErrInvalidActor)
	require.ErrorIs(t, svc.Authorize(ctx, "api_key:1", 1, ObjectApplication, ActionApplicationVote), ErrInvalidActor)
	require.ErrorIs(t, svc.AuthorizeRole(ctx, "member", "", ActionApplicationVote), ErrInvalidObject)
	require.ErrorIs(t, svc.AuthorizeRole(ctx, "member", ObjectApplication, " "), ErrInvalidAction)
	require.ErrorIs(t, svc.AuthorizeRole(ctx, "", ObjectApplication, ActionApplicationVote), ErrForbidden)
}
