// Package testkit wires the admission stores and collaborators over an
// in-memory sqlite database for service tests.
package testkit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	appdomain "github.com/smallbiznis/inspira/internal/application/domain"
	apprepository "github.com/smallbiznis/inspira/internal/application/repository"
	authdomain "github.com/smallbiznis/inspira/internal/auth/domain"
	authrepository "github.com/smallbiznis/inspira/internal/auth/repository"
	authservice "github.com/smallbiznis/inspira/internal/auth/service"
	"github.com/smallbiznis/inspira/internal/authorization"
	"github.com/smallbiznis/inspira/internal/clock"
	"github.com/smallbiznis/inspira/internal/config"
	groupdomain "github.com/smallbiznis/inspira/internal/group/domain"
	grouprepository "github.com/smallbiznis/inspira/internal/group/repository"
	groupservice "github.com/smallbiznis/inspira/internal/group/service"
	"github.com/smallbiznis/inspira/internal/migration"
	notificationdomain "github.com/smallbiznis/inspira/internal/notification/domain"
	notificationrepository "github.com/smallbiznis/inspira/internal/notification/repository"
	notificationservice "github.com/smallbiznis/inspira/internal/notification/service"
	votedomain "github.com/smallbiznis/inspira/internal/vote/domain"
	voterepository "github.com/smallbiznis/inspira/internal/vote/repository"
	"github.com/smallbiznis/inspira/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Epoch is the fake clock's starting instant.
var Epoch = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

type Env struct {
	DB     *gorm.DB
	Node   *snowflake.Node
	Clock  *clock.FakeClock
	Log    *zap.Logger
	Policy *config.PolicyHolder

	Auth       authdomain.Service
	Authz      authorization.Service
	GroupRepo  groupdomain.Repository
	Groups     groupdomain.Service
	AppRepo    appdomain.Repository
	VoteRepo   votedomain.Repository
	Dispatcher notificationdomain.Dispatcher
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	enforcer, err := authorization.NewEnforcer()
	require.NoError(t, err)

	log := zap.NewNop()
	fake := clock.NewFakeClock(Epoch)
	userRepo, sessionRepo := authrepository.New(conn)
	groupRepo := grouprepository.NewRepository(conn)

	return &Env{
		DB:     conn,
		Node:   node,
		Clock:  fake,
		Log:    log,
		Policy: config.NewStaticPolicyHolder(config.DefaultAdmissionPolicy()),
		Auth: authservice.New(authservice.Params{
			Log:         log,
			Repo:        userRepo,
			SessionRepo: sessionRepo,
			GenID:       node,
			Clock:       fake,
		}),
		Authz: authorization.NewService(authorization.Params{
			DB:       conn,
			Log:      log,
			Enforcer: enforcer,
		}),
		GroupRepo: groupRepo,
		Groups: groupservice.NewService(groupservice.Params{
			DB:    conn,
			Log:   log,
			GenID: node,
			Repo:  groupRepo,
			Clock: fake,
		}),
		AppRepo:  apprepository.NewRepository(conn),
		VoteRepo: voterepository.NewRepository(conn),
		Dispatcher: notificationservice.NewService(notificationservice.Params{
			Log:   log,
			GenID: node,
			Repo:  notificationrepository.NewRepository(conn),
			Clock: fake,
		}),
	}
}

// User creates an account and returns its id.
func (e *Env) User(t *testing.T, username string) snowflake.ID {
	t.Helper()
	user, err := e.Auth.CreateUser(context.Background(), authdomain.CreateUserRequest{Username: username})
	require.NoError(t, err)
	return user.ID
}

// Group creates a group owned by creator and admits members through the
// open-join path, so member_count matches the membership rows.
func (e *Env) Group(t *testing.T, creator snowflake.ID, name string, private bool, members ...snowflake.ID) *groupdomain.Group {
	t.Helper()
	ctx := context.Background()

	group, err := e.Groups.Create(ctx, creator, groupdomain.CreateGroupRequest{Name: name})
	require.NoError(t, err)
	for _, member := range members {
		require.NoError(t, e.Groups.Join(ctx, group.ID, member))
	}
	if private {
		require.NoError(t, e.DB.Model(&groupdomain.Group{}).Where("id = ?", group.ID).Update("is_private", true).Error)
	}

	reloaded, err := e.Groups.Get(ctx, group.ID)
	require.NoError(t, err)
	return reloaded
}

// Members returns n fresh user ids.
func (e *Env) Members(t *testing.T, prefix string, n int) []snowflake.ID {
	t.Helper()
	ids := make([]snowflake.ID, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, e.User(t, prefix+"-"+strconv.Itoa(i)))
	}
	return ids
}

func (e *Env) Application(t *testing.T, id snowflake.ID) appdomain.Application {
	t.Helper()
	app, err := e.AppRepo.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, app)
	return *app
}

func (e *Env) MemberCount(t *testing.T, groupID snowflake.ID) int {
	t.Helper()
	group, err := e.Groups.Get(context.Background(), groupID)
	require.NoError(t, err)
	return group.MemberCount
}

func (e *Env) MembershipRows(t *testing.T, groupID, userID snowflake.ID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.DB.Model(&groupdomain.Member{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error)
	return count
}

// Notifications lists the rows of one type sent to recipient.
func (e *Env) Notifications(t *testing.T, recipient snowflake.ID, typ notificationdomain.Type) []notificationdomain.Notification {
	t.Helper()
	var rows []notificationdomain.Notification
	require.NoError(t, e.DB.
		Where("recipient_id = ? AND type = ?", recipient, typ).
		Order("created_at asc, id asc").
		Find(&rows).Error)
	return rows
}

func (e *Env) CountNotifications(t *testing.T, typ notificationdomain.Type) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.DB.Model(&notificationdomain.Notification{}).Where("type = ?", typ).Count(&count).Error)
	return count
}

// PendingApplication inserts an application directly, bypassing Apply's
// validations, with a one-month deadline from the fake clock.
func (e *Env) PendingApplication(t *testing.T, groupID, applicantID snowflake.ID, votesNeeded, votesReceived int) appdomain.Application {
	t.Helper()
	now := e.Clock.Now()
	app := appdomain.Application{
		ID:            e.Node.Generate(),
		GroupID:       groupID,
		ApplicantID:   applicantID,
		Message:       "please let me in",
		Status:        appdomain.StatusPending,
		VotesNeeded:   votesNeeded,
		VotesReceived: votesReceived,
		CreatedAt:     now,
		ExpiresAt:     now.AddDate(0, 1, 0),
		UpdatedAt:     now,
	}
	require.NoError(t, e.AppRepo.Insert(context.Background(), app))
	return app
}
