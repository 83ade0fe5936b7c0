package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	appdomain "github.com/smallbiznis/inspira/internal/application/domain"
	approvalservice "github.com/smallbiznis/inspira/internal/approval/service"
	notificationdomain "github.com/smallbiznis/inspira/internal/notification/domain"
	"github.com/smallbiznis/inspira/internal/testkit"
	"github.com/smallbiznis/inspira/internal/vote/domain"
	"github.com/stretchr/testify/require"
)

func newTestService(env *testkit.Env) domain.Service {
	executor := approvalservice.NewExecutor(approvalservice.Params{
		DB:         env.DB,
		Log:        env.Log,
		GenID:      env.Node,
		Repo:       env.AppRepo,
		GroupRepo:  env.GroupRepo,
		Dispatcher: env.Dispatcher,
		Clock:      env.Clock,
	})
	return NewService(Params{
		DB:       env.DB,
		Log:      env.Log,
		GenID:    env.Node,
		Repo:     env.VoteRepo,
		AppRepo:  env.AppRepo,
		Authz:    env.Authz,
		Executor: executor,
		Clock:    env.Clock,
	})
}

type votingFixture struct {
	creator   snowflake.ID
	members   []snowflake.ID
	applicant snowflake.ID
	groupID   snowflake.ID
	app       appdomain.Application
}

// newVotingFixture builds a private group of creator plus extra members with
// one pending application that needs the default quorum.
func newVotingFixture(t *testing.T, env *testkit.Env, extra int) votingFixture {
	t.Helper()
	creator := env.User(t, "creator")
	members := env.Members(t, "member", extra)
	applicant := env.User(t, "applicant")
	group := env.Group(t, creator, "Ink Club", true, members...)
	needed := env.Policy.Get().Quorum.VotesNeeded(group.MemberCount)
	return votingFixture{
		creator:   creator,
		members:   members,
		applicant: applicant,
		groupID:   group.ID,
		app:       env.PendingApplication(t, group.ID, applicant, needed, 0),
	}
}

func TestSubmitApprovesAtQuorum(t *testing.T) {
	env := testkit.NewEnv(t)
	svc := newTestService(env)
	ctx := context.Background()
	fx := newVotingFixture(t, env, 2)
	require.Equal(t, 2, fx.app.VotesNeeded)

	first, err := svc.Submit(ctx, domain.SubmitRequest{ApplicationID: fx.app.ID, VoterID: fx.creator, Approve: true})
	require.NoError(t, err)
	require.True(t, first.VoteSubmitted)
	require.Equal(t, domain.VoteApprove, first.VoteType)
	require.False(t, first.ApplicationApproved)
	require.Equal(t, 1, first.CurrentVotes)
	require.Equal(t, 2, first.VotesNeeded)
	require.Equal(t, 31, first.DaysRemaining)
	require.Equal(t, "Approved", first.Message)

	second, err := svc.Submit(ctx, domain.SubmitRequest{ApplicationID: fx.app.ID, VoterID: fx.members[0], Approve: true})
	require.NoError(t, err)
	require.True(t, second.ApplicationApproved)
	require.Equal(t, 2, second.CurrentVotes)

	require.Equal(t, appdomain.StatusApproved, env.Application(t, fx.app.ID).Status)
	require.EqualValues(t, 1, env.MembershipRows(t, fx.groupID, fx.applicant))
	require.Equal(t, 4, env.MemberCount(t, fx.groupID))
	require.Len(t, env.Notifications(t, fx.applicant, notificationdomain.TypeGroupApproval), 1)

	_, err = svc.Submit(ctx, domain.SubmitRequest{ApplicationID: fx.app.ID, VoterID: fx.members[1], Approve: true})
	require.ErrorIs(t, err, domain.ErrApplicationUnavailable)
}

func TestSubmitRejectDoesNotCount(t *testing.T) {
	env := testkit.NewEnv(t)
	svc := newTestService(env)
	fx := newVotingFixture(t, env, 1)

	resp, err := svc.Submit(context.Background(), domain.SubmitRequest{ApplicationID: fx.app.ID, VoterID: fx.members[0], Approve: false})
	require.NoError(t, err)
	require.Equal(t, domain.VoteReject, resp.VoteType)
	require.Equal(t, 0, resp.CurrentVotes)
	require.False(t, resp.ApplicationApproved)
	require.Equal(t, "Rejected", resp.Message)
	require.Equal(t, appdomain.StatusPending, env.Application(t, fx.app.ID).Status)
}

func TestSubmitRejectsSecondVote(t *testing.T) {
	env := testkit.NewEnv(t)
	svc := newTestService(env)
	ctx := context.Background()
	fx := newVotingFixture(t, env, 3)

	_, err := svc.Submit(ctx, domain.SubmitRequest{ApplicationID: fx.app.ID, VoterID: fx.members[0], Approve: false})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, domain.SubmitRequest{ApplicationID: fx.app.ID, VoterID: fx.members[0], Approve: true})
	require.ErrorIs(t, err, domain.ErrAlreadyVoted)

	var already *domain.AlreadyVotedError
	require.True(t, errors.As(err, &already))
	require.Equal(t, domain.VoteReject, already.VoteType)
	require.Equal(t, 0, env.Application(t, fx.app.ID).VotesReceived)
}

func TestSubmitRequiresMembership(t *testing.T) {
	env := testkit.NewEnv(t)
	svc := newTestService(env)
	fx := newVotingFixture(t, env, 1)
	outsider := env.User(t, "outsider")

	_, err := svc.Submit(context.Background(), domain.SubmitRequest{ApplicationID: fx.app.ID, VoterID: outsider, Approve: true})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = svc.Submit(context.Background(), domain.SubmitRequest{ApplicationID: fx.app.ID, VoterID: fx.applicant, Approve: true})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestSubmitAfterDeadlineIsUnavailable(t *testing.T) {
	env := testkit.NewEnv(t)
	svc := newTestService(env)
	ctx := context.Background()
	fx := newVotingFixture(t, env, 1)

	_, err := svc.Submit(ctx, domain.SubmitRequest{ApplicationID: env.Node.Generate(), VoterID: fx.creator, Approve: true})
	require.ErrorIs(t, err, domain.ErrApplicationUnavailable)

	env.Clock.Set(fx.app.ExpiresAt.Add(time.Second))
	_, err = svc.Submit(ctx, domain.SubmitRequest{ApplicationID: fx.app.ID, VoterID: fx.creator, Approve: true})
	require.ErrorIs(t, err, domain.ErrApplicationUnavailable)

	stored := env.Application(t, fx.app.ID)
	require.Equal(t, appdomain.StatusPending, stored.Status)
	require.Equal(t, 0, stored.VotesReceived)
}

func TestSubmitConcurrentVotesAdmitOnce(t *testing.T) {
	env := testkit.NewEnv(t)
	svc := newTestService(env)
	fx := newVotingFixture(t, env, 5)
	require.Equal(t, 3, fx.app.VotesNeeded)

	voters := append([]snowflake.ID{fx.creator}, fx.members...)
	var wg sync.WaitGroup
	for _, voter := range voters {
		wg.Add(1)
		go func(voter snowflake.ID) {
			defer wg.Done()
			_, err := svc.Submit(context.Background(), domain.SubmitRequest{ApplicationID: fx.app.ID, VoterID: voter, Approve: true})
			if err != nil && !errors.Is(err, domain.ErrApplicationUnavailable) {
				t.Errorf("submit: %v", err)
			}
		}(voter)
	}
	wg.Wait()

	stored := env.Application(t, fx.app.ID)
	require.Equal(t, appdomain.StatusApproved, stored.Status)
	require.GreaterOrEqual(t, stored.VotesReceived, stored.VotesNeeded)
	require.EqualValues(t, 1, env.MembershipRows(t, fx.groupID, fx.applicant))
	require.Equal(t, 7, env.MemberCount(t, fx.groupID))
	require.Len(t, env.Notifications(t, fx.applicant, notificationdomain.TypeGroupApproval), 1)
}
