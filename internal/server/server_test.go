package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	appservice "github.com/smallbiznis/inspira/internal/application/service"
	approvalservice "github.com/smallbiznis/inspira/internal/approval/service"
	"github.com/smallbiznis/inspira/internal/config"
	expiryservice "github.com/smallbiznis/inspira/internal/expiry/service"
	"github.com/smallbiznis/inspira/internal/observability"
	"github.com/smallbiznis/inspira/internal/ratelimit"
	"github.com/smallbiznis/inspira/internal/testkit"
	voteservice "github.com/smallbiznis/inspira/internal/vote/service"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	env    *testkit.Env
	engine *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := testkit.NewEnv(t)
	executor := approvalservice.NewExecutor(approvalservice.Params{
		DB:         env.DB,
		Log:        env.Log,
		GenID:      env.Node,
		Repo:       env.AppRepo,
		GroupRepo:  env.GroupRepo,
		Dispatcher: env.Dispatcher,
		Clock:      env.Clock,
	})
	limiter, err := ratelimit.NewWriteLimiter(ratelimit.WriteLimiterParams{Config: config.Config{}})
	require.NoError(t, err)

	engine := NewEngine(observability.Config{}, nil)
	srv := NewServer(ServerParams{
		Gin:     engine,
		Authsvc: env.Auth,
		GroupSvc: env.Groups,
		AppSvc: appservice.NewService(appservice.Params{
			DB:         env.DB,
			Log:        env.Log,
			GenID:      env.Node,
			Repo:       env.AppRepo,
			GroupRepo:  env.GroupRepo,
			VoteRepo:   env.VoteRepo,
			Dispatcher: env.Dispatcher,
			Authz:      env.Authz,
			Profiles:   env.Auth,
			Policy:     env.Policy,
			Clock:      env.Clock,
		}),
		VoteSvc: voteservice.NewService(voteservice.Params{
			DB:       env.DB,
			Log:      env.Log,
			GenID:    env.Node,
			Repo:     env.VoteRepo,
			AppRepo:  env.AppRepo,
			Authz:    env.Authz,
			Executor: executor,
			Clock:    env.Clock,
		}),
		Sweeper: expiryservice.NewSweeper(expiryservice.Params{
			DB:         env.DB,
			Log:        env.Log,
			Repo:       env.AppRepo,
			GroupRepo:  env.GroupRepo,
			VoteRepo:   env.VoteRepo,
			Dispatcher: env.Dispatcher,
			Options:    expiryservice.Options{BatchSize: 10, PurgeVotes: true},
		}),
		Clock:        env.Clock,
		WriteLimiter: limiter,
	})
	srv.RegisterAPIRoutes()

	return &testServer{env: env, engine: engine}
}

func (ts *testServer) token(t *testing.T, userID snowflake.ID) string {
	t.Helper()
	token, err := ts.env.Auth.IssueSession(context.Background(), userID, 24*time.Hour)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	var payload map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload), w.Body.String())
	}
	return w, payload
}

func errorOf(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	errObj, ok := payload["error"].(map[string]any)
	require.True(t, ok, "expected error payload, got %v", payload)
	return errObj
}

func TestAPIRequiresBearerToken(t *testing.T) {
	ts := newTestServer(t)

	w, payload := ts.do(t, http.MethodPost, "/api/submit-vote", "", `{"application_id":"1","vote":true}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "unauthorized", errorOf(t, payload)["type"])

	w, _ = ts.do(t, http.MethodPost, "/api/apply-to-group", "not-a-session", `{"group_id":"1","message":"hi"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t)

	w, payload := ts.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", payload["status"])
}

func TestApplyAndVoteOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	env := ts.env

	creator := env.User(t, "creator")
	alice := env.User(t, "alice")
	applicant := env.User(t, "applicant")
	outsider := env.User(t, "outsider")
	group := env.Group(t, creator, "Poets", false, alice)

	w, payload := ts.do(t, http.MethodPost, "/api/apply-to-group", ts.token(t, applicant),
		`{"group_id":"`+group.ID.String()+`","message":"I write haiku"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, true, payload["success"])
	application := payload["application"].(map[string]any)
	appID := application["id"].(string)
	require.EqualValues(t, 1, application["votes_needed"])

	w, payload = ts.do(t, http.MethodPost, "/api/apply-to-group", ts.token(t, applicant),
		`{"group_id":"`+group.ID.String()+`","message":"again"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "duplicate_application", errorOf(t, payload)["type"])

	w, payload = ts.do(t, http.MethodPost, "/api/submit-vote", ts.token(t, alice),
		`{"application_id":"`+appID+`","vote":"yes"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "validation_error", errorOf(t, payload)["type"])

	w, _ = ts.do(t, http.MethodPost, "/api/submit-vote", ts.token(t, alice),
		`{"application_id":"`+appID+`"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, payload = ts.do(t, http.MethodPost, "/api/submit-vote", ts.token(t, outsider),
		`{"application_id":"`+appID+`","vote":true}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "Only group members can vote", errorOf(t, payload)["message"])

	w, payload = ts.do(t, http.MethodPost, "/api/submit-vote", ts.token(t, alice),
		`{"application_id":"`+appID+`","vote":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "reject", payload["vote_type"])
	require.Equal(t, false, payload["application_approved"])
	require.EqualValues(t, 0, payload["current_votes"])
	require.Equal(t, "Rejected", payload["message"])

	w, payload = ts.do(t, http.MethodPost, "/api/submit-vote", ts.token(t, alice),
		`{"application_id":"`+appID+`","vote":true}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	errObj := errorOf(t, payload)
	require.Equal(t, "already_voted", errObj["type"])
	require.Equal(t, "reject", errObj["meta"].(map[string]any)["existing_vote"])

	w, payload = ts.do(t, http.MethodPost, "/api/submit-vote", ts.token(t, creator),
		`{"application_id":"`+appID+`","vote":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, true, payload["success"])
	require.Equal(t, true, payload["application_approved"])
	require.EqualValues(t, 1, payload["current_votes"])
	require.EqualValues(t, 1, env.MembershipRows(t, group.ID, applicant))
	require.Equal(t, 3, env.MemberCount(t, group.ID))

	w, payload = ts.do(t, http.MethodPost, "/api/submit-vote", ts.token(t, creator),
		`{"application_id":"`+appID+`","vote":true}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "application_unavailable", errorOf(t, payload)["type"])
}

func TestApplyToUnknownGroupIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	applicant := ts.env.User(t, "applicant")

	w, payload := ts.do(t, http.MethodPost, "/api/apply-to-group", ts.token(t, applicant),
		`{"group_id":"12345","message":"hello"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "not_found", errorOf(t, payload)["type"])

	w, _ = ts.do(t, http.MethodPost, "/api/apply-to-group", ts.token(t, applicant), `{"message":"hello"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCleanupExpiredApplications(t *testing.T) {
	ts := newTestServer(t)
	env := ts.env

	creator := env.User(t, "creator")
	applicant := env.User(t, "applicant")
	group := env.Group(t, creator, "Poets", true)
	app := env.PendingApplication(t, group.ID, applicant, 1, 0)

	env.Clock.Advance(40 * 24 * time.Hour)
	token := ts.token(t, creator)

	w, payload := ts.do(t, http.MethodPost, "/api/cleanup-expired-applications", token, `{}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, true, payload["success"])
	require.EqualValues(t, 1, payload["expired_count"])
	require.Equal(t, "Successfully processed 1 expired applications", payload["message"])
	expired := payload["expired_applications"].([]any)
	require.Len(t, expired, 1)
	row := expired[0].(map[string]any)
	require.Equal(t, app.ID.String(), row["id"])
	require.Equal(t, "Poets", row["group_name"])

	w, payload = ts.do(t, http.MethodPost, "/api/cleanup-expired-applications", token, `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 0, payload["expired_count"])
	require.Equal(t, "No expired applications found", payload["message"])
	require.Empty(t, payload["expired_applications"])
}

func TestGroupMembershipRoutes(t *testing.T) {
	ts := newTestServer(t)
	env := ts.env

	creator := env.User(t, "creator")
	bob := env.User(t, "bob")

	w, payload := ts.do(t, http.MethodPost, "/api/groups", ts.token(t, creator),
		`{"name":"Night Owls","description":"late writers"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	groupID := payload["id"].(string)
	require.EqualValues(t, 1, payload["member_count"])

	w, payload = ts.do(t, http.MethodPost, "/api/groups/"+groupID+"/join", ts.token(t, bob), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, true, payload["success"])

	w, payload = ts.do(t, http.MethodPost, "/api/groups/"+groupID+"/join", ts.token(t, bob), "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "already_member", errorOf(t, payload)["type"])

	w, payload = ts.do(t, http.MethodPost, "/api/groups/"+groupID+"/leave", ts.token(t, creator), "")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "conflict", errorOf(t, payload)["type"])

	w, _ = ts.do(t, http.MethodPost, "/api/groups/"+groupID+"/leave", ts.token(t, bob), "")
	require.Equal(t, http.StatusOK, w.Code)

	w, payload = ts.do(t, http.MethodGet, "/api/groups/"+groupID, ts.token(t, bob), "")
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, payload["member_count"])

	w, _ = ts.do(t, http.MethodGet, "/api/groups/not-an-id", ts.token(t, bob), "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestJoinPrivateGroupConflicts(t *testing.T) {
	ts := newTestServer(t)
	env := ts.env

	creator := env.User(t, "creator")
	outsider := env.User(t, "outsider")
	group := env.Group(t, creator, "Secret", true)

	w, payload := ts.do(t, http.MethodPost, "/api/groups/"+group.ID.String()+"/join", ts.token(t, outsider), "")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "This group is private. Submit an application to join", errorOf(t, payload)["message"])
}

func TestPendingApplicationsVisibleToMembersOnly(t *testing.T) {
	ts := newTestServer(t)
	env := ts.env

	creator := env.User(t, "creator")
	applicant := env.User(t, "applicant")
	outsider := env.User(t, "outsider")
	group := env.Group(t, creator, "Poets", true)
	app := env.PendingApplication(t, group.ID, applicant, 1, 0)

	path := "/api/groups/" + group.ID.String() + "/applications"
	w, payload := ts.do(t, http.MethodGet, path, ts.token(t, creator), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := payload["data"].([]any)
	require.Len(t, data, 1)
	require.Equal(t, app.ID.String(), data[0].(map[string]any)["id"])

	w, _ = ts.do(t, http.MethodGet, path, ts.token(t, outsider), "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w, _ = ts.do(t, http.MethodGet, path+"?page_token=%25%25", ts.token(t, creator), "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, payload = ts.do(t, http.MethodGet, "/api/applications/"+app.ID.String(), ts.token(t, applicant), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "Poets", payload["group_name"])
}

func TestMapErrorFallsBackToInternal(t *testing.T) {
	status, payload := mapError(context.DeadlineExceeded)
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "internal server error", payload.Message)

	errType, code := classifyErrorForLog(ErrUnauthorized)
	require.Equal(t, "unauthorized", errType)
	require.Equal(t, "unauthorized", code)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", bearerToken("Bearer abc"))
	require.Equal(t, "abc", bearerToken("bearer  abc "))
	require.Empty(t, bearerToken("Basic abc"))
	require.Empty(t, bearerToken("Bearer"))
}
