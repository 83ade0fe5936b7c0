package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/inspira/internal/auth/domain"
	"github.com/smallbiznis/inspira/internal/auth/repository"
	"github.com/smallbiznis/inspira/internal/clock"
	"github.com/smallbiznis/inspira/pkg/db"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (authdomain.Service, *clock.FakeClock) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&authdomain.User{}, &authdomain.Session{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repo, sessionRepo := repository.New(dbConn)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	return New(Params{
		Log:         zap.NewNop(),
		Repo:        repo,
		SessionRepo: sessionRepo,
		GenID:       node,
		Clock:       clk,
	}), clk
}

func TestAuthenticateIssuedSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, authdomain.CreateUserRequest{Username: "ada", Email: "Ada@example.com"})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	token, err := svc.IssueSession(ctx, user.ID, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}

	session, err := svc.Authenticate(ctx, "  "+token+" ")
	if err != nil {
		t.Fatalf("expected session, got %v", err)
	}
	if session.UserID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, session.UserID)
	}
	if session.SessionTokenHash == token {
		t.Fatal("expected token to be stored hashed")
	}
}

func TestAuthenticateExpiredSession(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	token, err := svc.IssueSession(ctx, 42, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	clk.Advance(2 * time.Hour)

	if _, err := svc.Authenticate(ctx, token); err != authdomain.ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestAuthenticateRevokedSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	token, err := svc.IssueSession(ctx, 42, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	if err := svc.RevokeSession(ctx, token); err != nil {
		t.Fatalf("failed to revoke: %v", err)
	}

	if _, err := svc.Authenticate(ctx, token); err != authdomain.ErrSessionRevoked {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestAuthenticateUnknownToken(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Authenticate(context.Background(), "nope"); err != authdomain.ErrInvalidSession {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), " "); err != authdomain.ErrInvalidSession {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestDisplayNameFallback(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, authdomain.CreateUserRequest{Username: "grace"})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if got := svc.DisplayName(ctx, user.ID); got != "grace" {
		t.Fatalf("expected grace, got %q", got)
	}
	if got := svc.DisplayName(ctx, 999); got != authdomain.FallbackDisplayName {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestRevokeSessionTwiceSucceeds(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	token, err := svc.IssueSession(ctx, 42, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	if err := svc.RevokeSession(ctx, token); err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	clk.Advance(time.Minute)
	if err := svc.RevokeSession(ctx, token); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if err := svc.RevokeSession(ctx, "never-issued"); err != authdomain.ErrInvalidSession {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}
