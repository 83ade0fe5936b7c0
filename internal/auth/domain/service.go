package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// FallbackDisplayName is used in notification texts when a user has no profile.
const FallbackDisplayName = "A user"

type Service interface {
	// Authenticate resolves a raw bearer token to its live session.
	Authenticate(ctx context.Context, rawToken string) (*Session, error)
	IssueSession(ctx context.Context, userID snowflake.ID, ttl time.Duration) (string, error)
	RevokeSession(ctx context.Context, rawToken string) error
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	DisplayName(ctx context.Context, userID snowflake.ID) string
}

type CreateUserRequest struct {
	Username string
	Email    string
}
