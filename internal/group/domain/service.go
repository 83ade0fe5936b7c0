package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, creatorID snowflake.ID, req CreateGroupRequest) (*Group, error)
	Get(ctx context.Context, groupID snowflake.ID) (*Group, error)
	Join(ctx context.Context, groupID, userID snowflake.ID) error
	Leave(ctx context.Context, groupID, userID snowflake.ID) error
	// MemberRole returns the caller's role in the group, or "" for non-members.
	MemberRole(ctx context.Context, groupID, userID snowflake.ID) (string, error)
	ReconcileMemberCounts(ctx context.Context, limit int) (int, error)
}

type CreateGroupRequest struct {
	Name        string
	Description string
	IsPrivate   bool
	MaxMembers  int
}

var (
	ErrInvalidGroup       = errors.New("invalid_group")
	ErrInvalidUser        = errors.New("invalid_user")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidMaxMembers  = errors.New("invalid_max_members")
	ErrGroupNotFound      = errors.New("group_not_found")
	ErrAlreadyMember      = errors.New("already_member")
	ErrNotMember          = errors.New("not_member")
	ErrPrivateGroup       = errors.New("private_group")
	ErrGroupFull          = errors.New("group_full")
	ErrCreatorCannotLeave = errors.New("creator_cannot_leave")
)
