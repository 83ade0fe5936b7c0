package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateGroup(ctx context.Context, group Group) error
	FindByID(ctx context.Context, id snowflake.ID) (*Group, error)

	// AddMember inserts the membership unless one already exists and reports
	// whether a row was written.
	AddMember(ctx context.Context, member Member) (bool, error)
	RemoveMember(ctx context.Context, groupID, userID snowflake.ID) (bool, error)
	FindMember(ctx context.Context, groupID, userID snowflake.ID) (*Member, error)
	ListMemberIDs(ctx context.Context, groupID snowflake.ID) ([]snowflake.ID, error)

	IncrementMemberCount(ctx context.Context, groupID snowflake.ID, now time.Time) error
	// IncrementMemberCountWithinCap is IncrementMemberCount guarded by max_members.
	IncrementMemberCountWithinCap(ctx context.Context, groupID snowflake.ID, now time.Time) (bool, error)
	DecrementMemberCount(ctx context.Context, groupID snowflake.ID, now time.Time) error

	ListDriftedGroupIDs(ctx context.Context, limit int) ([]snowflake.ID, error)
	RecountMembers(ctx context.Context, groupID snowflake.ID, now time.Time) error
}
