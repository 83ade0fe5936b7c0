package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/inspira/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository owns every statement against group_applications. Writes that
// decide an application's fate are compare-and-swap updates that re-check
// expires_at against the caller's now.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Insert(ctx context.Context, app Application) error
	FindByID(ctx context.Context, id snowflake.ID) (*Application, error)
	FindOpenPending(ctx context.Context, groupID, applicantID snowflake.ID, now time.Time) (*Application, error)
	ListOpenPending(ctx context.Context, groupID snowflake.ID, now time.Time, cursor *pagination.Cursor, limit int) ([]Application, error)

	// ListLagging returns the pair's pending rows that are already past
	// expires_at but have not been swept yet.
	ListLagging(ctx context.Context, groupID, applicantID snowflake.ID, now time.Time) ([]Application, error)
	// AddVote bumps votes_received by delta while the application is open.
	AddVote(ctx context.Context, id snowflake.ID, delta int, now time.Time) (bool, error)
	// MarkApproved moves an open application that has reached quorum to approved.
	MarkApproved(ctx context.Context, id snowflake.ID, now time.Time) (bool, error)
	// MarkExpired moves a pending application past its expiry to expired.
	MarkExpired(ctx context.Context, id snowflake.ID, now time.Time) (bool, error)
	ListStale(ctx context.Context, now time.Time, limit int) ([]Application, error)
	// ListStalled returns open applications that already have enough
	// approvals, ordered by id and starting after afterID.
	ListStalled(ctx context.Context, now time.Time, afterID snowflake.ID, limit int) ([]Application, error)
}
