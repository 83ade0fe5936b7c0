package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Insert(ctx context.Context, vote Vote) error
	FindByApplicationAndVoter(ctx context.Context, applicationID, voterID snowflake.ID) (*Vote, error)
	// FindByVoter returns the voter's votes among applicationIDs keyed by application.
	FindByVoter(ctx context.Context, voterID snowflake.ID, applicationIDs []snowflake.ID) (map[snowflake.ID]VoteType, error)
	DeleteByApplicationIDs(ctx context.Context, applicationIDs []snowflake.ID) (int64, error)
}
