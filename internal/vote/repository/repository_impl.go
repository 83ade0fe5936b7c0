package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/inspira/internal/vote/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, vote domain.Vote) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO application_votes (id, application_id, voter_id, vote_type, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		vote.ID,
		vote.ApplicationID,
		vote.VoterID,
		vote.VoteType,
		vote.CreatedAt,
	).Error
}

func (r *repository) FindByApplicationAndVoter(ctx context.Context, applicationID, voterID snowflake.ID) (*domain.Vote, error) {
	var vote domain.Vote
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, application_id, voter_id, vote_type, created_at
		 FROM application_votes
		 WHERE application_id = ? AND voter_id = ?
		 LIMIT 1`,
		applicationID,
		voterID,
	).Scan(&vote).Error
	if err != nil {
		return nil, err
	}
	if vote.ID == 0 {
		return nil, nil
	}
	return &vote, nil
}

func (r *repository) FindByVoter(ctx context.Context, voterID snowflake.ID, applicationIDs []snowflake.ID) (map[snowflake.ID]domain.VoteType, error) {
	result := make(map[snowflake.ID]domain.VoteType, len(applicationIDs))
	if voterID == 0 || len(applicationIDs) == 0 {
		return result, nil
	}

	var rows []domain.Vote
	err := r.db.WithContext(ctx).
		Model(&domain.Vote{}).
		Where("voter_id = ? AND application_id IN ?", voterID, applicationIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ApplicationID] = row.VoteType
	}
	return result, nil
}

func (r *repository) DeleteByApplicationIDs(ctx context.Context, applicationIDs []snowflake.ID) (int64, error) {
	if len(applicationIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Exec(
		`DELETE FROM application_votes WHERE application_id IN ?`,
		applicationIDs,
	)
	return res.RowsAffected, res.Error
}
