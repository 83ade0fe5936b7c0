package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/inspira/internal/group/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
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

// groups is a reserved word on MySQL 8, so the table is always quoted by the dialect.
func (r *repository) groups() string {
	return r.db.Statement.Quote(domain.Group{}.TableName())
}

func (r *repository) CreateGroup(ctx context.Context, group domain.Group) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO `+r.groups()+` (id, name, slug, description, is_private, member_count, max_members, creator_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		group.ID,
		group.Name,
		group.Slug,
		group.Description,
		group.IsPrivate,
		group.MemberCount,
		group.MaxMembers,
		group.CreatorID,
		group.CreatedAt,
		group.UpdatedAt,
	).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Group, error) {
	var group domain.Group
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, slug, description, is_private, member_count, max_members, creator_id, created_at, updated_at
		 FROM `+r.groups()+` WHERE id = ?`,
		id,
	).Scan(&group).Error
	if err != nil {
		return nil, err
	}
	if group.ID == 0 {
		return nil, nil
	}
	return &group, nil
}

func (r *repository) AddMember(ctx context.Context, member domain.Member) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&member)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) RemoveMember(ctx context.Context, groupID, userID snowflake.ID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID,
		userID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindMember(ctx context.Context, groupID, userID snowflake.ID) (*domain.Member, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, group_id, user_id, role, created_at
		 FROM group_members
		 WHERE group_id = ? AND user_id = ?
		 LIMIT 1`,
		groupID,
		userID,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repository) ListMemberIDs(ctx context.Context, groupID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := r.db.WithContext(ctx).Raw(
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY created_at ASC, id ASC`,
		groupID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) IncrementMemberCount(ctx context.Context, groupID snowflake.ID, now time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE `+r.groups()+` SET member_count = member_count + 1, updated_at = ? WHERE id = ?`,
		now,
		groupID,
	).Error
}

func (r *repository) IncrementMemberCountWithinCap(ctx context.Context, groupID snowflake.ID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE `+r.groups()+`
		 SET member_count = member_count + 1, updated_at = ?
		 WHERE id = ? AND (max_members = 0 OR member_count < max_members)`,
		now,
		groupID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) DecrementMemberCount(ctx context.Context, groupID snowflake.ID, now time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE `+r.groups()+`
		 SET member_count = CASE WHEN member_count > 0 THEN member_count - 1 ELSE 0 END, updated_at = ?
		 WHERE id = ?`,
		now,
		groupID,
	).Error
}

func (r *repository) ListDriftedGroupIDs(ctx context.Context, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := r.db.WithContext(ctx).Raw(
		`SELECT g.id FROM `+r.groups()+` g
		 WHERE g.member_count <> (SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id)
		 ORDER BY g.id ASC
		 LIMIT ?`,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) RecountMembers(ctx context.Context, groupID snowflake.ID, now time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE `+r.groups()+`
		 SET member_count = (SELECT COUNT(*) FROM group_members WHERE group_id = ?), updated_at = ?
		 WHERE id = ?`,
		groupID,
		now,
		groupID,
	).Error
}
