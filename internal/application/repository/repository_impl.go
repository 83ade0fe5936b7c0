package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/inspira/internal/application/domain"
	"github.com/smallbiznis/inspira/pkg/db/pagination"
	"gorm.io/gorm"
)

const applicationColumns = `id, group_id, applicant_id, message, status, votes_needed, votes_received, created_at, expires_at, updated_at`

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, app domain.Application) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO group_applications (`+applicationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.ID,
		app.GroupID,
		app.ApplicantID,
		app.Message,
		app.Status,
		app.VotesNeeded,
		app.VotesReceived,
		app.CreatedAt,
		app.ExpiresAt,
		app.UpdatedAt,
	).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Application, error) {
	var app domain.Application
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+applicationColumns+` FROM group_applications WHERE id = ?`,
		id,
	).Scan(&app).Error
	if err != nil {
		return nil, err
	}
	if app.ID == 0 {
		return nil, nil
	}
	return &app, nil
}

func (r *repository) FindOpenPending(ctx context.Context, groupID, applicantID snowflake.ID, now time.Time) (*domain.Application, error) {
	var app domain.Application
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+applicationColumns+`
		 FROM group_applications
		 WHERE group_id = ? AND applicant_id = ? AND status = ? AND expires_at >= ?
		 LIMIT 1`,
		groupID,
		applicantID,
		domain.StatusPending,
		now,
	).Scan(&app).Error
	if err != nil {
		return nil, err
	}
	if app.ID == 0 {
		return nil, nil
	}
	return &app, nil
}

func (r *repository) ListOpenPending(ctx context.Context, groupID snowflake.ID, now time.Time, cursor *pagination.Cursor, limit int) ([]domain.Application, error) {
	stmt := r.db.WithContext(ctx).
		Model(&domain.Application{}).
		Where("group_id = ? AND status = ? AND expires_at >= ?", groupID, domain.StatusPending, now)
	if cursor != nil {
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at > ? OR (created_at = ? AND id > ?))", cursor.CreatedAt, cursor.CreatedAt, cursorID)
	}

	var apps []domain.Application
	err := stmt.
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *repository) ListLagging(ctx context.Context, groupID, applicantID snowflake.ID, now time.Time) ([]domain.Application, error) {
	var apps []domain.Application
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+applicationColumns+`
		 FROM group_applications
		 WHERE group_id = ? AND applicant_id = ? AND status = ? AND expires_at < ?`,
		groupID,
		applicantID,
		domain.StatusPending,
		now,
	).Scan(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *repository) AddVote(ctx context.Context, id snowflake.ID, delta int, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE group_applications
		 SET votes_received = votes_received + ?, updated_at = ?
		 WHERE id = ? AND status = ? AND expires_at >= ?`,
		delta,
		now,
		id,
		domain.StatusPending,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkApproved(ctx context.Context, id snowflake.ID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE group_applications
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND expires_at >= ? AND votes_received >= votes_needed`,
		domain.StatusApproved,
		now,
		id,
		domain.StatusPending,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkExpired(ctx context.Context, id snowflake.ID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE group_applications
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND expires_at < ?`,
		domain.StatusExpired,
		now,
		id,
		domain.StatusPending,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListStale(ctx context.Context, now time.Time, limit int) ([]domain.Application, error) {
	var apps []domain.Application
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+applicationColumns+`
		 FROM group_applications
		 WHERE status = ? AND expires_at < ?
		 ORDER BY expires_at ASC, id ASC
		 LIMIT ?`,
		domain.StatusPending,
		now,
		limit,
	).Scan(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *repository) ListStalled(ctx context.Context, now time.Time, afterID snowflake.ID, limit int) ([]domain.Application, error) {
	var apps []domain.Application
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+applicationColumns+`
		 FROM group_applications
		 WHERE status = ? AND expires_at >= ? AND votes_received >= votes_needed AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		domain.StatusPending,
		now,
		afterID,
		limit,
	).Scan(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}
