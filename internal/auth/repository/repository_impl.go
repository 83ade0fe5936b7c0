package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/inspira/internal/auth/domain"
	"gorm.io/gorm"
)

type userRepo struct {
	db *gorm.DB
}

type sessionRepo struct {
	db *gorm.DB
}

func New(db *gorm.DB) (domain.Repository, domain.SessionRepository) {
	return &userRepo{db: db}, &sessionRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepo) FindByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, username, email, created_at, updated_at FROM users WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, domain.ErrUserNotFound
	}
	return &user, nil
}

func (r *sessionRepo) CreateSession(ctx context.Context, session *domain.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepo) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var session domain.Session
	err := r.db.WithContext(ctx).Where("session_token_hash = ?", tokenHash).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateLastSeen only moves last_seen_at forward; concurrent requests on the
// same session never rewind it.
func (r *sessionRepo) UpdateLastSeen(ctx context.Context, sessionID snowflake.ID, lastSeen time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE sessions SET last_seen_at = ? WHERE id = ? AND last_seen_at < ?`,
		lastSeen, sessionID, lastSeen,
	).Error
}

// RevokeSession keeps the first revocation time when called twice.
func (r *sessionRepo) RevokeSession(ctx context.Context, sessionID snowflake.ID, revokedAt time.Time) error {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		revokedAt, sessionID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&domain.Session{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrSessionNotFound
		}
	}
	return nil
}
