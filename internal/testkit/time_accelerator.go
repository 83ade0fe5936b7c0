package testkit

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	appdomain "github.com/smallbiznis/inspira/internal/application/domain"
	"gorm.io/gorm"
)

// TimeAccelerator moves application deadlines so expiry can be exercised
// without advancing the clock by a month.
type TimeAccelerator struct {
	db *gorm.DB
}

func NewTimeAccelerator(db *gorm.DB) *TimeAccelerator {
	return &TimeAccelerator{db: db}
}

// ExpireApplication moves expires_at of a pending application to just before now.
func (ta *TimeAccelerator) ExpireApplication(ctx context.Context, applicationID snowflake.ID, now time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE group_applications
		 SET expires_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		now.Add(-1*time.Minute),
		now,
		applicationID,
		appdomain.StatusPending,
	).Error
}

// ExpireAllPending does the same for every pending application.
func (ta *TimeAccelerator) ExpireAllPending(ctx context.Context, now time.Time) (int64, error) {
	result := ta.db.WithContext(ctx).Exec(
		`UPDATE group_applications
		 SET expires_at = ?, updated_at = ?
		 WHERE status = ? AND expires_at >= ?`,
		now.Add(-1*time.Minute),
		now,
		appdomain.StatusPending,
		now,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
