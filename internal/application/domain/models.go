// Package domain contains the group application model and admission contract.
package domain

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusExpired  Status = "expired"
)

// Application is a request to join a private group. At most one pending row
// exists per (group, applicant); the partial unique index enforces it in the store.
type Application struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	GroupID       snowflake.ID `gorm:"column:group_id;not null;index;uniqueIndex:ux_group_applications_pending,priority:1,where:status = 'pending'" json:"group_id"`
	ApplicantID   snowflake.ID `gorm:"column:applicant_id;not null;index;uniqueIndex:ux_group_applications_pending,priority:2,where:status = 'pending'" json:"applicant_id"`
	Message       string       `gorm:"type:text;not null" json:"message"`
	Status        Status       `gorm:"type:text;not null;index:ix_group_applications_status_expires,priority:1" json:"status"`
	VotesNeeded   int          `gorm:"column:votes_needed;not null" json:"votes_needed"`
	VotesReceived int          `gorm:"column:votes_received;not null;default:0" json:"votes_received"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	ExpiresAt     time.Time    `gorm:"column:expires_at;not null;index:ix_group_applications_status_expires,priority:2" json:"expires_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Application) TableName() string { return "group_applications" }

// Open reports whether the application still accepts votes at now.
func (a Application) Open(now time.Time) bool {
	return a.Status == StatusPending && !a.ExpiresAt.Before(now)
}

// QuorumReached is the approval predicate. It uses >= so that raised
// thresholds or late votes never strand an application.
func (a Application) QuorumReached() bool {
	return a.VotesReceived >= a.VotesNeeded
}

// DaysRemaining rounds the time left up to whole days, never below zero.
func DaysRemaining(expiresAt, now time.Time) int {
	left := expiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}
