// Package domain contains the expiry sweeper contract.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// LockKey serializes sweeps across replicas when Redis is configured.
const LockKey = "inspira:expiry:sweep"

type Sweeper interface {
	// Sweep expires every pending application whose expires_at is before now.
	Sweep(ctx context.Context, now time.Time) (*Result, error)
}

type ExpiredApplication struct {
	ID          snowflake.ID `json:"id"`
	GroupID     snowflake.ID `json:"group_id"`
	GroupName   string       `json:"group_name"`
	ApplicantID snowflake.ID `json:"applicant_id"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

type Result struct {
	ExpiredCount int                  `json:"expired_count"`
	Expired      []ExpiredApplication `json:"expired_applications"`
	// Skipped is set when another replica holds the sweep lock.
	Skipped             bool `json:"skipped,omitempty"`
	NotificationsFailed int  `json:"-"`
}
