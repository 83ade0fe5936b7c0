// Package domain contains the application vote model and ledger contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type VoteType string

const (
	VoteApprove VoteType = "approve"
	VoteReject  VoteType = "reject"
)

// Vote is immutable once written. There is no update path.
type Vote struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	ApplicationID snowflake.ID `gorm:"column:application_id;not null;uniqueIndex:ux_application_votes_application_voter,priority:1" json:"application_id"`
	VoterID       snowflake.ID `gorm:"column:voter_id;not null;uniqueIndex:ux_application_votes_application_voter,priority:2;index" json:"voter_id"`
	VoteType      VoteType     `gorm:"column:vote_type;type:text;not null" json:"vote_type"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Vote) TableName() string { return "application_votes" }

// TypeFor maps the boolean ballot to its vote type.
func TypeFor(approve bool) VoteType {
	if approve {
		return VoteApprove
	}
	return VoteReject
}
