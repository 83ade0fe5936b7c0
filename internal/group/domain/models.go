// Package domain contains persistence models for groups and memberships.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleCreator = "creator"
	RoleMember  = "member"
)

// Group is a community of users. MemberCount mirrors the number of
// group_members rows and only ever changes through atomic SQL.
type Group struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	Slug        string       `gorm:"type:text;not null;index:ix_groups_slug" json:"slug"`
	Description string       `gorm:"type:text;not null;default:''" json:"description"`
	IsPrivate   bool         `gorm:"column:is_private;not null;default:false" json:"is_private"`
	MemberCount int          `gorm:"column:member_count;not null;default:0" json:"member_count"`
	MaxMembers  int          `gorm:"column:max_members;not null;default:0" json:"max_members"`
	CreatorID   snowflake.ID `gorm:"column:creator_id;not null;index" json:"creator_id"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Group) TableName() string { return "groups" }

// Full reports whether the group has reached its member cap.
func (g Group) Full() bool {
	return g.MaxMembers > 0 && g.MemberCount >= g.MaxMembers
}

// Member is a user's membership in a group.
type Member struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	GroupID   snowflake.ID `gorm:"not null;uniqueIndex:ux_group_members_group_user,priority:1" json:"group_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_group_members_group_user,priority:2" json:"user_id"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "group_members" }
