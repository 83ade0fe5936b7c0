// Package domain contains the notification model and dispatcher contract.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeGroupApplication        Type = "group_application"
	TypeGroupApproval           Type = "group_approval"
	TypeGroupApplicationExpired Type = "group_application_expired"
	TypeLike                    Type = "like"
	TypeComment                 Type = "comment"
	TypeReply                   Type = "reply"
	TypeFollow                  Type = "follow"
)

// Valid reports whether t is one of the declared notification types.
func (t Type) Valid() bool {
	switch t {
	case TypeGroupApplication, TypeGroupApproval, TypeGroupApplicationExpired,
		TypeLike, TypeComment, TypeReply, TypeFollow:
		return true
	default:
		return false
	}
}

// Entity types referenced by RelatedEntityType.
const (
	EntityApplication = "application"
	EntityGroup       = "group"
	EntityNote        = "note"
	EntityComment     = "comment"
)

// Notification is a row in a user's notification inbox. A nil SenderID means
// the system sent it.
type Notification struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	RecipientID       snowflake.ID      `gorm:"column:recipient_id;not null;index:ix_notifications_recipient,priority:1" json:"recipient_id"`
	SenderID          *snowflake.ID     `gorm:"column:sender_id" json:"sender_id,omitempty"`
	Type              Type              `gorm:"type:text;not null" json:"type"`
	Title             string            `gorm:"type:text;not null" json:"title"`
	Message           string            `gorm:"type:text;not null" json:"message"`
	RelatedEntityType string            `gorm:"column:related_entity_type;type:text" json:"related_entity_type,omitempty"`
	RelatedEntityID   *snowflake.ID     `gorm:"column:related_entity_id" json:"related_entity_id,omitempty"`
	Metadata          datatypes.JSONMap `gorm:"not null" json:"metadata,omitempty"`
	IsRead            bool              `gorm:"column:is_read;not null;default:false" json:"is_read"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index:ix_notifications_recipient,priority:2" json:"created_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

type RelatedEntity struct {
	Type string
	ID   snowflake.ID
}

// Payload is the content shared by every recipient of one dispatch.
type Payload struct {
	SenderID *snowflake.ID
	Type     Type
	Title    string
	Message  string
	Related  *RelatedEntity
	Metadata map[string]any
}

// ApplicationExpiredNotice tells an applicant their application lapsed
// without reaching quorum.
func ApplicationExpiredNotice(applicationID, groupID snowflake.ID, groupName string) Payload {
	return Payload{
		Type:  TypeGroupApplicationExpired,
		Title: "Application Expired",
		Message: fmt.Sprintf(
			"Unfortunately, your application to join group \"%s\" has expired. You can submit a new application.",
			groupName,
		),
		Related: &RelatedEntity{Type: EntityApplication, ID: applicationID},
		Metadata: map[string]any{
			"group_id": groupID.String(),
		},
	}
}
