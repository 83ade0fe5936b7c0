package authorization

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

const (
	ActorSystem = "system"

	RoleSystem = "system"
)

type Service interface {
	// Authorize resolves the actor's role in the group and checks the capability.
	// Actors are "system" or "user:<id>".
	Authorize(ctx context.Context, actor string, groupID snowflake.ID, object string, action string) error
	// AuthorizeRole checks a capability for an already resolved role.
	AuthorizeRole(ctx context.Context, role string, object string, action string) error
}

// UserActor formats a user id as an actor string.
func UserActor(userID snowflake.ID) string {
	return "user:" + userID.String()
}
