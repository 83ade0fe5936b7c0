package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// userIDFromContext returns the authenticated caller set by AuthRequired.
func userIDFromContext(c *gin.Context) (snowflake.ID, error) {
	raw := c.GetString(contextUserIDKey)
	if raw == "" {
		return 0, ErrUnauthorized
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, ErrUnauthorized
	}
	return id, nil
}
