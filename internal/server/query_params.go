package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func parseSnowflakeID(value string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, ErrInvalidRequest
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed <= 0 {
		return 0, ErrInvalidRequest
	}
	return parsed, nil
}

func pathID(c *gin.Context, notFound error) (snowflake.ID, error) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		return 0, notFound
	}
	return id, nil
}
