package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/inspira/internal/observability/context"
)

const (
	headerAuthorization = "Authorization"
	contextUserIDKey    = "user_id"
)

// AuthRequired resolves the bearer token to a session and records the caller.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader(headerAuthorization))
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		session, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		userID := session.UserID.String()
		c.Set(contextUserIDKey, userID)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), string(ActorUser), userID))
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}
