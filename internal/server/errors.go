package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	appdomain "github.com/smallbiznis/inspira/internal/application/domain"
	authdomain "github.com/smallbiznis/inspira/internal/auth/domain"
	"github.com/smallbiznis/inspira/internal/authorization"
	groupdomain "github.com/smallbiznis/inspira/internal/group/domain"
	"github.com/smallbiznis/inspira/internal/ratelimit"
	votedomain "github.com/smallbiznis/inspira/internal/vote/domain"
	"github.com/smallbiznis/inspira/pkg/db/pagination"
)

type errorPayload struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return internalError()
	}

	var voted *votedomain.AlreadyVotedError
	if errors.As(err, &voted) && voted.VoteType != "" {
		return http.StatusBadRequest, errorPayload{
			Type:    "already_voted",
			Message: alreadyVotedMessage(voted.VoteType),
			Meta:    map[string]any{"existing_vote": string(voted.VoteType)},
		}
	}

	if field, ok := validationField(err); ok {
		payload := errorPayload{
			Type:    "validation_error",
			Message: validationMessage(err),
		}
		if field != "" {
			payload.Meta = map[string]any{"field": field}
		}
		return http.StatusBadRequest, payload
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionNotFound),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "Unauthorized access",
		}
	case errors.Is(err, groupdomain.ErrAlreadyMember):
		return http.StatusBadRequest, errorPayload{
			Type:    "already_member",
			Message: "You are already a member of this group",
		}
	case errors.Is(err, appdomain.ErrDuplicateApplication):
		return http.StatusBadRequest, errorPayload{
			Type:    "duplicate_application",
			Message: "You already have a pending application",
		}
	case errors.Is(err, votedomain.ErrAlreadyVoted):
		return http.StatusBadRequest, errorPayload{
			Type:    "already_voted",
			Message: "You have already voted. You cannot vote again or change your vote",
		}
	case errors.Is(err, votedomain.ErrNotAuthorized):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "Only group members can vote",
		}
	case errors.Is(err, appdomain.ErrNotAuthorized),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "You do not have access to this resource",
		}
	case errors.Is(err, groupdomain.ErrGroupNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "Group does not exist",
		}
	case errors.Is(err, appdomain.ErrApplicationNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "Application does not exist",
		}
	case errors.Is(err, votedomain.ErrApplicationUnavailable):
		return http.StatusNotFound, errorPayload{
			Type:    "application_unavailable",
			Message: "Application does not exist, has been processed, or has expired",
		}
	case errors.Is(err, groupdomain.ErrPrivateGroup):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "This group is private. Submit an application to join",
		}
	case errors.Is(err, groupdomain.ErrGroupFull):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "This group has reached its member limit",
		}
	case errors.Is(err, groupdomain.ErrCreatorCannotLeave):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "The group creator cannot leave the group",
		}
	case errors.Is(err, groupdomain.ErrNotMember):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "You are not a member of this group",
		}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "Too many requests. Please try again later",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return internalError()
	}
}

func internalError() (int, errorPayload) {
	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func alreadyVotedMessage(voteType votedomain.VoteType) string {
	verb := "to reject"
	if voteType == votedomain.VoteApprove {
		verb = "to approve"
	}
	return "You have already voted " + verb + ". You cannot vote again or change your vote"
}

// validationField reports whether err is an input error and which field it concerns.
func validationField(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, appdomain.ErrInvalidRequest),
		errors.Is(err, votedomain.ErrInvalidRequest),
		errors.Is(err, groupdomain.ErrInvalidGroup),
		errors.Is(err, groupdomain.ErrInvalidUser):
		return "", true
	case errors.Is(err, appdomain.ErrInvalidMessage):
		return "message", true
	case errors.Is(err, groupdomain.ErrInvalidName):
		return "name", true
	case errors.Is(err, groupdomain.ErrInvalidMaxMembers):
		return "max_members", true
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return "page_token", true
	default:
		return "", false
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, appdomain.ErrInvalidMessage):
		return "Application message must be between 1 and 2000 characters"
	case errors.Is(err, groupdomain.ErrInvalidName):
		return "Group name is empty or too long"
	case errors.Is(err, groupdomain.ErrInvalidMaxMembers):
		return "Member limit must not be negative"
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return "Invalid page token"
	default:
		return "Missing required parameters"
	}
}

// classifyErrorForLog feeds the request logger's error_type and error_code fields.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	return payload.Type, err.Error()
}
