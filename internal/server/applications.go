package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	appdomain "github.com/smallbiznis/inspira/internal/application/domain"
	votedomain "github.com/smallbiznis/inspira/internal/vote/domain"
	"github.com/smallbiznis/inspira/pkg/db/pagination"
)

type applyToGroupRequest struct {
	GroupID string `json:"group_id"`
	Message string `json:"message"`
}

func (s *Server) ApplyToGroup(c *gin.Context) {
	userID, err := userIDFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req applyToGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	groupID, err := parseSnowflakeID(req.GroupID)
	if err != nil || strings.TrimSpace(req.Message) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.appSvc.Apply(c.Request.Context(), appdomain.ApplyRequest{
		GroupID:     groupID,
		ApplicantID: userID,
		Message:     req.Message,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"application": resp.Application,
		"message":     resp.Message,
	})
}

// vote is a pointer so that a missing field is distinguishable from false.
type submitVoteRequest struct {
	ApplicationID string `json:"application_id"`
	Vote          *bool  `json:"vote"`
}

type submitVoteResponse struct {
	Success bool `json:"success"`
	votedomain.SubmitResponse
}

func (s *Server) SubmitVote(c *gin.Context) {
	userID, err := userIDFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req submitVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	applicationID, err := parseSnowflakeID(req.ApplicationID)
	if err != nil || req.Vote == nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.voteSvc.Submit(c.Request.Context(), votedomain.SubmitRequest{
		ApplicationID: applicationID,
		VoterID:       userID,
		Approve:       *req.Vote,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, submitVoteResponse{Success: true, SubmitResponse: *resp})
}

type expiredApplicationResponse struct {
	ID        snowflake.ID `json:"id"`
	GroupName string       `json:"group_name"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type cleanupResponse struct {
	Success             bool                         `json:"success"`
	Message             string                       `json:"message"`
	ExpiredCount        int                          `json:"expired_count"`
	ExpiredApplications []expiredApplicationResponse `json:"expired_applications"`
	Skipped             bool                         `json:"skipped,omitempty"`
}

// CleanupExpiredApplications runs the expiry sweep on demand.
func (s *Server) CleanupExpiredApplications(c *gin.Context) {
	result, err := s.sweeper.Sweep(c.Request.Context(), s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := cleanupResponse{
		Success:             true,
		ExpiredCount:        result.ExpiredCount,
		ExpiredApplications: make([]expiredApplicationResponse, 0, len(result.Expired)),
		Skipped:             result.Skipped,
	}
	for _, expired := range result.Expired {
		resp.ExpiredApplications = append(resp.ExpiredApplications, expiredApplicationResponse{
			ID:        expired.ID,
			GroupName: expired.GroupName,
			ExpiresAt: expired.ExpiresAt,
		})
	}
	switch {
	case result.Skipped:
		resp.Message = "An expiry sweep is already in progress"
	case result.ExpiredCount == 0:
		resp.Message = "No expired applications found"
	default:
		resp.Message = fmt.Sprintf("Successfully processed %d expired applications", result.ExpiredCount)
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetApplication(c *gin.Context) {
	userID, err := userIDFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	applicationID, err := pathID(c, appdomain.ErrApplicationNotFound)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.appSvc.Get(c.Request.Context(), applicationID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) ListGroupApplications(c *gin.Context) {
	userID, err := userIDFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	groupID, err := pathID(c, groupNotFound)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.appSvc.ListPending(c.Request.Context(), appdomain.ListPendingRequest{
		GroupID:  groupID,
		ViewerID: userID,
		Page:     page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
