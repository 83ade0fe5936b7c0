package server

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	groupdomain "github.com/smallbiznis/inspira/internal/group/domain"
)

var groupNotFound = groupdomain.ErrGroupNotFound

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"is_private"`
	MaxMembers  int    `json:"max_members"`
}

func (s *Server) CreateGroup(c *gin.Context) {
	userID, err := userIDFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	group, err := s.groupSvc.Create(c.Request.Context(), userID, groupdomain.CreateGroupRequest{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		MaxMembers:  req.MaxMembers,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, group)
}

func (s *Server) GetGroup(c *gin.Context) {
	groupID, err := pathID(c, groupNotFound)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	group, err := s.groupSvc.Get(c.Request.Context(), groupID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, group)
}

func (s *Server) JoinGroup(c *gin.Context) {
	s.membershipAction(c, s.groupSvc.Join)
}

func (s *Server) LeaveGroup(c *gin.Context) {
	s.membershipAction(c, s.groupSvc.Leave)
}

func (s *Server) membershipAction(c *gin.Context, action func(ctx context.Context, groupID, userID snowflake.ID) error) {
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

	if err := action(c.Request.Context(), groupID, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
