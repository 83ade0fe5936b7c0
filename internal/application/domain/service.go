package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/inspira/pkg/db/pagination"
)

type Service interface {
	Apply(ctx context.Context, req ApplyRequest) (*ApplyResponse, error)
	Get(ctx context.Context, applicationID, viewerID snowflake.ID) (*ApplicationView, error)
	ListPending(ctx context.Context, req ListPendingRequest) (*ListPendingResponse, error)
}

// ProfileLookup resolves the name shown in notification texts.
type ProfileLookup interface {
	DisplayName(ctx context.Context, userID snowflake.ID) string
}

type ApplyRequest struct {
	GroupID     snowflake.ID
	ApplicantID snowflake.ID
	Message     string
}

type ApplyResponse struct {
	Application Application `json:"application"`
	Message     string      `json:"message"`
}

type ApplicationView struct {
	Application
	GroupName     string `json:"group_name"`
	ApplicantName string `json:"applicant_name"`
	DaysRemaining int    `json:"days_remaining"`
	MyVote        string `json:"my_vote,omitempty"`
}

type ListPendingRequest struct {
	GroupID  snowflake.ID
	ViewerID snowflake.ID
	Page     pagination.Pagination
}

type ListPendingResponse struct {
	pagination.PageInfo
	Applications []ApplicationView `json:"data"`
}

var (
	ErrInvalidRequest       = errors.New("invalid_request")
	ErrInvalidMessage       = errors.New("invalid_message")
	ErrDuplicateApplication = errors.New("duplicate_application")
	ErrApplicationNotFound  = errors.New("application_not_found")
	ErrNotAuthorized        = errors.New("not_authorized")
)
