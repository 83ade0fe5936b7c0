package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error)
}

type SubmitRequest struct {
	ApplicationID snowflake.ID
	VoterID       snowflake.ID
	Approve       bool
}

type SubmitResponse struct {
	VoteSubmitted       bool      `json:"vote_submitted"`
	VoteType            VoteType  `json:"vote_type"`
	ApplicationApproved bool      `json:"application_approved"`
	CurrentVotes        int       `json:"current_votes"`
	VotesNeeded         int       `json:"votes_needed"`
	DaysRemaining       int       `json:"days_remaining"`
	ExpiresAt           time.Time `json:"expires_at"`
	Message             string    `json:"message"`
}

var (
	ErrInvalidRequest         = errors.New("invalid_request")
	ErrAlreadyVoted           = errors.New("already_voted")
	ErrApplicationUnavailable = errors.New("application_unavailable")
	ErrNotAuthorized          = errors.New("not_authorized")
)

// AlreadyVotedError carries the ballot the voter cast earlier.
type AlreadyVotedError struct {
	VoteType VoteType
}

func (e *AlreadyVotedError) Error() string {
	if e.VoteType == "" {
		return ErrAlreadyVoted.Error()
	}
	return ErrAlreadyVoted.Error() + ": " + string(e.VoteType)
}

func (e *AlreadyVotedError) Is(target error) bool {
	return target == ErrAlreadyVoted
}
