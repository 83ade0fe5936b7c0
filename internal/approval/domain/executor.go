// Package domain contains the approval executor contract.
package domain

import (
	"context"

	appdomain "github.com/smallbiznis/inspira/internal/application/domain"
)

// Executor turns an application that reached quorum into a membership.
// Concurrent calls for the same application admit the applicant once.
type Executor interface {
	Approve(ctx context.Context, app appdomain.Application) (*Result, error)
}

type Result struct {
	// Approved is true only for the caller whose status transition won.
	Approved bool
	// AlreadyMember reports that the applicant joined by another path first.
	AlreadyMember bool
	GroupName     string
}
