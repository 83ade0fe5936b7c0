package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	appdomain "github.com/smallbiznis/inspira/internal/application/domain"
	approvaldomain "github.com/smallbiznis/inspira/internal/approval/domain"
	"github.com/smallbiznis/inspira/internal/authorization"
	"github.com/smallbiznis/inspira/internal/clock"
	"github.com/smallbiznis/inspira/internal/observability/metrics"
	"github.com/smallbiznis/inspira/internal/vote/domain"
	"github.com/smallbiznis/inspira/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	AppRepo  appdomain.Repository
	Authz    authorization.Service
	Executor approvaldomain.Executor
	Clock    clock.Clock
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	appRepo  appdomain.Repository
	authz    authorization.Service
	executor approvaldomain.Executor
	clock    clock.Clock
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("vote.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		appRepo:  p.AppRepo,
		authz:    p.Authz,
		executor: p.Executor,
		clock:    p.Clock,
		metrics:  p.Metrics,
	}
}

// Submit records one ballot and hands the application to the approval
// executor once it has enough approvals.
func (s *Service) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.SubmitResponse, error) {
	if req.ApplicationID == 0 || req.VoterID == 0 {
		return nil, domain.ErrInvalidRequest
	}

	now := s.clock.Now()
	app, err := s.appRepo.FindByID(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app == nil || !app.Open(now) {
		return nil, domain.ErrApplicationUnavailable
	}

	err = s.authz.Authorize(ctx, authorization.UserActor(req.VoterID), app.GroupID, authorization.ObjectApplication, authorization.ActionApplicationVote)
	if err != nil {
		if errors.Is(err, authorization.ErrForbidden) {
			return nil, domain.ErrNotAuthorized
		}
		return nil, err
	}

	existing, err := s.repo.FindByApplicationAndVoter(ctx, app.ID, req.VoterID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &domain.AlreadyVotedError{VoteType: existing.VoteType}
	}

	voteType := domain.TypeFor(req.Approve)
	delta := 0
	if req.Approve {
		delta = 1
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Insert(ctx, domain.Vote{
			ID:            s.genID.Generate(),
			ApplicationID: app.ID,
			VoterID:       req.VoterID,
			VoteType:      voteType,
			CreatedAt:     now,
		}); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyVoted
			}
			return err
		}

		ok, err := s.appRepo.WithTx(tx).AddVote(ctx, app.ID, delta, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrApplicationUnavailable
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyVoted) {
			return nil, s.alreadyVoted(ctx, app.ID, req.VoterID)
		}
		return nil, err
	}

	s.metrics.RecordVote(ctx, string(voteType))
	s.log.Info("vote recorded",
		zap.String("application_id", app.ID.String()),
		zap.String("vote_type", string(voteType)),
	)

	updated, err := s.appRepo.FindByID(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, domain.ErrApplicationUnavailable
	}

	approved := updated.Status == appdomain.StatusApproved
	if !approved && updated.QuorumReached() {
		result, err := s.executor.Approve(ctx, *updated)
		if err != nil {
			s.log.Error("approval failed after vote",
				zap.String("application_id", app.ID.String()),
				zap.Error(err),
			)
		} else if result.Approved {
			approved = true
		} else if current, err := s.appRepo.FindByID(ctx, app.ID); err == nil && current != nil {
			// A concurrent vote's executor won the transition.
			approved = current.Status == appdomain.StatusApproved
		}
	}

	message := "Rejected"
	if req.Approve {
		message = "Approved"
	}

	return &domain.SubmitResponse{
		VoteSubmitted:       true,
		VoteType:            voteType,
		ApplicationApproved: approved,
		CurrentVotes:        updated.VotesReceived,
		VotesNeeded:         updated.VotesNeeded,
		DaysRemaining:       appdomain.DaysRemaining(updated.ExpiresAt, now),
		ExpiresAt:           updated.ExpiresAt,
		Message:             message,
	}, nil
}

// alreadyVoted reloads the ballot that beat a concurrent duplicate.
func (s *Service) alreadyVoted(ctx context.Context, applicationID, voterID snowflake.ID) error {
	existing, err := s.repo.FindByApplicationAndVoter(ctx, applicationID, voterID)
	if err != nil || existing == nil {
		return &domain.AlreadyVotedError{}
	}
	return &domain.AlreadyVotedError{VoteType: existing.VoteType}
}
