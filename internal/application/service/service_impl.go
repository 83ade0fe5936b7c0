package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/inspira/internal/application/domain"
	"github.com/smallbiznis/inspira/internal/authorization"
	"github.com/smallbiznis/inspira/internal/clock"
	"github.com/smallbiznis/inspira/internal/config"
	groupdomain "github.com/smallbiznis/inspira/internal/group/domain"
	notificationdomain "github.com/smallbiznis/inspira/internal/notification/domain"
	"github.com/smallbiznis/inspira/internal/observability/metrics"
	votedomain "github.com/smallbiznis/inspira/internal/vote/domain"
	"github.com/smallbiznis/inspira/pkg/db"
	"github.com/smallbiznis/inspira/pkg/db/pagination"
	"github.com/smallbiznis/inspira/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxMessageLength = 2000

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	GroupRepo  groupdomain.Repository
	VoteRepo   votedomain.Repository
	Dispatcher notificationdomain.Dispatcher
	Authz      authorization.Service
	Profiles   domain.ProfileLookup
	Policy     *config.PolicyHolder
	Clock      clock.Clock
	Config     config.Config    `optional:"true"`
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	groupRepo  groupdomain.Repository
	voteRepo   votedomain.Repository
	dispatcher notificationdomain.Dispatcher
	authz      authorization.Service
	profiles   domain.ProfileLookup
	policy     *config.PolicyHolder
	clock      clock.Clock
	purgeVotes bool
	metrics    *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("application.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		groupRepo:  p.GroupRepo,
		voteRepo:   p.VoteRepo,
		dispatcher: p.Dispatcher,
		authz:      p.Authz,
		profiles:   p.Profiles,
		policy:     p.Policy,
		clock:      p.Clock,
		purgeVotes: p.Config.SweepPurgeVotes,
		metrics:    p.Metrics,
	}
}

// Apply files a pending application for a private group and asks the
// current members to vote on it.
func (s *Service) Apply(ctx context.Context, req domain.ApplyRequest) (*domain.ApplyResponse, error) {
	if req.GroupID == 0 || req.ApplicantID == 0 {
		return nil, domain.ErrInvalidRequest
	}

	now := s.clock.Now()
	group, err := s.groupRepo.FindByID(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, groupdomain.ErrGroupNotFound
	}

	member, err := s.groupRepo.FindMember(ctx, req.GroupID, req.ApplicantID)
	if err != nil {
		return nil, err
	}
	if member != nil {
		return nil, groupdomain.ErrAlreadyMember
	}

	existing, err := s.repo.FindOpenPending(ctx, req.GroupID, req.ApplicantID, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicateApplication
	}

	message := strings.TrimSpace(req.Message)
	if message == "" || len(message) > maxMessageLength {
		return nil, domain.ErrInvalidMessage
	}

	policy := s.policy.Get()
	var (
		app    domain.Application
		lapsed []domain.Application
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		// Rows the sweeper has not reached yet are expired here so the new
		// application is the pair's only pending one.
		lagging, err := repo.ListLagging(ctx, req.GroupID, req.ApplicantID, now)
		if err != nil {
			return err
		}
		for _, stale := range lagging {
			ok, err := repo.MarkExpired(ctx, stale.ID, now)
			if err != nil {
				return err
			}
			if ok {
				lapsed = append(lapsed, stale)
			}
		}

		current, err := s.groupRepo.WithTx(tx).FindByID(ctx, req.GroupID)
		if err != nil {
			return err
		}
		if current == nil {
			return groupdomain.ErrGroupNotFound
		}

		app = domain.Application{
			ID:            s.genID.Generate(),
			GroupID:       req.GroupID,
			ApplicantID:   req.ApplicantID,
			Message:       message,
			Status:        domain.StatusPending,
			VotesNeeded:   policy.Quorum.VotesNeeded(current.MemberCount),
			VotesReceived: 0,
			CreatedAt:     now,
			ExpiresAt:     now.AddDate(0, policy.ApplicationTTLMonths, 0),
			UpdatedAt:     now,
		}
		if err := repo.Insert(ctx, app); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateApplication
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordApplicationSubmitted(ctx)
	s.log.Info("application submitted",
		zap.String("application_id", app.ID.String()),
		zap.String("group_id", app.GroupID.String()),
		zap.Int("votes_needed", app.VotesNeeded),
	)

	s.notifyMembers(ctx, group, app, domain.DaysRemaining(app.ExpiresAt, now))
	s.settleLapsed(ctx, group, lapsed)

	return &domain.ApplyResponse{
		Application: app,
		Message: fmt.Sprintf(
			"Application submitted, awaiting member votes. Application will expire in one month (%s)",
			app.ExpiresAt.Format("2006-01-02"),
		),
	}, nil
}

// settleLapsed gives rows expired during Apply the same follow-up a sweep
// would: the applicant is told and the ballots are purged when configured.
func (s *Service) settleLapsed(ctx context.Context, group *groupdomain.Group, lapsed []domain.Application) {
	if len(lapsed) == 0 {
		return
	}
	ctx = correlation.Detach(ctx)

	ids := make([]snowflake.ID, 0, len(lapsed))
	for _, app := range lapsed {
		ids = append(ids, app.ID)
		notice := notificationdomain.ApplicationExpiredNotice(app.ID, app.GroupID, group.Name)
		if err := s.dispatcher.NotifySingle(ctx, app.ApplicantID, notice); err != nil {
			s.log.Warn("expiry notice failed",
				zap.String("application_id", app.ID.String()),
				zap.Error(err),
			)
		}
	}
	s.metrics.RecordExpired(ctx, len(lapsed))

	if !s.purgeVotes {
		return
	}
	if _, err := s.voteRepo.DeleteByApplicationIDs(ctx, ids); err != nil {
		s.log.Warn("purge votes of lapsed applications failed", zap.Int("applications", len(ids)), zap.Error(err))
	}
}

func (s *Service) notifyMembers(ctx context.Context, group *groupdomain.Group, app domain.Application, daysLeft int) {
	ctx = correlation.Detach(ctx)
	memberIDs, err := s.groupRepo.ListMemberIDs(ctx, group.ID)
	if err != nil {
		s.log.Warn("list group members for application notice failed",
			zap.String("application_id", app.ID.String()),
			zap.Error(err),
		)
		return
	}

	recipients := make([]snowflake.ID, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id != app.ApplicantID {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return
	}

	applicantID := app.ApplicantID
	err = s.dispatcher.Notify(ctx, recipients, notificationdomain.Payload{
		SenderID: &applicantID,
		Type:     notificationdomain.TypeGroupApplication,
		Title:    "New Group Application",
		Message: fmt.Sprintf(
			"%s has applied to join group \"%s\". Please vote within %d days",
			s.displayName(ctx, app.ApplicantID),
			group.Name,
			daysLeft,
		),
		Related: &notificationdomain.RelatedEntity{Type: notificationdomain.EntityApplication, ID: app.ID},
		Metadata: map[string]any{
			"group_id":     group.ID.String(),
			"votes_needed": app.VotesNeeded,
		},
	})
	if err != nil {
		s.log.Warn("application notice failed",
			zap.String("application_id", app.ID.String()),
			zap.Int("recipients", len(recipients)),
			zap.Error(err),
		)
	}
}

func (s *Service) Get(ctx context.Context, applicationID, viewerID snowflake.ID) (*domain.ApplicationView, error) {
	if applicationID == 0 || viewerID == 0 {
		return nil, domain.ErrInvalidRequest
	}

	app, err := s.repo.FindByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, domain.ErrApplicationNotFound
	}

	if app.ApplicantID != viewerID {
		if err := s.authorizeView(ctx, viewerID, app.GroupID); err != nil {
			return nil, err
		}
	}

	group, err := s.groupRepo.FindByID(ctx, app.GroupID)
	if err != nil {
		return nil, err
	}

	view := domain.ApplicationView{
		Application:   *app,
		ApplicantName: s.displayName(ctx, app.ApplicantID),
		DaysRemaining: domain.DaysRemaining(app.ExpiresAt, s.clock.Now()),
	}
	if group != nil {
		view.GroupName = group.Name
	}

	vote, err := s.voteRepo.FindByApplicationAndVoter(ctx, app.ID, viewerID)
	if err != nil {
		return nil, err
	}
	if vote != nil {
		view.MyVote = string(vote.VoteType)
	}
	return &view, nil
}

// ListPending pages through a group's open applications for one of its members.
func (s *Service) ListPending(ctx context.Context, req domain.ListPendingRequest) (*domain.ListPendingResponse, error) {
	if req.GroupID == 0 || req.ViewerID == 0 {
		return nil, domain.ErrInvalidRequest
	}

	group, err := s.groupRepo.FindByID(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, groupdomain.ErrGroupNotFound
	}
	if err := s.authorizeView(ctx, req.ViewerID, req.GroupID); err != nil {
		return nil, err
	}

	cursor, err := pagination.DecodeCursor(req.Page.PageToken)
	if err != nil {
		return nil, domain.ErrInvalidRequest
	}
	limit := req.Page.Limit()

	now := s.clock.Now()
	apps, err := s.repo.ListOpenPending(ctx, req.GroupID, now, cursor, limit+1)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return nil, domain.ErrInvalidRequest
		}
		return nil, err
	}

	apps, pageInfo, err := pagination.Page(apps, limit, func(app domain.Application) pagination.Cursor {
		return pagination.Cursor{ID: app.ID.String(), CreatedAt: app.CreatedAt}
	})
	if err != nil {
		return nil, err
	}

	ids := make([]snowflake.ID, 0, len(apps))
	for _, app := range apps {
		ids = append(ids, app.ID)
	}
	myVotes, err := s.voteRepo.FindByVoter(ctx, req.ViewerID, ids)
	if err != nil {
		return nil, err
	}

	views := make([]domain.ApplicationView, 0, len(apps))
	for _, app := range apps {
		views = append(views, domain.ApplicationView{
			Application:   app,
			GroupName:     group.Name,
			ApplicantName: s.displayName(ctx, app.ApplicantID),
			DaysRemaining: domain.DaysRemaining(app.ExpiresAt, now),
			MyVote:        string(myVotes[app.ID]),
		})
	}

	return &domain.ListPendingResponse{
		PageInfo:     pageInfo,
		Applications: views,
	}, nil
}

func (s *Service) authorizeView(ctx context.Context, viewerID, groupID snowflake.ID) error {
	err := s.authz.Authorize(ctx, authorization.UserActor(viewerID), groupID, authorization.ObjectApplication, authorization.ActionApplicationView)
	if errors.Is(err, authorization.ErrForbidden) {
		return domain.ErrNotAuthorized
	}
	return err
}

func (s *Service) displayName(ctx context.Context, userID snowflake.ID) string {
	if s.profiles == nil {
		return "A user"
	}
	return s.profiles.DisplayName(ctx, userID)
}
