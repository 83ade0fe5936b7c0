package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	appdomain "github.com/smallbiznis/inspira/internal/application/domain"
	"github.com/smallbiznis/inspira/internal/approval/domain"
	"github.com/smallbiznis/inspira/internal/clock"
	groupdomain "github.com/smallbiznis/inspira/internal/group/domain"
	notificationdomain "github.com/smallbiznis/inspira/internal/notification/domain"
	"github.com/smallbiznis/inspira/internal/observability/metrics"
	"github.com/smallbiznis/inspira/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const approvalTrigger = "vote"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       appdomain.Repository
	GroupRepo  groupdomain.Repository
	Dispatcher notificationdomain.Dispatcher
	Clock      clock.Clock
	Metrics    *metrics.Metrics `optional:"true"`
}

type Executor struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       appdomain.Repository
	groupRepo  groupdomain.Repository
	dispatcher notificationdomain.Dispatcher
	clock      clock.Clock
	metrics    *metrics.Metrics
}

func NewExecutor(p Params) domain.Executor {
	return &Executor{
		db:         p.DB,
		log:        p.Log.Named("approval.executor"),
		genID:      p.GenID,
		repo:       p.Repo,
		groupRepo:  p.GroupRepo,
		dispatcher: p.Dispatcher,
		clock:      p.Clock,
		metrics:    p.Metrics,
	}
}

func (e *Executor) Approve(ctx context.Context, app appdomain.Application) (*domain.Result, error) {
	now := e.clock.Now()
	result := &domain.Result{}
	inserted := false

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := e.repo.WithTx(tx).MarkApproved(ctx, app.ID, now)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		result.Approved = true

		inserted, err = e.groupRepo.WithTx(tx).AddMember(ctx, groupdomain.Member{
			ID:        e.genID.Generate(),
			GroupID:   app.GroupID,
			UserID:    app.ApplicantID,
			Role:      groupdomain.RoleMember,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		result.AlreadyMember = !inserted
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !result.Approved {
		e.log.Debug("approval lost race", zap.String("application_id", app.ID.String()))
		return result, nil
	}

	fields := []zap.Field{
		zap.String("application_id", app.ID.String()),
		zap.String("group_id", app.GroupID.String()),
		zap.String("applicant_id", app.ApplicantID.String()),
	}

	if inserted {
		if err := e.groupRepo.IncrementMemberCount(ctx, app.GroupID, now); err != nil {
			e.log.Error("member count increment failed", append(fields, zap.Error(err))...)
		}
	}

	group, err := e.groupRepo.FindByID(ctx, app.GroupID)
	if err != nil {
		e.log.Warn("load group for approval notice failed", append(fields, zap.Error(err))...)
	}
	if group != nil {
		result.GroupName = group.Name
	}

	err = e.dispatcher.NotifySingle(correlation.Detach(ctx), app.ApplicantID, notificationdomain.Payload{
		Type:    notificationdomain.TypeGroupApproval,
		Title:   "Application Approved",
		Message: fmt.Sprintf("Congratulations! Your application to join \"%s\" has been approved", result.GroupName),
		Related: &notificationdomain.RelatedEntity{Type: notificationdomain.EntityApplication, ID: app.ID},
		Metadata: map[string]any{
			"group_id": app.GroupID.String(),
		},
	})
	if err != nil {
		e.log.Warn("approval notice failed", append(fields, zap.Error(err))...)
	}

	e.metrics.RecordApproval(ctx, approvalTrigger)
	e.log.Info("application approved", append(fields, zap.Bool("already_member", result.AlreadyMember))...)
	return result, nil
}
