package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	appdomain "github.com/smallbiznis/inspira/internal/application/domain"
	"github.com/smallbiznis/inspira/internal/config"
	"github.com/smallbiznis/inspira/internal/expiry/domain"
	groupdomain "github.com/smallbiznis/inspira/internal/group/domain"
	notificationdomain "github.com/smallbiznis/inspira/internal/notification/domain"
	"github.com/smallbiznis/inspira/internal/observability/metrics"
	"github.com/smallbiznis/inspira/internal/ratelimit"
	votedomain "github.com/smallbiznis/inspira/internal/vote/domain"
	"github.com/smallbiznis/inspira/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultBatchSize = 100
	defaultLockTTL   = 5 * time.Minute
)

type Options struct {
	BatchSize  int
	LockTTL    time.Duration
	PurgeVotes bool
}

// OptionsFromConfig reads the sweep tunables from the process config.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		BatchSize:  cfg.Scheduler.BatchSize,
		LockTTL:    time.Duration(cfg.Scheduler.SweepLockTTL) * time.Second,
		PurgeVotes: cfg.SweepPurgeVotes,
	}
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       appdomain.Repository
	GroupRepo  groupdomain.Repository
	VoteRepo   votedomain.Repository
	Dispatcher notificationdomain.Dispatcher
	Options    Options
	Locker     *ratelimit.Locker `optional:"true"`
	Metrics    *metrics.Metrics  `optional:"true"`
}

type Sweeper struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       appdomain.Repository
	groupRepo  groupdomain.Repository
	voteRepo   votedomain.Repository
	dispatcher notificationdomain.Dispatcher
	opts       Options
	locker     *ratelimit.Locker
	metrics    *metrics.Metrics
}

func NewSweeper(p Params) domain.Sweeper {
	opts := p.Options
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	return &Sweeper{
		db:         p.DB,
		log:        p.Log.Named("expiry.sweeper"),
		repo:       p.Repo,
		groupRepo:  p.GroupRepo,
		voteRepo:   p.VoteRepo,
		dispatcher: p.Dispatcher,
		opts:       opts,
		locker:     p.Locker,
		metrics:    p.Metrics,
	}
}

func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (*domain.Result, error) {
	now = now.UTC()
	result := &domain.Result{Expired: []domain.ExpiredApplication{}}

	lease, err := s.locker.Acquire(ctx, domain.LockKey, s.opts.LockTTL)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		s.log.Info("sweep skipped, lock held elsewhere")
		result.Skipped = true
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquire sweep lock: %w", err)
	}
	defer func() {
		if err := lease.Release(correlation.Detach(ctx)); err != nil {
			s.log.Warn("release sweep lock failed", zap.Error(err))
		}
	}()

	groupNames := map[snowflake.ID]string{}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		stale, err := s.repo.ListStale(ctx, now, s.opts.BatchSize)
		if err != nil {
			return result, err
		}
		if len(stale) == 0 {
			break
		}

		swept, err := s.expireBatch(ctx, stale, now)
		if err != nil {
			return result, err
		}
		if len(swept) == 0 {
			break
		}

		ids := make([]snowflake.ID, 0, len(swept))
		for _, app := range swept {
			ids = append(ids, app.ID)
			expired := domain.ExpiredApplication{
				ID:          app.ID,
				GroupID:     app.GroupID,
				GroupName:   s.groupName(ctx, groupNames, app.GroupID),
				ApplicantID: app.ApplicantID,
				ExpiresAt:   app.ExpiresAt,
			}
			if !s.notifyApplicant(ctx, expired) {
				result.NotificationsFailed++
			}
			result.Expired = append(result.Expired, expired)
		}
		result.ExpiredCount += len(swept)

		if s.opts.PurgeVotes {
			if _, err := s.voteRepo.DeleteByApplicationIDs(ctx, ids); err != nil {
				s.log.Warn("purge votes of expired applications failed", zap.Int("applications", len(ids)), zap.Error(err))
			}
		}

		if len(stale) < s.opts.BatchSize {
			break
		}
		if err := lease.Extend(ctx, s.opts.LockTTL); err != nil {
			return result, fmt.Errorf("extend sweep lock: %w", err)
		}
	}

	s.metrics.RecordExpired(ctx, result.ExpiredCount)
	if result.ExpiredCount > 0 {
		s.log.Info("expired applications swept",
			zap.Int("expired_count", result.ExpiredCount),
			zap.Int("notifications_failed", result.NotificationsFailed),
		)
	}
	return result, nil
}

// expireBatch flips each row with its own compare-and-swap; rows another
// writer already decided are left out of the result.
func (s *Sweeper) expireBatch(ctx context.Context, stale []appdomain.Application, now time.Time) ([]appdomain.Application, error) {
	swept := make([]appdomain.Application, 0, len(stale))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, app := range stale {
			ok, err := repo.MarkExpired(ctx, app.ID, now)
			if err != nil {
				return err
			}
			if ok {
				swept = append(swept, app)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return swept, nil
}

func (s *Sweeper) groupName(ctx context.Context, cache map[snowflake.ID]string, groupID snowflake.ID) string {
	if name, ok := cache[groupID]; ok {
		return name
	}
	group, err := s.groupRepo.FindByID(ctx, groupID)
	if err != nil {
		s.log.Warn("load group for expiry notice failed", zap.String("group_id", groupID.String()), zap.Error(err))
		return ""
	}
	name := ""
	if group != nil {
		name = group.Name
	}
	cache[groupID] = name
	return name
}

func (s *Sweeper) notifyApplicant(ctx context.Context, expired domain.ExpiredApplication) bool {
	err := s.dispatcher.NotifySingle(ctx, expired.ApplicantID,
		notificationdomain.ApplicationExpiredNotice(expired.ID, expired.GroupID, expired.GroupName))
	if err != nil {
		s.log.Warn("expiry notice failed",
			zap.String("application_id", expired.ID.String()),
			zap.Error(err),
		)
		return false
	}
	return true
}
