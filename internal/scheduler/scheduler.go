package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	appdomain "github.com/smallbiznis/inspira/internal/application/domain"
	approvaldomain "github.com/smallbiznis/inspira/internal/approval/domain"
	"github.com/smallbiznis/inspira/internal/authorization"
	"github.com/smallbiznis/inspira/internal/clock"
	expirydomain "github.com/smallbiznis/inspira/internal/expiry/domain"
	groupdomain "github.com/smallbiznis/inspira/internal/group/domain"
	obsmetrics "github.com/smallbiznis/inspira/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	Sweeper  expirydomain.Sweeper
	GroupSvc groupdomain.Service
	AuthzSvc authorization.Service
	AppRepo  appdomain.Repository
	Executor approvaldomain.Executor
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   Config `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	sweeper  expirydomain.Sweeper
	groupSvc groupdomain.Service
	authzSvc authorization.Service
	appRepo  appdomain.Repository
	executor approvaldomain.Executor
	cron     *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Sweeper == nil || p.GroupSvc == nil || p.AuthzSvc == nil ||
		p.AppRepo == nil || p.Executor == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		sweeper:  p.Sweeper,
		groupSvc: p.GroupSvc,
		authzSvc: p.AuthzSvc,
		appRepo:  p.AppRepo,
		executor: p.Executor,
		cron:     cron.New(cron.WithLocation(time.UTC)),
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, r, finish := s.beginRun(ctx, name)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(r.startedAt))
	if err != nil && r.failures == 0 {
		r.failed()
	}
	finish()
	if err == nil {
		return nil
	}

	schedMetrics.IncJobError(name, err)
	// A deadline is a soft timeout: the next tick picks up the remainder.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.String("run_id", r.id),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job back to back.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, job := range s.jobs() {
		if s.isJobEnabled(job.name) {
			err = errors.Join(err, job.run(parent))
		}
	}
	return err
}

type job struct {
	name string
	spec string
	run  func(context.Context) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobExpireApplications, s.cfg.ExpireCron, func(ctx context.Context) error {
			return s.runJob(ctx, JobExpireApplications, s.cfg.JobTimeout, s.ExpireApplicationsJob)
		}},
		{JobReconcileMemberCounts, s.cfg.ReconcileCron, func(ctx context.Context) error {
			return s.runJob(ctx, JobReconcileMemberCounts, s.cfg.JobTimeout, s.ReconcileMemberCountsJob)
		}},
		{JobResumeApprovals, s.cfg.ResumeCron, func(ctx context.Context) error {
			return s.runJob(ctx, JobResumeApprovals, s.cfg.JobTimeout, s.ResumeApprovalsJob)
		}},
	}
}

// Start registers the enabled jobs on the cron table and starts it. Jobs run
// under ctx and stop when it is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		j := j
		_, err := s.cron.AddFunc(j.spec, func() {
			s.observeLag()
			if err := j.run(ctx); err != nil {
				s.log.Warn("scheduler run failed", zap.String("job", j.name), zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("schedule %s (%q): %w", j.name, j.spec, err)
		}
		s.log.Info("scheduler.job.registered", zap.String("job", j.name), zap.String("spec", j.spec))
	}
	s.cron.Start()
	return nil
}

// Stop stops the cron table and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// observeLag records how far past its minute boundary a cron tick started.
// Every supported spec fires on whole minutes.
func (s *Scheduler) observeLag() {
	now := s.clock.Now()
	obsmetrics.Scheduler().ObserveRunLag(now.Sub(now.Truncate(time.Minute)))
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ExpireApplicationsJob sweeps pending applications past their deadline.
func (s *Scheduler) ExpireApplicationsJob(ctx context.Context) error {
	ctx, r, finish := s.beginRun(ctx, JobExpireApplications)
	defer finish()

	if err := s.authorizeSystem(ctx, authorization.ObjectApplication, authorization.ActionApplicationSweep); err != nil {
		s.jobError(ctx, r, "scheduler.authorize.failed", err)
		return err
	}

	result, err := s.sweeper.Sweep(ctx, s.clock.Now())
	if result != nil {
		r.processedN(result.ExpiredCount)
		obsmetrics.Scheduler().AddBatchProcessed(JobExpireApplications, obsmetrics.ResourceApplications, result.ExpiredCount)
		if result.Skipped {
			r.deferred = true
			obsmetrics.Scheduler().IncBatchDeferred(JobExpireApplications, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		}
		if result.NotificationsFailed > 0 {
			s.logger(ctx).Warn("scheduler.expiry.notifications_failed",
				zap.Int("failed", result.NotificationsFailed),
			)
		}
	}
	if err != nil {
		s.jobError(ctx, r, "scheduler.expiry.failed", err)
		return err
	}
	return nil
}

// ReconcileMemberCountsJob rewrites drifted member_count values until none remain.
func (s *Scheduler) ReconcileMemberCountsJob(ctx context.Context) error {
	ctx, r, finish := s.beginRun(ctx, JobReconcileMemberCounts)
	defer finish()

	if err := s.authorizeSystem(ctx, authorization.ObjectGroup, authorization.ActionGroupReconcile); err != nil {
		s.jobError(ctx, r, "scheduler.authorize.failed", err)
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fixed, err := s.groupSvc.ReconcileMemberCounts(ctx, s.cfg.BatchSize)
		r.processedN(fixed)
		obsmetrics.Scheduler().AddBatchProcessed(JobReconcileMemberCounts, obsmetrics.ResourceGroups, fixed)
		if err != nil {
			s.jobError(ctx, r, "scheduler.reconcile.failed", err)
			return err
		}
		if fixed < s.cfg.BatchSize {
			return nil
		}
	}
}

// ResumeApprovalsJob finishes approvals whose vote committed but whose
// executor failed. A row that fails again is skipped until the next run.
func (s *Scheduler) ResumeApprovalsJob(ctx context.Context) error {
	ctx, r, finish := s.beginRun(ctx, JobResumeApprovals)
	defer finish()

	if err := s.authorizeSystem(ctx, authorization.ObjectApplication, authorization.ActionApplicationResume); err != nil {
		s.jobError(ctx, r, "scheduler.authorize.failed", err)
		return err
	}

	now := s.clock.Now()
	var after snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		stalled, err := s.appRepo.ListStalled(ctx, now, after, s.cfg.BatchSize)
		if err != nil {
			s.jobError(ctx, r, "scheduler.resume.list_failed", err)
			return err
		}
		for _, app := range stalled {
			after = app.ID
			result, err := s.executor.Approve(ctx, app)
			if err != nil {
				s.jobError(ctx, r, "scheduler.resume.approve_failed", err)
				continue
			}
			if result.Approved {
				r.processedN(1)
				obsmetrics.Scheduler().AddBatchProcessed(JobResumeApprovals, obsmetrics.ResourceApplications, 1)
			}
		}
		if len(stalled) < s.cfg.BatchSize {
			return nil
		}
	}
}

func (s *Scheduler) authorizeSystem(ctx context.Context, object string, action string) error {
	return s.authzSvc.AuthorizeRole(ctx, authorization.RoleSystem, object, action)
}
