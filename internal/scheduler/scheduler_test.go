package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	appdomain "github.com/smallbiznis/inspira/internal/application/domain"
	approvaldomain "github.com/smallbiznis/inspira/internal/approval/domain"
	approvalservice "github.com/smallbiznis/inspira/internal/approval/service"
	"github.com/smallbiznis/inspira/internal/clock"
	expirydomain "github.com/smallbiznis/inspira/internal/expiry/domain"
	expiryservice "github.com/smallbiznis/inspira/internal/expiry/service"
	groupdomain "github.com/smallbiznis/inspira/internal/group/domain"
	obsmetrics "github.com/smallbiznis/inspira/internal/observability/metrics"
	"github.com/smallbiznis/inspira/internal/testkit"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSweeper struct {
	result *expirydomain.Result
	err    error
	calls  int
}

func (s *stubSweeper) Sweep(context.Context, time.Time) (*expirydomain.Result, error) {
	s.calls++
	return s.result, s.err
}

type failingExecutor struct {
	calls int
}

func (e *failingExecutor) Approve(context.Context, appdomain.Application) (*approvaldomain.Result, error) {
	e.calls++
	return nil, errors.New("database is locked")
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "inspira",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}
	err = s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "inspira",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "inspira_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "inspira",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "inspira_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunJobWrapsHardErrors(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}
	boom := errors.New("boom")
	err = s.runJob(context.Background(), "broken_job", time.Second, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "broken_job")
}

func newEnvScheduler(t *testing.T, env *testkit.Env, sweeper expirydomain.Sweeper) *Scheduler {
	t.Helper()
	if sweeper == nil {
		sweeper = expiryservice.NewSweeper(expiryservice.Params{
			DB:         env.DB,
			Log:        env.Log,
			Repo:       env.AppRepo,
			GroupRepo:  env.GroupRepo,
			VoteRepo:   env.VoteRepo,
			Dispatcher: env.Dispatcher,
			Options:    expiryservice.Options{BatchSize: 10, PurgeVotes: true},
		})
	}
	s, err := New(Params{
		Log:      env.Log,
		Sweeper:  sweeper,
		GroupSvc: env.Groups,
		AuthzSvc: env.Authz,
		AppRepo:  env.AppRepo,
		Executor: approvalservice.NewExecutor(approvalservice.Params{
			DB:         env.DB,
			Log:        env.Log,
			GenID:      env.Node,
			Repo:       env.AppRepo,
			GroupRepo:  env.GroupRepo,
			Dispatcher: env.Dispatcher,
			Clock:      env.Clock,
		}),
		GenID: env.Node,
		Clock:    env.Clock,
		Config:   Config{BatchSize: 10},
	})
	require.NoError(t, err)
	return s
}

func TestRunOnceExpiresApplicationsAndRepairsCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "inspira", Environment: "test"})

	env := testkit.NewEnv(t)
	s := newEnvScheduler(t, env, nil)
	ctx := context.Background()

	creator := env.User(t, "creator")
	applicant := env.User(t, "applicant")
	group := env.Group(t, creator, "Risograph", true)
	app := env.PendingApplication(t, group.ID, applicant, 1, 0)

	require.NoError(t, env.DB.Model(&groupdomain.Group{}).Where("id = ?", group.ID).Update("member_count", 9).Error)
	env.Clock.Advance(40 * 24 * time.Hour)

	require.NoError(t, s.RunOnce(ctx))

	require.Equal(t, appdomain.StatusExpired, env.Application(t, app.ID).Status)
	require.Equal(t, 1, env.MemberCount(t, group.ID))

	labels := map[string]string{
		"service":  "inspira",
		"env":      "test",
		"job":      JobExpireApplications,
		"resource": obsmetrics.ResourceApplications,
	}
	require.Equal(t, float64(1), getCounterValue(t, registry, "inspira_scheduler_batch_processed_total", labels))

	labels["job"] = JobReconcileMemberCounts
	labels["resource"] = obsmetrics.ResourceGroups
	require.Equal(t, float64(1), getCounterValue(t, registry, "inspira_scheduler_batch_processed_total", labels))
}

func TestExpireJobCountsDeferredRunWhenLockHeld(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "inspira", Environment: "test"})

	env := testkit.NewEnv(t)
	sweeper := &stubSweeper{result: &expirydomain.Result{Skipped: true}}
	s := newEnvScheduler(t, env, sweeper)
	s.cfg.EnabledJobs = []string{JobExpireApplications}

	require.NoError(t, s.RunOnce(context.Background()))
	require.Equal(t, 1, sweeper.calls)

	labels := map[string]string{
		"service": "inspira",
		"env":     "test",
		"job":     JobExpireApplications,
		"reason":  obsmetrics.SchedulerBatchDeferredReasonLockHeld,
	}
	require.Equal(t, float64(1), getCounterValue(t, registry, "inspira_scheduler_batch_deferred_total", labels))
}

func TestResumeApprovalsFinishesStalledApplications(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "inspira", Environment: "test"})

	env := testkit.NewEnv(t)
	s := newEnvScheduler(t, env, &stubSweeper{result: &expirydomain.Result{}})
	s.cfg.EnabledJobs = []string{JobResumeApprovals}
	ctx := context.Background()

	creator := env.User(t, "creator")
	applicant := env.User(t, "applicant")
	waiting := env.User(t, "waiting")
	group := env.Group(t, creator, "Marginalia", true)
	stalled := env.PendingApplication(t, group.ID, applicant, 1, 1)
	open := env.PendingApplication(t, group.ID, waiting, 1, 0)

	realExecutor := s.executor
	broken := &failingExecutor{}
	s.executor = broken
	require.NoError(t, s.RunOnce(ctx))
	require.Equal(t, 1, broken.calls)
	require.Equal(t, appdomain.StatusPending, env.Application(t, stalled.ID).Status)

	s.executor = realExecutor
	require.NoError(t, s.RunOnce(ctx))
	require.Equal(t, appdomain.StatusApproved, env.Application(t, stalled.ID).Status)
	require.EqualValues(t, 1, env.MembershipRows(t, group.ID, applicant))
	require.Equal(t, 2, env.MemberCount(t, group.ID))
	require.Equal(t, appdomain.StatusPending, env.Application(t, open.ID).Status)

	labels := map[string]string{
		"service":  "inspira",
		"env":      "test",
		"job":      JobResumeApprovals,
		"resource": obsmetrics.ResourceApplications,
	}
	require.Equal(t, float64(1), getCounterValue(t, registry, "inspira_scheduler_batch_processed_total", labels))
}

func TestStartRejectsInvalidCronSpec(t *testing.T) {
	env := testkit.NewEnv(t)
	s := newEnvScheduler(t, env, &stubSweeper{result: &expirydomain.Result{}})
	s.cfg.ExpireCron = "every now and then"

	err := s.Start(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), JobExpireApplications)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetSchedulerMetricsForTest()
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
