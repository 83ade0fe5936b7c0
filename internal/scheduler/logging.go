package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/inspira/internal/observability/context"
	obslogger "github.com/smallbiznis/inspira/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/inspira/internal/observability/metrics"
	"go.uber.org/zap"
)

// run tracks one execution of a job. Nested calls (runJob wrapping a job
// method) share the outermost run so start and finish are logged once.
type run struct {
	job       string
	id        string
	startedAt time.Time
	processed int
	failures  int
	deferred  bool
}

type runKey struct{}

func (r *run) processedN(n int) {
	if r != nil && n > 0 {
		r.processed += n
	}
}

func (r *run) failed() {
	if r != nil {
		r.failures++
	}
}

// beginRun attaches a run to ctx unless one is already present. The returned
// finish func is a no-op for callers that did not create the run.
func (s *Scheduler) beginRun(ctx context.Context, job string) (context.Context, *run, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing, ok := ctx.Value(runKey{}).(*run); ok && existing != nil {
		return ctx, existing, func() {}
	}

	r := &run{
		job:       job,
		id:        s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, runKey{}, r)
	ctx = obscontext.WithRequestID(ctx, r.id)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")

	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", job),
		zap.String("run_id", r.id),
		zap.Int("batch_size", s.cfg.BatchSize),
	)
	return ctx, r, func() { s.finishRun(ctx, r) }
}

func (s *Scheduler) finishRun(ctx context.Context, r *run) {
	fields := []zap.Field{
		zap.String("job", r.job),
		zap.String("run_id", r.id),
		zap.Int64("duration_ms", s.clock.Now().Sub(r.startedAt).Milliseconds()),
		zap.Int("processed_count", r.processed),
		zap.Int("error_count", r.failures),
	}
	if r.deferred {
		fields = append(fields, zap.Bool("deferred", true))
	}
	if r.failures > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

// jobError counts err against the run and logs it with its scheduler error class.
func (s *Scheduler) jobError(ctx context.Context, r *run, msg string, err error) {
	if err == nil {
		return
	}
	r.failed()
	job := ""
	if r != nil {
		job = r.job
	}
	s.logger(ctx).Error(msg,
		zap.String("job", job),
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.Error(err),
	)
}
