package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/inspira/internal/authorization"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "forbidden", err: fmt.Errorf("sweep: %w", authorization.ErrForbidden), want: SchedulerJobReasonForbidden},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestClassifySchedulerErrorType(t *testing.T) {
	if got := ClassifySchedulerErrorType(gorm.ErrRecordNotFound); got != SchedulerErrorTypeBusinessRule {
		t.Fatalf("expected business_rule for record not found, got %q", got)
	}
	if got := ClassifySchedulerErrorType(&pgconn.PgError{Code: "08006"}); got != SchedulerErrorTypeDB {
		t.Fatalf("expected db, got %q", got)
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "inspira",
		Environment: "test",
	})

	metrics.AddBatchProcessed("expire_applications", ResourceApplications, 3)
	metrics.AddBatchProcessed("expire_applications", ResourceApplications, 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("expire_applications", ResourceApplications))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.IncJobRun("job")
	m.IncJobError("job", errors.New("boom"))
	m.ObserveRunLag(-1)
}
