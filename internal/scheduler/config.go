package scheduler

import (
	"time"

	"github.com/smallbiznis/inspira/internal/config"
)

const (
	JobExpireApplications    = "expire_applications"
	JobReconcileMemberCounts = "reconcile_member_counts"
	JobResumeApprovals       = "resume_approvals"
)

// Config controls cron specs, batch sizes and per-job deadlines.
type Config struct {
	Enabled       bool
	ExpireCron    string
	ReconcileCron string
	ResumeCron    string
	BatchSize     int
	JobTimeout    time.Duration
	// EnabledJobs limits RunOnce and the cron table; empty enables every job.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		ExpireCron:    "0 3 * * *",
		ReconcileCron: "@hourly",
		ResumeCron:    "*/15 * * * *",
		BatchSize:     100,
		JobTimeout:    5 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:       cfg.Scheduler.Enabled,
		ExpireCron:    cfg.Scheduler.ExpireCron,
		ReconcileCron: cfg.Scheduler.ReconcileCron,
		ResumeCron:    cfg.Scheduler.ResumeCron,
		BatchSize:     cfg.Scheduler.BatchSize,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.ExpireCron == "" {
		c.ExpireCron = defaults.ExpireCron
	}
	if c.ReconcileCron == "" {
		c.ReconcileCron = defaults.ReconcileCron
	}
	if c.ResumeCron == "" {
		c.ResumeCron = defaults.ResumeCron
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
