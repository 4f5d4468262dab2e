package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/jobs"
	"github.com/aussiebroadwan/loadwatch/pkg/slogx"
	"github.com/robfig/cron/v3"
)

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// newScheduler registers one cron entry per job with a non-empty spec.
// Specs are evaluated in loc.
func newScheduler(cfg ScheduleConfig, loc *time.Location, runner jobs.Runner, logger *slog.Logger) (*cron.Cron, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	specs := []struct {
		job  jobs.Job
		spec string
	}{
		{jobs.JobReminder, cfg.Reminder},
		{jobs.JobMissing, cfg.Missing},
		{jobs.JobSummary, cfg.Summary},
		{jobs.JobACWR, cfg.ACWR},
	}

	for _, s := range specs {
		if s.spec == "" {
			continue
		}
		job := s.job
		if _, err := c.AddFunc(s.spec, func() { runScheduled(runner, logger, job) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", job, s.spec, err)
		}
		logger.Info("job scheduled", slog.String("job", string(job)), slog.String("spec", s.spec))
	}

	return c, nil
}

func runScheduled(runner jobs.Runner, logger *slog.Logger, job jobs.Job) {
	log := logger.With(slog.String("job", string(job)))
	ctx := slogx.WithContext(context.Background(), log)

	res, err := runner.Run(ctx, job, time.Now())
	if err != nil {
		log.Error("scheduled job failed", slog.Any("error", err))
		return
	}
	log.Info("scheduled job finished",
		slog.String("slot", res.Slot),
		slog.Bool("skipped", res.Skipped),
		slog.Int("delivered", res.Delivered),
		slog.Int("failed", res.Failed),
	)
}
