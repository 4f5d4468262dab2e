package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/conversation"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/domain"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/metrics"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/service"
	"github.com/aussiebroadwan/loadwatch/pkg/idx"
	"github.com/aussiebroadwan/loadwatch/pkg/slogx"
)

type Job string

const (
	JobReminder Job = "reminder"
	JobMissing  Job = "missing"
	JobSummary  Job = "summary"
	JobACWR     Job = "acwr"
)

// Jobs lists every job in schedule order.
var Jobs = []Job{JobReminder, JobMissing, JobSummary, JobACWR}

var ErrUnknownJob = errors.New("unknown job")

func ParseJob(s string) (Job, error) {
	for _, j := range Jobs {
		if string(j) == s {
			return j, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownJob, s)
}

// DefaultSlotTTL keeps a claimed slot long enough to cover one day.
const DefaultSlotTTL = 36 * time.Hour

// Pusher is the outbound half of a conversation.Messenger.
type Pusher interface {
	Push(ctx context.Context, userID string, text string) error
}

// Runner runs a job by name. *Orchestrator is the implementation; the
// scheduler and the HTTP trigger depend on this.
type Runner interface {
	Run(ctx context.Context, job Job, now time.Time) (Result, error)
}

var _ Runner = (*Orchestrator)(nil)

// Result describes one invocation. Skipped is set when the slot had
// already been claimed and nothing was pushed.
type Result struct {
	Job        Job
	Slot       string
	RunID      idx.ID
	Recipients int
	Delivered  int
	Failed     int
	Skipped    bool
}

// Orchestrator builds the periodic reports and pushes them. It only reads
// from the ledger and registry.
type Orchestrator struct {
	Registry  *service.RegistryService
	Ledger    *service.LedgerService
	Analytics *service.AnalyticsService
	Pusher    Pusher
	Names     conversation.NameResolver
	Guard     SlotGuard
	Metrics   *metrics.Metrics
	SlotTTL   time.Duration
}

// Run dispatches to the job's entry point.
func (o *Orchestrator) Run(ctx context.Context, job Job, now time.Time) (Result, error) {
	switch job {
	case JobReminder:
		return o.RunReminder(ctx, now)
	case JobMissing:
		return o.RunMissingCheck(ctx, now)
	case JobSummary:
		return o.RunDailySummary(ctx, now)
	case JobACWR:
		return o.RunWeeklyACWR(ctx, now)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}
}

// RunReminder nudges players that have not reported on now's day.
func (o *Orchestrator) RunReminder(ctx context.Context, now time.Time) (Result, error) {
	return o.run(ctx, JobReminder, o.Ledger.Day(now), func(ctx context.Context) ([]string, func(string) string, error) {
		missing, err := o.Analytics.MissingToday(ctx, now)
		if err != nil {
			return nil, nil, err
		}
		return missing, func(string) string { return conversation.ReminderText }, nil
	})
}

// RunMissingCheck sends coaches the list of players without a report.
func (o *Orchestrator) RunMissingCheck(ctx context.Context, now time.Time) (Result, error) {
	return o.run(ctx, JobMissing, o.Ledger.Day(now), func(ctx context.Context) ([]string, func(string) string, error) {
		missing, err := o.Analytics.MissingToday(ctx, now)
		if err != nil {
			return nil, nil, err
		}
		labels := conversation.Labels(ctx, o.Names, missing)
		lines := make([]string, len(missing))
		for i, id := range missing {
			lines[i] = labels[id]
		}
		return o.toCoaches(ctx, conversation.RenderMissing(lines))
	})
}

// RunDailySummary sends coaches the day report.
func (o *Orchestrator) RunDailySummary(ctx context.Context, now time.Time) (Result, error) {
	return o.run(ctx, JobSummary, o.Ledger.Day(now), func(ctx context.Context) ([]string, func(string) string, error) {
		report, err := o.Analytics.TeamDayReport(ctx, now)
		if err != nil {
			return nil, nil, err
		}
		ids := make([]string, len(report.Players))
		for i, p := range report.Players {
			ids[i] = p.UserID
		}
		return o.toCoaches(ctx, conversation.RenderTeamDay(report, conversation.Labels(ctx, o.Names, ids)))
	})
}

// RunWeeklyACWR sends coaches the team ratio summary. Its slot is the ISO
// week of now.
func (o *Orchestrator) RunWeeklyACWR(ctx context.Context, now time.Time) (Result, error) {
	week := domain.DayKey(domain.StartOfISOWeek(now.In(o.Ledger.Location)))
	return o.run(ctx, JobACWR, week, func(ctx context.Context) ([]string, func(string) string, error) {
		summary, err := o.Analytics.TeamACWRSummary(ctx, now)
		if err != nil {
			return nil, nil, err
		}
		ids := make([]string, len(summary.Players))
		for i, p := range summary.Players {
			ids[i] = p.UserID
		}
		return o.toCoaches(ctx, conversation.RenderTeamACWR(summary, conversation.Labels(ctx, o.Names, ids)))
	})
}

func (o *Orchestrator) toCoaches(ctx context.Context, text string) ([]string, func(string) string, error) {
	coaches, err := o.Registry.ListByRole(ctx, domain.RoleCoach)
	if err != nil {
		return nil, nil, err
	}
	return coaches, func(string) string { return text }, nil
}

// plan returns the recipients and the text for each of them.
type plan func(ctx context.Context) ([]string, func(userID string) string, error)

func (o *Orchestrator) run(ctx context.Context, job Job, slot string, build plan) (Result, error) {
	res := Result{Job: job, Slot: slot, RunID: idx.New()}
	ctx = slogx.With(ctx, "job", string(job), "run_id", res.RunID.String())
	log := slogx.FromContext(ctx)

	recipients, textFor, err := build(ctx)
	if err != nil {
		log.Error("failed to build job report", slog.Any("error", err))
		o.Metrics.JobRun(string(job), "error")
		return res, err
	}

	if o.Guard != nil {
		ttl := o.SlotTTL
		if ttl <= 0 {
			ttl = DefaultSlotTTL
		}
		claimed, err := o.Guard.Claim(ctx, string(job)+":"+slot, ttl)
		if err != nil {
			log.Warn("slot guard unavailable, running anyway", slog.Any("error", err))
		}
		if !claimed {
			log.Info("job slot already ran", slog.String("slot", slot))
			res.Skipped = true
			o.Metrics.JobRun(string(job), "skipped")
			return res, nil
		}
	}

	res.Recipients = len(recipients)
	for _, userID := range recipients {
		if err := o.Pusher.Push(ctx, userID, textFor(userID)); err != nil {
			res.Failed++
			o.Metrics.Push(string(job), false)
			log.Error("push failed, skipping recipient",
				slog.String("recipient", userID),
				slog.Any("error", err),
			)
			continue
		}
		res.Delivered++
		o.Metrics.Push(string(job), true)
	}

	o.Metrics.JobRun(string(job), "ok")
	log.Info("job completed",
		slog.String("slot", slot),
		slog.Int("recipients", res.Recipients),
		slog.Int("delivered", res.Delivered),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}
